package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolledger/internal/model"
	"poolledger/internal/pair"
	"poolledger/internal/transfer"
)

// Ledger owns all pool and share-balance state. Pools are created implicitly
// on first deposit and never destroyed. Every mutating operation holds the
// pair's lock end to end, so reads and writes against one pool never
// interleave; value-out custodian calls happen after bookkeeping and are
// rolled back on failure.
type Ledger struct {
	custodian transfer.Custodian
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.RWMutex
	pools map[pair.Key]*pool
}

// New builds a Ledger around the given custodian.
func New(custodian transfer.Custodian, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		custodian: custodian,
		logger:    logger,
		now:       time.Now,
		pools:     make(map[pair.Key]*pool),
	}
}

// AddLiquidityParams carries one deposit request. Desired amounts must be
// positive; nil minimums mean zero; Deadline is unix seconds, zero disables
// the guard.
type AddLiquidityParams struct {
	AssetA         common.Address
	AssetB         common.Address
	AmountADesired *big.Int
	AmountBDesired *big.Int
	AmountAMin     *big.Int
	AmountBMin     *big.Int
	Caller         common.Address
	Recipient      common.Address
	Deadline       int64
}

// AddLiquidityResult reports the accepted amounts and issued shares.
type AddLiquidityResult struct {
	AmountA      *big.Int
	AmountB      *big.Int
	SharesIssued *big.Int
}

// AddLiquidity accepts a matched deposit and issues claim shares. Issuance
// is additive: sharesIssued = amountA + amountB.
func (l *Ledger) AddLiquidity(ctx context.Context, params AddLiquidityParams) (AddLiquidityResult, error) {
	if err := l.checkDeadline(params.Deadline); err != nil {
		return AddLiquidityResult{}, err
	}
	key, err := pair.KeyOf(params.AssetA, params.AssetB)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	if !positive(params.AmountADesired) || !positive(params.AmountBDesired) {
		return AddLiquidityResult{}, ErrInvalidAmount
	}
	if !nonNegative(params.AmountAMin) || !nonNegative(params.AmountBMin) {
		return AddLiquidityResult{}, ErrInvalidAmount
	}

	p := l.getOrCreatePool(key, params.AssetA, params.AssetB)
	p.mu.Lock()
	defer p.mu.Unlock()

	amountA, amountB, err := matchAmounts(p, params)
	if err != nil {
		return AddLiquidityResult{}, err
	}

	reserveA, reserveB := p.oriented(params.AssetA)
	if new(big.Int).Add(reserveA, amountA).Cmp(maxReserve) > 0 ||
		new(big.Int).Add(reserveB, amountB).Cmp(maxReserve) > 0 {
		return AddLiquidityResult{}, ErrOverflow
	}

	// Pull both legs before any bookkeeping; a failed second pull refunds
	// the first so no value is stranded in custody.
	if err := l.custodian.Pull(ctx, params.AssetA, params.Caller, amountA); err != nil {
		return AddLiquidityResult{}, err
	}
	if err := l.custodian.Pull(ctx, params.AssetB, params.Caller, amountB); err != nil {
		if refundErr := l.custodian.Push(ctx, params.AssetA, params.Caller, amountA); refundErr != nil {
			l.logger.Error("refund after failed pull",
				zap.String("asset", params.AssetA.Hex()),
				zap.String("caller", params.Caller.Hex()),
				zap.Error(refundErr),
			)
		}
		return AddLiquidityResult{}, err
	}

	if err := p.applyDeposit(amountA, amountB, params.AssetA); err != nil {
		// Unreachable given the pre-check above, but never keep pulled value
		// without the matching reserve credit.
		l.refund(ctx, params.AssetA, params.Caller, amountA)
		l.refund(ctx, params.AssetB, params.Caller, amountB)
		return AddLiquidityResult{}, err
	}

	shares := new(big.Int).Add(amountA, amountB)
	p.totalShares.Add(p.totalShares, shares)
	bal := p.sharesOf(params.Recipient)
	bal.Add(bal, shares)

	l.logger.Info("liquidity added",
		zap.String("pair", key.Hex()),
		zap.Stringer("amount_a", amountA),
		zap.Stringer("amount_b", amountB),
		zap.Stringer("shares", shares),
		zap.String("recipient", params.Recipient.Hex()),
	)

	return AddLiquidityResult{AmountA: amountA, AmountB: amountB, SharesIssued: shares}, nil
}

// matchAmounts picks the accepted deposit amounts: full desired amounts into
// an empty pool, otherwise the larger leg is scaled down to the reserve
// ratio and checked against its minimum. Callers must hold p.mu.
func matchAmounts(p *pool, params AddLiquidityParams) (*big.Int, *big.Int, error) {
	if p.totalShares.Sign() == 0 {
		return new(big.Int).Set(params.AmountADesired), new(big.Int).Set(params.AmountBDesired), nil
	}

	reserveA, reserveB := p.oriented(params.AssetA)

	bOptimal := quote(params.AmountADesired, reserveA, reserveB)
	if bOptimal.Cmp(params.AmountBDesired) <= 0 {
		if bOptimal.Cmp(orZero(params.AmountBMin)) < 0 {
			return nil, nil, ErrSlippageExceeded
		}
		return new(big.Int).Set(params.AmountADesired), bOptimal, nil
	}

	aOptimal := quote(params.AmountBDesired, reserveB, reserveA)
	if aOptimal.Cmp(orZero(params.AmountAMin)) < 0 {
		return nil, nil, ErrSlippageExceeded
	}
	return aOptimal, new(big.Int).Set(params.AmountBDesired), nil
}

// RemoveLiquidityParams carries one redemption request.
type RemoveLiquidityParams struct {
	AssetA     common.Address
	AssetB     common.Address
	Shares     *big.Int
	AmountAMin *big.Int
	AmountBMin *big.Int
	Caller     common.Address
	Recipient  common.Address
	Deadline   int64
}

// RemoveLiquidityResult reports the redeemed amounts.
type RemoveLiquidityResult struct {
	AmountA *big.Int
	AmountB *big.Int
}

// RemoveLiquidity burns shares and pays out the proportional reserves,
// truncating. Pushes happen after bookkeeping; a failed push rolls all
// bookkeeping back.
func (l *Ledger) RemoveLiquidity(ctx context.Context, params RemoveLiquidityParams) (RemoveLiquidityResult, error) {
	if err := l.checkDeadline(params.Deadline); err != nil {
		return RemoveLiquidityResult{}, err
	}
	key, err := pair.KeyOf(params.AssetA, params.AssetB)
	if err != nil {
		return RemoveLiquidityResult{}, err
	}
	if !positive(params.Shares) {
		return RemoveLiquidityResult{}, ErrInvalidAmount
	}

	p := l.lookupPool(key)
	if p == nil {
		return RemoveLiquidityResult{}, ErrNoLiquidity
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.totalShares.Sign() == 0 {
		return RemoveLiquidityResult{}, ErrNoLiquidity
	}

	reserveA, reserveB := p.oriented(params.AssetA)
	amountA := new(big.Int).Mul(reserveA, params.Shares)
	amountA.Div(amountA, p.totalShares)
	amountB := new(big.Int).Mul(reserveB, params.Shares)
	amountB.Div(amountB, p.totalShares)

	if amountA.Cmp(orZero(params.AmountAMin)) < 0 || amountB.Cmp(orZero(params.AmountBMin)) < 0 {
		return RemoveLiquidityResult{}, ErrSlippageExceeded
	}

	bal := p.sharesOf(params.Caller)
	if bal.Cmp(params.Shares) < 0 {
		return RemoveLiquidityResult{}, ErrInsufficientShares
	}

	bal.Sub(bal, params.Shares)
	p.totalShares.Sub(p.totalShares, params.Shares)
	if err := p.applyWithdrawal(amountA, amountB, params.AssetA); err != nil {
		bal.Add(bal, params.Shares)
		p.totalShares.Add(p.totalShares, params.Shares)
		return RemoveLiquidityResult{}, err
	}

	rollback := func() {
		if err := p.applyDeposit(amountA, amountB, params.AssetA); err != nil {
			l.logger.Error("rollback deposit", zap.String("pair", key.Hex()), zap.Error(err))
		}
		bal.Add(bal, params.Shares)
		p.totalShares.Add(p.totalShares, params.Shares)
	}

	if err := l.custodian.Push(ctx, params.AssetA, params.Recipient, amountA); err != nil {
		rollback()
		return RemoveLiquidityResult{}, err
	}
	if err := l.custodian.Push(ctx, params.AssetB, params.Recipient, amountB); err != nil {
		if backErr := l.custodian.Pull(ctx, params.AssetA, params.Recipient, amountA); backErr != nil {
			l.logger.Error("reclaim after failed push",
				zap.String("asset", params.AssetA.Hex()),
				zap.String("recipient", params.Recipient.Hex()),
				zap.Error(backErr),
			)
		}
		rollback()
		return RemoveLiquidityResult{}, err
	}

	l.logger.Info("liquidity removed",
		zap.String("pair", key.Hex()),
		zap.Stringer("amount_a", amountA),
		zap.Stringer("amount_b", amountB),
		zap.Stringer("shares", params.Shares),
		zap.String("recipient", params.Recipient.Hex()),
	)

	return RemoveLiquidityResult{AmountA: amountA, AmountB: amountB}, nil
}

// SwapParams carries one exact-input swap request.
type SwapParams struct {
	InputAsset   common.Address
	OutputAsset  common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Caller       common.Address
	Recipient    common.Address
	Deadline     int64
}

// SwapExactIn swaps a fixed input amount for the curve-priced output amount.
func (l *Ledger) SwapExactIn(ctx context.Context, params SwapParams) (*big.Int, error) {
	if err := l.checkDeadline(params.Deadline); err != nil {
		return nil, err
	}
	key, err := pair.KeyOf(params.InputAsset, params.OutputAsset)
	if err != nil {
		return nil, err
	}
	if !nonNegative(params.AmountOutMin) {
		return nil, ErrInvalidAmount
	}

	p := l.lookupPool(key)
	if p == nil {
		// Same failure as a zero reserve: nothing to price against.
		return nil, ErrInvalidAmount
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	reserveIn, reserveOut := p.oriented(params.InputAsset)
	amountOut, err := GetAmountOut(params.AmountIn, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	if amountOut.Cmp(orZero(params.AmountOutMin)) < 0 {
		return nil, ErrSlippageExceeded
	}
	if new(big.Int).Add(reserveIn, params.AmountIn).Cmp(maxReserve) > 0 {
		return nil, ErrOverflow
	}

	if err := l.custodian.Pull(ctx, params.InputAsset, params.Caller, params.AmountIn); err != nil {
		return nil, err
	}

	if err := p.applySwapDelta(params.AmountIn, amountOut, params.InputAsset); err != nil {
		l.refund(ctx, params.InputAsset, params.Caller, params.AmountIn)
		return nil, err
	}

	if err := l.custodian.Push(ctx, params.OutputAsset, params.Recipient, amountOut); err != nil {
		if backErr := p.applySwapDelta(amountOut, params.AmountIn, params.OutputAsset); backErr != nil {
			l.logger.Error("rollback swap delta", zap.String("pair", key.Hex()), zap.Error(backErr))
		}
		l.refund(ctx, params.InputAsset, params.Caller, params.AmountIn)
		return nil, err
	}

	l.logger.Info("swap executed",
		zap.String("pair", key.Hex()),
		zap.String("input", params.InputAsset.Hex()),
		zap.Stringer("amount_in", params.AmountIn),
		zap.Stringer("amount_out", amountOut),
		zap.String("recipient", params.Recipient.Hex()),
	)

	return amountOut, nil
}

// GetPrice returns the fixed-point price of the input asset quoted in the
// output asset: reserveOut * 10^18 / reserveIn.
func (l *Ledger) GetPrice(inputAsset, outputAsset common.Address) (*big.Int, error) {
	key, err := pair.KeyOf(inputAsset, outputAsset)
	if err != nil {
		return nil, err
	}

	p := l.lookupPool(key)
	if p == nil {
		return nil, ErrNoReserves
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	reserveIn, reserveOut := p.oriented(inputAsset)
	return PriceOf(reserveIn, reserveOut)
}

// SharesOf returns the holder's claim on the pair, zero for unknown pools.
func (l *Ledger) SharesOf(assetA, assetB, holder common.Address) (*big.Int, error) {
	key, err := pair.KeyOf(assetA, assetB)
	if err != nil {
		return nil, err
	}

	p := l.lookupPool(key)
	if p == nil {
		return new(big.Int), nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.sharesOf(holder)), nil
}

// Snapshot captures one pool's state for persistence and queries.
func (l *Ledger) Snapshot(assetA, assetB common.Address) (model.PoolSnapshot, error) {
	key, err := pair.KeyOf(assetA, assetB)
	if err != nil {
		return model.PoolSnapshot{}, err
	}

	p := l.lookupPool(key)
	if p == nil {
		return model.PoolSnapshot{}, fmt.Errorf("%w: pool %s", ErrNoLiquidity, key.Hex())
	}
	return l.snapshotPool(key, p), nil
}

// Snapshots captures every pool the ledger knows about.
func (l *Ledger) Snapshots() []model.PoolSnapshot {
	l.mu.RLock()
	keys := make([]pair.Key, 0, len(l.pools))
	pools := make([]*pool, 0, len(l.pools))
	for key, p := range l.pools {
		keys = append(keys, key)
		pools = append(pools, p)
	}
	l.mu.RUnlock()

	snapshots := make([]model.PoolSnapshot, 0, len(pools))
	for i, p := range pools {
		snapshots = append(snapshots, l.snapshotPool(keys[i], p))
	}
	return snapshots
}

func (l *Ledger) snapshotPool(key pair.Key, p *pool) model.PoolSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := model.PoolSnapshot{
		Pair:        key.Hex(),
		Asset0:      p.asset0.Hex(),
		Asset1:      p.asset1.Hex(),
		Reserve0:    p.reserve0.String(),
		Reserve1:    p.reserve1.String(),
		TotalShares: p.totalShares.String(),
	}
	for holder, bal := range p.balances {
		if bal.Sign() == 0 {
			continue
		}
		snapshot.Balances = append(snapshot.Balances, model.ShareBalance{
			Pair:   key.Hex(),
			Holder: holder.Hex(),
			Shares: bal.String(),
		})
	}
	return snapshot
}

func (l *Ledger) checkDeadline(deadline int64) error {
	if deadline > 0 && l.now().Unix() > deadline {
		return ErrExpired
	}
	return nil
}

func (l *Ledger) getOrCreatePool(key pair.Key, assetA, assetB common.Address) *pool {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pools[key]
	if !ok {
		asset0, asset1 := pair.Sort(assetA, assetB)
		p = newPool(asset0, asset1)
		l.pools[key] = p
	}
	return p
}

func (l *Ledger) lookupPool(key pair.Key) *pool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pools[key]
}

func (l *Ledger) refund(ctx context.Context, asset, holder common.Address, amount *big.Int) {
	if err := l.custodian.Push(ctx, asset, holder, amount); err != nil {
		l.logger.Error("refund pull",
			zap.String("asset", asset.Hex()),
			zap.String("holder", holder.Hex()),
			zap.Error(err),
		)
	}
}
