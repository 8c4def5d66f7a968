package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"poolledger/internal/model"
	"poolledger/internal/pair"
)

// ReplayOperation re-applies a journaled operation's bookkeeping. The
// recorded amounts are applied verbatim, without re-running amount matching
// or custodian transfers: those already happened when the record was
// written.
func (l *Ledger) ReplayOperation(record model.OperationRecord) error {
	switch record.Kind {
	case model.OpAddLiquidity:
		return l.replayAddLiquidity(record)
	case model.OpRemoveLiquidity:
		return l.replayRemoveLiquidity(record)
	case model.OpSwap:
		return l.replaySwap(record)
	default:
		return fmt.Errorf("unknown operation kind %q at seq %d", record.Kind, record.Seq)
	}
}

func (l *Ledger) replayAddLiquidity(record model.OperationRecord) error {
	assetA, assetB, err := parseAssets(record.AssetA, record.AssetB)
	if err != nil {
		return fmt.Errorf("seq %d: %w", record.Seq, err)
	}
	amountA, err := parseAmount(record.AmountA)
	if err != nil {
		return fmt.Errorf("seq %d amount_a: %w", record.Seq, err)
	}
	amountB, err := parseAmount(record.AmountB)
	if err != nil {
		return fmt.Errorf("seq %d amount_b: %w", record.Seq, err)
	}
	shares, err := parseAmount(record.Shares)
	if err != nil {
		return fmt.Errorf("seq %d shares: %w", record.Seq, err)
	}
	recipient := common.HexToAddress(record.Recipient)

	key, err := pair.KeyOf(assetA, assetB)
	if err != nil {
		return fmt.Errorf("seq %d: %w", record.Seq, err)
	}

	p := l.getOrCreatePool(key, assetA, assetB)
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.applyDeposit(amountA, amountB, assetA); err != nil {
		return fmt.Errorf("seq %d: %w", record.Seq, err)
	}
	p.totalShares.Add(p.totalShares, shares)
	bal := p.sharesOf(recipient)
	bal.Add(bal, shares)
	return nil
}

func (l *Ledger) replayRemoveLiquidity(record model.OperationRecord) error {
	assetA, assetB, err := parseAssets(record.AssetA, record.AssetB)
	if err != nil {
		return fmt.Errorf("seq %d: %w", record.Seq, err)
	}
	amountA, err := parseAmount(record.AmountA)
	if err != nil {
		return fmt.Errorf("seq %d amount_a: %w", record.Seq, err)
	}
	amountB, err := parseAmount(record.AmountB)
	if err != nil {
		return fmt.Errorf("seq %d amount_b: %w", record.Seq, err)
	}
	shares, err := parseAmount(record.Shares)
	if err != nil {
		return fmt.Errorf("seq %d shares: %w", record.Seq, err)
	}
	caller := common.HexToAddress(record.Caller)

	key, err := pair.KeyOf(assetA, assetB)
	if err != nil {
		return fmt.Errorf("seq %d: %w", record.Seq, err)
	}

	p := l.lookupPool(key)
	if p == nil {
		return fmt.Errorf("seq %d: remove from unknown pool %s", record.Seq, key.Hex())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	bal := p.sharesOf(caller)
	if bal.Cmp(shares) < 0 {
		return fmt.Errorf("seq %d: %w", record.Seq, ErrInsufficientShares)
	}
	if err := p.applyWithdrawal(amountA, amountB, assetA); err != nil {
		return fmt.Errorf("seq %d: %w", record.Seq, err)
	}
	bal.Sub(bal, shares)
	p.totalShares.Sub(p.totalShares, shares)
	return nil
}

func (l *Ledger) replaySwap(record model.OperationRecord) error {
	assetIn, assetOut, err := parseAssets(record.AssetIn, record.AssetOut)
	if err != nil {
		return fmt.Errorf("seq %d: %w", record.Seq, err)
	}
	amountIn, err := parseAmount(record.AmountIn)
	if err != nil {
		return fmt.Errorf("seq %d amount_in: %w", record.Seq, err)
	}
	amountOut, err := parseAmount(record.AmountOut)
	if err != nil {
		return fmt.Errorf("seq %d amount_out: %w", record.Seq, err)
	}

	key, err := pair.KeyOf(assetIn, assetOut)
	if err != nil {
		return fmt.Errorf("seq %d: %w", record.Seq, err)
	}

	p := l.lookupPool(key)
	if p == nil {
		return fmt.Errorf("seq %d: swap against unknown pool %s", record.Seq, key.Hex())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.applySwapDelta(amountIn, amountOut, assetIn); err != nil {
		return fmt.Errorf("seq %d: %w", record.Seq, err)
	}
	return nil
}

func parseAssets(a, b string) (common.Address, common.Address, error) {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return common.Address{}, common.Address{}, fmt.Errorf("invalid asset addresses %q, %q", a, b)
	}
	return common.HexToAddress(a), common.HexToAddress(b), nil
}

func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}
