package ledger

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// pool is the accounting record for one unordered asset pair. asset0 sorts
// below asset1; reserves follow that canonical order. The mutex is held for
// the full duration of every mutating operation against the pair.
type pool struct {
	mu sync.Mutex

	asset0 common.Address
	asset1 common.Address

	reserve0    *big.Int
	reserve1    *big.Int
	totalShares *big.Int
	balances    map[common.Address]*big.Int
}

func newPool(asset0, asset1 common.Address) *pool {
	return &pool{
		asset0:      asset0,
		asset1:      asset1,
		reserve0:    new(big.Int),
		reserve1:    new(big.Int),
		totalShares: new(big.Int),
		balances:    make(map[common.Address]*big.Int),
	}
}

// oriented returns the reserves as (reserveFor, reserveOther) relative to the
// given asset. Callers must hold p.mu.
func (p *pool) oriented(asset common.Address) (*big.Int, *big.Int) {
	if asset == p.asset0 {
		return p.reserve0, p.reserve1
	}
	return p.reserve1, p.reserve0
}

// applyDeposit increases both reserves, rejecting any result past the
// fixed-width bound. Callers must hold p.mu.
func (p *pool) applyDeposit(deltaFor, deltaOther *big.Int, asset common.Address) error {
	reserveFor, reserveOther := p.oriented(asset)

	nextFor := new(big.Int).Add(reserveFor, deltaFor)
	nextOther := new(big.Int).Add(reserveOther, deltaOther)
	if nextFor.Cmp(maxReserve) > 0 || nextOther.Cmp(maxReserve) > 0 {
		return ErrOverflow
	}

	reserveFor.Set(nextFor)
	reserveOther.Set(nextOther)
	return nil
}

// applyWithdrawal decreases both reserves. Callers must hold p.mu.
func (p *pool) applyWithdrawal(deltaFor, deltaOther *big.Int, asset common.Address) error {
	reserveFor, reserveOther := p.oriented(asset)

	if deltaFor.Cmp(reserveFor) > 0 || deltaOther.Cmp(reserveOther) > 0 {
		return ErrInsufficientReserves
	}

	reserveFor.Sub(reserveFor, deltaFor)
	reserveOther.Sub(reserveOther, deltaOther)
	return nil
}

// applySwapDelta credits the input-side reserve and debits the output side.
// Callers must hold p.mu.
func (p *pool) applySwapDelta(amountIn, amountOut *big.Int, inputAsset common.Address) error {
	reserveIn, reserveOut := p.oriented(inputAsset)

	next := new(big.Int).Add(reserveIn, amountIn)
	if next.Cmp(maxReserve) > 0 {
		return ErrOverflow
	}
	if amountOut.Cmp(reserveOut) > 0 {
		return ErrInsufficientReserves
	}

	reserveIn.Set(next)
	reserveOut.Sub(reserveOut, amountOut)
	return nil
}

// sharesOf returns the holder's mutable balance entry, creating it as zero.
// Callers must hold p.mu.
func (p *pool) sharesOf(holder common.Address) *big.Int {
	bal, ok := p.balances[holder]
	if !ok {
		bal = new(big.Int)
		p.balances[holder] = bal
	}
	return bal
}
