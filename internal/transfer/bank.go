package transfer

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Bank is an in-memory Custodian. It tracks per-asset holder balances plus a
// dedicated custody account and is used by the serve command and tests.
type Bank struct {
	mu       sync.Mutex
	custody  common.Address
	balances map[common.Address]map[common.Address]*big.Int
}

// NewBank creates a Bank whose custody account is the given address.
func NewBank(custody common.Address) *Bank {
	return &Bank{
		custody:  custody,
		balances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Balance returns the holder's balance of asset. Never nil.
func (b *Bank) Balance(asset, holder common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balance(asset, holder))
}

// Credit adds amount to the holder's balance of asset.
func (b *Bank) Credit(asset, holder common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	bal := b.balance(asset, holder)
	bal.Add(bal, amount)
}

// Pull moves amount of asset from the holder into custody.
func (b *Bank) Pull(_ context.Context, asset common.Address, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: invalid amount", ErrTransferFailed)
	}
	if amount.Sign() == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bal := b.balance(asset, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: insufficient balance of %s for %s", ErrTransferFailed, asset, from)
	}
	bal.Sub(bal, amount)
	custody := b.balance(asset, b.custody)
	custody.Add(custody, amount)
	return nil
}

// Push moves amount of asset from custody to the holder.
func (b *Bank) Push(_ context.Context, asset common.Address, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: invalid amount", ErrTransferFailed)
	}
	if amount.Sign() == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	custody := b.balance(asset, b.custody)
	if custody.Cmp(amount) < 0 {
		return fmt.Errorf("%w: custody shortfall of %s", ErrTransferFailed, asset)
	}
	custody.Sub(custody, amount)
	bal := b.balance(asset, to)
	bal.Add(bal, amount)
	return nil
}

// balance returns the mutable balance entry, creating it as zero. Callers
// must hold b.mu.
func (b *Bank) balance(asset, holder common.Address) *big.Int {
	holders, ok := b.balances[asset]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		b.balances[asset] = holders
	}
	bal, ok := holders[holder]
	if !ok {
		bal = new(big.Int)
		holders[holder] = bal
	}
	return bal
}

// ParseSeedBalances parses "asset:holder:amount" entries into bank credits.
func ParseSeedBalances(bank *Bank, entries []string) error {
	for _, entry := range entries {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return fmt.Errorf("invalid seed balance %q: want asset:holder:amount", entry)
		}
		if !common.IsHexAddress(parts[0]) {
			return fmt.Errorf("invalid seed asset address %q", parts[0])
		}
		if !common.IsHexAddress(parts[1]) {
			return fmt.Errorf("invalid seed holder address %q", parts[1])
		}
		amount, ok := new(big.Int).SetString(parts[2], 10)
		if !ok || amount.Sign() <= 0 {
			return fmt.Errorf("invalid seed amount %q", parts[2])
		}
		bank.Credit(common.HexToAddress(parts[0]), common.HexToAddress(parts[1]), amount)
	}
	return nil
}
