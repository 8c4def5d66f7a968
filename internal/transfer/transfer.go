package transfer

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrTransferFailed is returned when an asset movement cannot be completed,
// either because the external holder lacks balance or because pool custody
// is short. Callers must treat any wrapped occurrence as the operation
// having moved no value.
var ErrTransferFailed = errors.New("transfer failed")

// Custodian moves asset balances between external holders and pool custody.
// Both operations are synchronous and all-or-nothing: on error no value has
// moved.
type Custodian interface {
	// Pull moves amount of asset from an external holder into pool custody.
	Pull(ctx context.Context, asset common.Address, from common.Address, amount *big.Int) error
	// Push moves amount of asset out of pool custody to an external holder.
	Push(ctx context.Context, asset common.Address, to common.Address, amount *big.Int) error
}
