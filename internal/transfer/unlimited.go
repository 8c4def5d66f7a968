package transfer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Unlimited is a Custodian that accepts every movement. It backs journal
// replay, where the original transfers already happened and only the
// bookkeeping is being reconstructed.
type Unlimited struct{}

func (Unlimited) Pull(context.Context, common.Address, common.Address, *big.Int) error {
	return nil
}

func (Unlimited) Push(context.Context, common.Address, common.Address, *big.Int) error {
	return nil
}
