package pair

import (
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidPair is returned when the two asset identifiers are equal.
var ErrInvalidPair = errors.New("invalid pair: identical assets")

// Key identifies an unordered asset pair. It is derived from the two asset
// addresses sorted ascending, so KeyOf(a, b) == KeyOf(b, a).
type Key = common.Hash

// Sort returns the two assets in canonical ascending order.
func Sort(assetA, assetB common.Address) (common.Address, common.Address) {
	if bytes.Compare(assetA.Bytes(), assetB.Bytes()) < 0 {
		return assetA, assetB
	}
	return assetB, assetA
}

// KeyOf derives the canonical key for an unordered asset pair.
func KeyOf(assetA, assetB common.Address) (Key, error) {
	if assetA == assetB {
		return Key{}, ErrInvalidPair
	}
	asset0, asset1 := Sort(assetA, assetB)
	return crypto.Keccak256Hash(asset0.Bytes(), asset1.Bytes()), nil
}
