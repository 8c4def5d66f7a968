package ledger

import "math/big"

const (
	// Swap fee: 0.3% taken from the input side, retained by the pool.
	feeNumerator   = 997
	feeDenominator = 1000

	// PriceDecimals is the fixed-point scale of GetPrice results.
	PriceDecimals = 18
)

var (
	feeMul = big.NewInt(feeNumerator)
	feeDen = big.NewInt(feeDenominator)

	// priceScale is 10^PriceDecimals.
	priceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(PriceDecimals), nil)

	// maxReserve bounds each reserve to the uint112 range. Accumulation past
	// it is rejected, never wrapped.
	maxReserve = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 112), big.NewInt(1))
)

// GetAmountOut prices a swap along the constant-product curve with the fee
// applied to the input side, truncating at every division:
//
//	out = (in*997*reserveOut) / (reserveIn*1000 + in*997)
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if !positive(amountIn) || !positive(reserveIn) || !positive(reserveOut) {
		return nil, ErrInvalidAmount
	}

	inWithFee := new(big.Int).Mul(amountIn, feeMul)
	numerator := new(big.Int).Mul(inWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, feeDen)
	denominator.Add(denominator, inWithFee)
	return numerator.Div(numerator, denominator), nil
}

// quote converts amountA into the matching amount of the other asset at the
// current reserve ratio, truncating.
func quote(amountA, reserveA, reserveB *big.Int) *big.Int {
	matched := new(big.Int).Mul(amountA, reserveB)
	return matched.Div(matched, reserveA)
}

// PriceOf returns reserveOut scaled by 10^PriceDecimals over reserveIn.
func PriceOf(reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if !positive(reserveIn) || !positive(reserveOut) {
		return nil, ErrNoReserves
	}
	price := new(big.Int).Mul(reserveOut, priceScale)
	return price.Div(price, reserveIn), nil
}

func positive(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}

func nonNegative(amount *big.Int) bool {
	return amount == nil || amount.Sign() >= 0
}

// orZero treats a nil bound as zero.
func orZero(amount *big.Int) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	return amount
}
