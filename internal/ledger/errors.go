package ledger

import "errors"

var (
	// ErrExpired means the operation deadline passed before execution.
	ErrExpired = errors.New("deadline expired")
	// ErrOverflow means a reserve would exceed its fixed-width bound.
	ErrOverflow = errors.New("reserve overflow")
	// ErrInsufficientReserves means a withdrawal or swap output exceeds the
	// current reserve.
	ErrInsufficientReserves = errors.New("insufficient reserves")
	// ErrSlippageExceeded means a computed amount fell below its minimum.
	ErrSlippageExceeded = errors.New("slippage exceeded")
	// ErrNoLiquidity means the pool has no outstanding shares.
	ErrNoLiquidity = errors.New("no liquidity")
	// ErrInsufficientShares means the caller holds fewer shares than requested.
	ErrInsufficientShares = errors.New("insufficient shares")
	// ErrInvalidAmount means an amount or reserve is zero or negative.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNoReserves means a price was requested for an empty pool.
	ErrNoReserves = errors.New("no reserves")
)
