package server

import (
	"errors"
	"net/http"

	"poolledger/internal/ledger"
	"poolledger/internal/pair"
	"poolledger/internal/transfer"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// statusOf maps ledger failures to HTTP statuses. Accounting preconditions
// are client errors; transfer failures are conflicts; the rest is internal.
func statusOf(err error) int {
	switch {
	case errors.Is(err, pair.ErrInvalidPair),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrExpired),
		errors.Is(err, ledger.ErrSlippageExceeded),
		errors.Is(err, ledger.ErrNoLiquidity),
		errors.Is(err, ledger.ErrInsufficientShares),
		errors.Is(err, ledger.ErrNoReserves),
		errors.Is(err, ledger.ErrOverflow),
		errors.Is(err, ledger.ErrInsufficientReserves):
		return http.StatusBadRequest
	case errors.Is(err, transfer.ErrTransferFailed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
