package domain

import (
	"errors"
	"fmt"
)

// Policy violations. Fatal and never retried; no ledger row is created.
var (
	// ErrInsufficientBalance is returned when a sell finds no tokens to sell.
	ErrInsufficientBalance = errors.New("insufficient token balance")

	// ErrAmountTooSmall is returned when the requested portion rounds to zero.
	ErrAmountTooSmall = errors.New("trade amount too small")
)

var (
	// ErrInvalidInput is returned when a request fails basic validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotLanded is returned when an accepted bundle did not land within the
	// poll window. Funds may still move later; reconcile, do not resubmit.
	ErrNotLanded = errors.New("bundle not landed")
)

// QuoteError reports an unusable response from the route service.
// No state has been mutated when it is returned.
type QuoteError struct {
	Reason string
}

func (e *QuoteError) Error() string {
	return fmt.Sprintf("quote failed: %s", e.Reason)
}

// RelayRejectedError carries the relay's error message verbatim.
type RelayRejectedError struct {
	Message string
}

func (e *RelayRejectedError) Error() string {
	return fmt.Sprintf("relay rejected: %s", e.Message)
}

// IsQuoteError reports whether err wraps a *QuoteError.
func IsQuoteError(err error) bool {
	var qe *QuoteError
	return errors.As(err, &qe)
}

// IsRelayRejected reports whether err wraps a *RelayRejectedError.
func IsRelayRejected(err error) bool {
	var re *RelayRejectedError
	return errors.As(err, &re)
}
