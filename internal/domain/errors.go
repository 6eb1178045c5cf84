package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Domain errors are typed so adapters can branch on them and so the telegram
// router can derive stable error codes via the Code() string contract.

// InvalidAmountError reports a non-positive or non-numeric quantity where a
// positive amount is required. No state is mutated when it is returned.
type InvalidAmountError struct {
	Raw string
}

func (e *InvalidAmountError) Error() string {
	if e.Raw == "" {
		return "invalid amount"
	}
	return fmt.Sprintf("invalid amount %q", e.Raw)
}

// Code implements the error-code contract used by the telegram router.
func (e *InvalidAmountError) Code() string { return "INVALID_AMOUNT" }

// InsufficientFundsError reports a debit exceeding the balance. Shortfall is
// always Needed minus Balance so adapters can present the exact gap.
type InsufficientFundsError struct {
	Needed    decimal.Decimal
	Balance   decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %s, have %s (short %s)",
		e.Needed, e.Balance, e.Shortfall)
}

func (e *InsufficientFundsError) Code() string { return "INSUFFICIENT_FUNDS" }

// NewInsufficientFunds builds the error with the shortfall precomputed.
func NewInsufficientFunds(needed, balance decimal.Decimal) *InsufficientFundsError {
	return &InsufficientFundsError{
		Needed:    needed,
		Balance:   balance,
		Shortfall: needed.Sub(balance),
	}
}

// InvalidDestinationError reports a destination address that fails format
// validation. The conversation does not advance when it is returned.
type InvalidDestinationError struct {
	Input  string
	Reason string
}

func (e *InvalidDestinationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid destination %q", e.Input)
	}
	return fmt.Sprintf("invalid destination %q: %s", e.Input, e.Reason)
}

func (e *InvalidDestinationError) Code() string { return "INVALID_DESTINATION" }

// AccountNotInitializedError reports an operation for an identity that never
// initialized an account. Accounts are only created via the registry's
// Ensure; nothing creates them implicitly.
type AccountNotInitializedError struct {
	ID Identity
}

func (e *AccountNotInitializedError) Error() string {
	return fmt.Sprintf("account %d not initialized", e.ID)
}

func (e *AccountNotInitializedError) Code() string { return "ACCOUNT_NOT_INITIALIZED" }

// UpstreamUnavailableError reports a failed or timed-out energy platform
// call. Local state is never mutated when it is returned.
type UpstreamUnavailableError struct {
	Op  string
	Err error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("energy platform unavailable during %s: %v", e.Op, e.Err)
}

func (e *UpstreamUnavailableError) Code() string { return "UPSTREAM_UNAVAILABLE" }

func (e *UpstreamUnavailableError) Unwrap() error { return e.Err }

// IsInvalidAmount reports whether err is an InvalidAmountError.
func IsInvalidAmount(err error) bool {
	var target *InvalidAmountError
	return errors.As(err, &target)
}

// IsInsufficientFunds reports whether err is an InsufficientFundsError and
// returns it for shortfall inspection.
func IsInsufficientFunds(err error) (*InsufficientFundsError, bool) {
	var target *InsufficientFundsError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsInvalidDestination reports whether err is an InvalidDestinationError.
func IsInvalidDestination(err error) bool {
	var target *InvalidDestinationError
	return errors.As(err, &target)
}

// IsAccountNotInitialized reports whether err is an AccountNotInitializedError.
func IsAccountNotInitialized(err error) bool {
	var target *AccountNotInitializedError
	return errors.As(err, &target)
}

// IsUpstreamUnavailable reports whether err is an UpstreamUnavailableError.
func IsUpstreamUnavailable(err error) bool {
	var target *UpstreamUnavailableError
	return errors.As(err, &target)
}
