package service

import (
	"errors"
)

// Expected, caller-recoverable failures. Handlers map these to business
// codes; anything else is an internal error.
var (
	ErrInvalidAmount     = errors.New("wallet: invalid amount")
	ErrInvalidDuration   = errors.New("wallet: invalid duration")
	ErrInsufficientFunds = errors.New("wallet: insufficient funds, top up your wallet")
	ErrAlreadyActive     = errors.New("wallet: entitlement already active")
	ErrInvalidBoostTier  = errors.New("wallet: invalid boost tier")
	ErrNotAuthorized     = errors.New("wallet: not authorized")
	ErrNotFound          = errors.New("wallet: not found")
	ErrInvalidTransition = errors.New("wallet: invalid status transition")
	ErrNotRefundable     = errors.New("wallet: transaction is not refundable")
	ErrAlreadyRefunded   = errors.New("wallet: transaction already refunded")
	ErrLockBusy          = errors.New("wallet: resource busy, retry later")
)

// IsBusinessError reports whether err is one of the expected failures above.
func IsBusinessError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrInvalidDuration, ErrInsufficientFunds, ErrAlreadyActive,
		ErrInvalidBoostTier, ErrNotAuthorized, ErrNotFound, ErrInvalidTransition,
		ErrNotRefundable, ErrAlreadyRefunded, ErrLockBusy,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
