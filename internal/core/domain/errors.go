package domain

import "errors"

var (
	// ErrInsufficientFunds is returned by Account.Debit when the balance would go negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrBalanceOverflow is returned when a credit would exceed the Money range.
	ErrBalanceOverflow = errors.New("balance overflow")
	ErrInvalidMoney    = errors.New("invalid money amount")
	ErrInvalidOwnerID  = errors.New("invalid owner id")

	// ErrVersionConflict signals a failed compare-and-swap on an account version.
	ErrVersionConflict = errors.New("account version conflict")
	// ErrDuplicateIdempotencyToken signals that another transaction already claimed the token.
	ErrDuplicateIdempotencyToken = errors.New("duplicate idempotency token")
	// ErrTransactionFinalized signals an attempt to change a terminal transaction.
	ErrTransactionFinalized = errors.New("transaction already finalized")
)
