package domain

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var ownerIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,64}$`)

// Account is a balance holder. Balance is never negative and Version grows by
// one on every balance mutation.
type Account struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Balance   Money     `json:"balance"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ValidateOwnerID checks the opaque owner identifier format.
func ValidateOwnerID(ownerID string) error {
	if !ownerIDPattern.MatchString(ownerID) {
		return fmt.Errorf("%w: must be 1-64 characters of letters, digits, '_', '.' or '-'", ErrInvalidOwnerID)
	}
	return nil
}

// NewAccount builds an unsaved account with a fresh id and version 0.
func NewAccount(ownerID string, initial Money, now time.Time) (*Account, error) {
	if err := ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}
	if initial.IsNegative() {
		return nil, fmt.Errorf("%w: initial balance must not be negative", ErrInvalidMoney)
	}
	ts := Timestamp(now)
	return &Account{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Balance:   initial,
		Version:   0,
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}

// Debit removes amount from the balance.
func (a *Account) Debit(amount Money, now time.Time) error {
	if a.Balance < amount {
		return ErrInsufficientFunds
	}
	a.Balance -= amount
	a.touch(now)
	return nil
}

// Credit adds amount to the balance.
func (a *Account) Credit(amount Money, now time.Time) error {
	next, err := a.Balance.add(amount)
	if err != nil {
		return err
	}
	a.Balance = next
	a.touch(now)
	return nil
}

func (a *Account) touch(now time.Time) {
	a.Version++
	a.UpdatedAt = Timestamp(now)
}

// Timestamp normalizes a time to the precision the store keeps.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
