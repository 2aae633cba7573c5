package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("PAY_004", "Account not found", http.StatusNotFound),
			expected: "[PAY_004] Account not found",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_001", "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[SYS_001] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsNilUnwrap(t *testing.T) {
	appErr := New("PAY_002", "test", http.StatusBadRequest)
	assert.Nil(t, appErr.Unwrap())
}

func TestLedgerErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"InsufficientFunds", ErrInsufficientFunds(), "PAY_001", 422},
		{"InvalidAmount", ErrInvalidAmount(), "PAY_002", 400},
		{"Validation", Validation("bad input"), "PAY_002", 400},
		{"TransferInProgress", ErrTransferInProgress(), "PAY_003", 409},
		{"NotFound", ErrNotFound("Account"), "PAY_004", 404},
		{"SelfTransfer", ErrSelfTransfer(), "PAY_008", 400},
		{"IdempotencyMismatch", ErrIdempotencyMismatch(), "PAY_009", 422},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestSystemErrors(t *testing.T) {
	inner := fmt.Errorf("pg: connection closed")

	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"Database", ErrDatabaseError(inner), "SYS_001", 500},
		{"Internal", InternalError(inner), "SYS_001", 500},
		{"Cancelled", ErrRequestCancelled(inner), "SYS_002", 503},
		{"Unavailable", ErrServiceUnavailable(inner), "SYS_003", 503},
		{"Conflict", ErrConcurrencyConflict(inner), "SYS_004", 503},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
			assert.True(t, errors.Is(tt.err, inner))
		})
	}
}

func TestRateLimitError(t *testing.T) {
	err := ErrRateLimitExceeded()
	assert.Equal(t, "RATE_001", err.Code)
	assert.Equal(t, 429, err.HTTPStatus)
}

func TestNotFoundEntity(t *testing.T) {
	err := ErrNotFound("Account")
	assert.Contains(t, err.Message, "Account")
	assert.Equal(t, "PAY_004", err.Code)
}

func TestHasCode(t *testing.T) {
	wrapped := fmt.Errorf("transfer: %w", ErrTransferInProgress())

	assert.True(t, HasCode(wrapped, CodeTransferInProgress))
	assert.False(t, HasCode(wrapped, CodeNotFound))
	assert.False(t, HasCode(errors.New("plain"), CodeNotFound))
	assert.False(t, HasCode(nil, CodeNotFound))
}
