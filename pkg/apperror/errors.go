package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

const (
	CodeInsufficientFunds   = "PAY_001"
	CodeValidation          = "PAY_002"
	CodeTransferInProgress  = "PAY_003"
	CodeNotFound            = "PAY_004"
	CodeSelfTransfer        = "PAY_008"
	CodeIdempotencyMismatch = "PAY_009"
	CodeRateLimited         = "RATE_001"
	CodeStorageFailure      = "SYS_001"
	CodeRequestCancelled    = "SYS_002"
	CodeUnavailable         = "SYS_003"
	CodeConcurrencyConflict = "SYS_004"
)

// ---- Ledger Business Logic (PAY) ----

func ErrInsufficientFunds() *AppError {
	return New(CodeInsufficientFunds, "Insufficient balance in source account", http.StatusUnprocessableEntity)
}

func ErrInvalidAmount() *AppError {
	return New(CodeValidation, "Amount must be positive with at most two decimal places", http.StatusBadRequest)
}

func ErrTransferInProgress() *AppError {
	return New(CodeTransferInProgress, "Transfer with this idempotency token is still in progress", http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrSelfTransfer() *AppError {
	return New(CodeSelfTransfer, "Source and destination accounts must differ", http.StatusBadRequest)
}

func ErrIdempotencyMismatch() *AppError {
	return New(CodeIdempotencyMismatch, "Idempotency token was already used with different parameters", http.StatusUnprocessableEntity)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap(CodeStorageFailure, "Internal database error", http.StatusInternalServerError, err)
}

func ErrRequestCancelled(err error) *AppError {
	return Wrap(CodeRequestCancelled, "Request cancelled", http.StatusServiceUnavailable, err)
}

func ErrServiceUnavailable(err error) *AppError {
	return Wrap(CodeUnavailable, "Service unavailable", http.StatusServiceUnavailable, err)
}

func ErrConcurrencyConflict(err error) *AppError {
	return Wrap(CodeConcurrencyConflict, "Transfer could not be applied due to concurrent updates, retry later", http.StatusServiceUnavailable, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeStorageFailure, "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a PAY_002-style validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}
