package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // wrapped internal error, not exposed to the client
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

// ---- Ledger & Funds (FND) ----

func ErrInsufficientFunds() *AppError {
	return New("FND_001", "Insufficient balance", http.StatusPaymentRequired)
}

func ErrInvalidAmount() *AppError {
	return New("FND_002", "Amount must be positive", http.StatusBadRequest)
}

func ErrInvalidEntryType() *AppError {
	return New("FND_003", "Unknown ledger entry type", http.StatusBadRequest)
}

// ---- Resources (RES) ----

func ErrNotFound(entity string) *AppError {
	return New("RES_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- State machine (STA) ----

func ErrInvalidState(message string) *AppError {
	return New("STA_001", message, http.StatusConflict)
}

func ErrAlreadyConfirmed() *AppError {
	return New("STA_002", "Profit already confirmed for this order", http.StatusConflict)
}

func ErrTerminalState() *AppError {
	return New("STA_003", "Order is already in a terminal state", http.StatusConflict)
}

func ErrAlreadyReviewed() *AppError {
	return New("STA_004", "Request has already been reviewed", http.StatusConflict)
}

// ---- Access (ACC) ----

func ErrForbidden(message string) *AppError {
	return New("ACC_001", message, http.StatusForbidden)
}

func ErrNotYours() *AppError {
	return New("ACC_002", "Resource does not belong to this merchant", http.StatusForbidden)
}

func ErrWithdrawalForbidden() *AppError {
	return New("ACC_003", "Withdrawal is forbidden for this account", http.StatusForbidden)
}

func ErrWrongFundsPassword() *AppError {
	return New("ACC_004", "Incorrect funds password", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("ACC_005", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Validation (VAL) ----

func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

// ---- Rate limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
