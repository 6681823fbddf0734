package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind groups error codes by who is at fault.
type Kind int

const (
	KindStoreFailure Kind = iota
	KindNotFound
	KindPolicyViolation
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPolicyViolation:
		return "policy_violation"
	case KindValidation:
		return "validation"
	default:
		return "store_failure"
	}
}

type ErrorCode string

const (
	AccountNotFound     ErrorCode = "account_not_found"
	TransactionNotFound ErrorCode = "transaction_not_found"
	AccountSuspended    ErrorCode = "account_suspended"
	InsufficientBalance ErrorCode = "insufficient_balance"
	DuplicateAccount    ErrorCode = "duplicate_account"
	InvalidAmount       ErrorCode = "invalid_amount"
	InvalidInput        ErrorCode = "invalid_input"
	InvalidAccountID    ErrorCode = "invalid_account_id"
	ValidationError     ErrorCode = "validation_error"
	BalanceUpdateFailed ErrorCode = "balance_update_failed"
	LockUnavailable     ErrorCode = "lock_unavailable"
	InternalError       ErrorCode = "internal_error"
)

type AppError struct {
	Kind    Kind      `json:"-"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so predefined values can be
// used as errors.Is targets after WithDetails or Wrap.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func NewAppError(kind Kind, code ErrorCode, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(kind Kind, code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetails returns a copy of e carrying details.
func (e *AppError) WithDetails(details string) *AppError {
	c := *e
	c.Details = details
	return &c
}

// Wrap returns a copy of e with err as its cause.
func (e *AppError) Wrap(err error) *AppError {
	c := *e
	c.Err = err
	if c.Details == "" && err != nil {
		c.Details = err.Error()
	}
	return &c
}

func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case AccountSuspended:
		return http.StatusForbidden
	case DuplicateAccount:
		return http.StatusConflict
	case LockUnavailable:
		return http.StatusServiceUnavailable
	}

	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindPolicyViolation, KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// StoreFailure wraps an opaque collaborator error.
func StoreFailure(message string, err error) *AppError {
	return NewAppError(KindStoreFailure, InternalError, message).Wrap(err)
}

// Predefined errors for common cases
var (
	ErrAccountNotFound     = NewAppError(KindNotFound, AccountNotFound, "account not found")
	ErrTransactionNotFound = NewAppError(KindNotFound, TransactionNotFound, "transaction not found")
	ErrAccountSuspended    = NewAppError(KindPolicyViolation, AccountSuspended, "account is suspended")
	ErrInsufficientBalance = NewAppError(KindPolicyViolation, InsufficientBalance, "insufficient balance")
	ErrDuplicateAccount    = NewAppError(KindPolicyViolation, DuplicateAccount, "account already exists")
	ErrInvalidAmount       = NewAppError(KindValidation, InvalidAmount, "amount must be at least 0.01")
	ErrInvalidAccountID    = NewAppError(KindValidation, InvalidAccountID, "invalid account id")
	ErrBalanceUpdateFailed = NewAppError(KindStoreFailure, BalanceUpdateFailed, "transaction recorded but balance update failed")
	ErrLockUnavailable     = NewAppError(KindStoreFailure, LockUnavailable, "account is busy, try again")
)

// As extracts an *AppError from err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
