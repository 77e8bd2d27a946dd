package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel error kinds. Stores return these directly; services wrap them in an
// AppError so errors.Is still matches the kind.
var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrValidation           = errors.New("validation failed")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrTierNotFound         = errors.New("tier not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrAlreadySubscribed    = errors.New("already subscribed")
	ErrTierInUse            = errors.New("tier has active subscribers")
	ErrConflict             = errors.New("conflict")
	ErrPaymentDeclined      = errors.New("payment declined")
	ErrSweepInProgress      = errors.New("sweep already in progress")
)

// AppError is a structured application error with HTTP status code.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
	Kind    error  `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches the error kind, so errors.Is(err, ErrInsufficientFunds) works on
// a wrapped AppError.
func (e *AppError) Is(target error) bool {
	return e.Kind != nil && e.Kind == target
}

// Common error constructors.

func ErrNotFound(kind error, msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: msg, Kind: kind}
}

func Unauthorized(msg string) *AppError {
	return &AppError{Code: http.StatusUnauthorized, Message: msg, Kind: ErrUnauthorized}
}

func Forbidden(msg string) *AppError {
	return &AppError{Code: http.StatusForbidden, Message: msg, Kind: ErrForbidden}
}

func ErrBadRequest(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg, Kind: ErrValidation}
}

func Validation(msg string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Message: msg, Kind: ErrValidation}
}

func InvalidAmount(msg string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Message: msg, Kind: ErrInvalidAmount}
}

func InsufficientFunds(msg string) *AppError {
	return &AppError{Code: http.StatusPaymentRequired, Message: msg, Kind: ErrInsufficientFunds}
}

func PaymentDeclined(err error) *AppError {
	return &AppError{Code: http.StatusPaymentRequired, Message: "payment declined", Kind: ErrPaymentDeclined, Err: err}
}

func Conflict(kind error, msg string) *AppError {
	return &AppError{Code: http.StatusConflict, Message: msg, Kind: kind}
}

func ErrInternal(msg string, err error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Message: msg, Err: err}
}

// AsAppError attempts to extract an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// FromStoreError maps a store sentinel onto its AppError. Unknown errors
// become internal errors carrying msg.
func FromStoreError(err error, msg string) error {
	if _, ok := AsAppError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return InsufficientFunds("insufficient balance")
	case errors.Is(err, ErrTierNotFound):
		return ErrNotFound(ErrTierNotFound, "tier not found")
	case errors.Is(err, ErrSubscriptionNotFound):
		return ErrNotFound(ErrSubscriptionNotFound, "subscription not found")
	case errors.Is(err, ErrUserNotFound):
		return ErrNotFound(ErrUserNotFound, "user not found")
	case errors.Is(err, ErrAlreadySubscribed):
		return Conflict(ErrAlreadySubscribed, "already subscribed to this tier")
	case errors.Is(err, ErrTierInUse):
		return Conflict(ErrTierInUse, "tier has active subscribers")
	case errors.Is(err, ErrConflict):
		return Conflict(ErrConflict, "conflicting update, retry")
	}
	return ErrInternal(msg, err)
}
