package util

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes form a closed taxonomy; the HTTP boundary matches on these.
const (
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeAccountInactive    = "ACCOUNT_INACTIVE"
	CodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeConflict           = "CONFLICT"
	CodeInternalError      = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewInvalidCredentials covers both unknown identifier and wrong secret.
// The two cases are deliberately indistinguishable to callers.
func NewInvalidCredentials() error {
	return NewDomainError(CodeInvalidCredentials, "Invalid credentials", http.StatusUnauthorized, nil)
}

// NewAccountLocked carries the remaining lockout duration as a retry hint.
func NewAccountLocked(retryAfter time.Duration) error {
	return &DomainError{
		Code:       CodeAccountLocked,
		Message:    fmt.Sprintf("Account temporarily locked. Try again in %s", formatRetryAfter(retryAfter)),
		HTTPStatus: http.StatusUnauthorized,
		Details:    map[string]any{"retry_after_seconds": int(retryAfter.Seconds())},
	}
}

// NewAccountInactive rejects disabled accounts.
func NewAccountInactive() error {
	return NewDomainError(CodeAccountInactive, "Account is deactivated", http.StatusUnauthorized, nil)
}

// NewAccountNotFound covers tokens referencing a deleted account.
func NewAccountNotFound() error {
	return NewDomainError(CodeAccountNotFound, "Not authorized", http.StatusUnauthorized, nil)
}

// NewInvalidToken covers signature and format failures.
func NewInvalidToken() error {
	return NewDomainError(CodeInvalidToken, "Not authorized", http.StatusUnauthorized, nil)
}

// NewTokenExpired covers tokens past their expiry.
func NewTokenExpired() error {
	return NewDomainError(CodeTokenExpired, "Not authorized", http.StatusUnauthorized, nil)
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternalError,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternalError,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

func formatRetryAfter(d time.Duration) string {
	if d <= 0 {
		return "a moment"
	}
	minutes := int((d + time.Minute - 1) / time.Minute)
	if minutes <= 1 {
		return "1 minute"
	}
	if minutes < 60 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	hours := (minutes + 59) / 60
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}
