// Package apperr is the error taxonomy shared by the services and the HTTP layer.
// Every sentinel maps to one stable code and one HTTP status.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
	ErrValidation         = errors.New("validation error")
	ErrGatewayUnavailable = errors.New("ai responder unavailable")
	ErrGatewayTimeout     = errors.New("ai responder timed out")
	ErrStorage            = errors.New("storage error")
	ErrNotFound           = errors.New("not found")
)

type mapping struct {
	target error
	code   string
	status int
}

var table = []mapping{
	{ErrDuplicateUsername, "DUPLICATE_USERNAME", http.StatusBadRequest},
	{ErrInvalidCredentials, "INVALID_CREDENTIALS", http.StatusUnauthorized},
	{ErrExpiredToken, "EXPIRED_TOKEN", http.StatusUnauthorized},
	{ErrInvalidToken, "INVALID_TOKEN", http.StatusUnauthorized},
	{ErrValidation, "VALIDATION_ERROR", http.StatusBadRequest},
	{ErrGatewayTimeout, "GATEWAY_TIMEOUT", http.StatusGatewayTimeout},
	{ErrGatewayUnavailable, "GATEWAY_UNAVAILABLE", http.StatusBadGateway},
	{ErrStorage, "STORAGE_ERROR", http.StatusInternalServerError},
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound},
}

const internalCode = "INTERNAL_ERROR"

// Code returns the stable error code for err.
func Code(err error) string {
	for _, m := range table {
		if errors.Is(err, m.target) {
			return m.code
		}
	}
	return internalCode
}

// Status returns the HTTP status for err; unknown errors are 500.
func Status(err error) int {
	for _, m := range table {
		if errors.Is(err, m.target) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the caller may safely resend the same request.
func Retryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable) || errors.Is(err, ErrGatewayTimeout) || errors.Is(err, ErrStorage)
}

// Validation wraps a human readable reason as ErrValidation.
func Validation(reason string) error {
	return &validationError{reason: reason}
}

type validationError struct {
	reason string
}

func (e *validationError) Error() string { return e.reason }

func (e *validationError) Unwrap() error { return ErrValidation }

// Gateway classifies a responder failure as timeout or unavailable.
func Gateway(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrGatewayTimeout) || errors.Is(err, ErrGatewayUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &wrapped{kind: ErrGatewayTimeout, cause: err}
	}
	return &wrapped{kind: ErrGatewayUnavailable, cause: err}
}

// Storage marks err as a persistence failure.
func Storage(err error) error {
	if err == nil || errors.Is(err, ErrStorage) {
		return err
	}
	return &wrapped{kind: ErrStorage, cause: err}
}

type wrapped struct {
	kind  error
	cause error
}

func (w *wrapped) Error() string { return w.kind.Error() + ": " + w.cause.Error() }

func (w *wrapped) Unwrap() []error { return []error{w.kind, w.cause} }
