package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels callers match with errors.Is. Every AppError wraps one of them.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyExists  = errors.New("resource already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal error")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
)

type kind struct {
	sentinel error
	code     string
	status   int
	// generic is shown when a bare sentinel reaches the client.
	generic string
}

var (
	kindNotFound    = kind{ErrNotFound, "NOT_FOUND", http.StatusNotFound, "resource not found"}
	kindExists      = kind{ErrAlreadyExists, "ALREADY_EXISTS", http.StatusConflict, "resource already exists"}
	kindInvalid     = kind{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest, ""}
	kindUnauth      = kind{ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized, "authentication required"}
	kindForbidden   = kind{ErrForbidden, "FORBIDDEN", http.StatusForbidden, "forbidden"}
	kindConflict    = kind{ErrConflict, "CONFLICT", http.StatusConflict, "conflicting state"}
	kindUnavailable = kind{ErrServiceUnavail, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, "service temporarily unavailable"}
	kindInternal    = kind{ErrInternal, "INTERNAL_ERROR", http.StatusInternalServerError, "an internal error occurred"}
)

// Order matters: the first sentinel found in a chain decides the kind.
var kinds = []kind{kindNotFound, kindExists, kindInvalid, kindUnauth, kindForbidden, kindConflict, kindUnavailable}

// AppError is an error with a stable public code, a user-facing message and
// the HTTP status it maps to.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil && !isSentinel(e.Err) {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func isSentinel(err error) bool {
	for _, k := range append(kinds, kindInternal) {
		if err == k.sentinel {
			return true
		}
	}
	return false
}

func newError(k kind, message string, cause error) *AppError {
	err := k.sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %w", k.sentinel, cause)
	}
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: err}
}

func NotFound(resource, id string) *AppError {
	return newError(kindNotFound, fmt.Sprintf("%s with id %s not found", resource, id), nil)
}

func AlreadyExists(resource, field, value string) *AppError {
	return newError(kindExists, fmt.Sprintf("%s with %s %q already exists", resource, field, value), nil)
}

func InvalidInput(message string) *AppError { return newError(kindInvalid, message, nil) }

func Unauthorized(message string) *AppError { return newError(kindUnauth, message, nil) }

func Forbidden(message string) *AppError { return newError(kindForbidden, message, nil) }

// Conflict reports a state conflict, such as a second concurrent submission.
func Conflict(message string) *AppError { return newError(kindConflict, message, nil) }

// Unavailable reports a dependency that cannot be reached. cause may be nil.
func Unavailable(message string, cause error) *AppError {
	return newError(kindUnavailable, message, cause)
}

// Internal hides err behind a generic message.
func Internal(err error) *AppError {
	return &AppError{Code: kindInternal.code, Message: kindInternal.generic, Status: kindInternal.status, Err: err}
}

// Public resolves err to what a client may see. An AppError in the chain is
// returned as is; a bare sentinel gets its generic message (invalid input
// keeps the error text, which is written for the user); anything else is
// Internal.
func Public(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, k := range kinds {
		if !errors.Is(err, k.sentinel) {
			continue
		}
		msg := k.generic
		if msg == "" {
			msg = err.Error()
		}
		return &AppError{Code: k.code, Message: msg, Status: k.status, Err: err}
	}
	return Internal(err)
}

// Message returns the user-facing text of err: the AppError message when one
// is in the chain, otherwise the plain error string.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// HTTPStatus returns the HTTP status code for err.
func HTTPStatus(err error) int {
	return Public(err).Status
}
