// Package chainerr classifies every error that crosses a subsystem boundary
// into one of a small set of kinds, so retry policy and HTTP status mapping
// can be driven by classification rather than string matching at each call
// site.
package chainerr

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind is a closed taxonomy of error classifications. Every error the agent
// surfaces past a subsystem boundary carries exactly one Kind.
type Kind string

const (
	// Network covers transient RPC/HTTP failures: retry with backoff,
	// consider endpoint failover.
	Network Kind = "network"
	// Revert covers an on-chain call that reverted: never retried.
	Revert Kind = "revert"
	// Timeout covers a deadline exceeded: retried if budget remains.
	Timeout Kind = "timeout"
	// Validation covers local input that failed a schema check: never
	// retried, surfaced to the caller.
	Validation Kind = "validation"
	// Auth covers missing or invalid credentials: fatal to the operation,
	// the agent itself stays alive.
	Auth Kind = "auth"
	// Resource covers insufficient balance, disk, or gas: surfaced, the
	// affected workflow halts.
	Resource Kind = "resource"
	// NotFound covers an absent entity.
	NotFound Kind = "not_found"
	// Conflict covers a PID lock held, an already-registered node, etc.
	Conflict Kind = "conflict"
	// CircuitOpen covers a breaker preventing a call.
	CircuitOpen Kind = "circuit_open"
)

// httpStatus maps each Kind to the status code the management API uses.
var httpStatus = map[Kind]int{
	Network:     http.StatusBadGateway,
	Revert:      http.StatusUnprocessableEntity,
	Timeout:     http.StatusGatewayTimeout,
	Validation:  http.StatusBadRequest,
	Auth:        http.StatusUnauthorized,
	Resource:    http.StatusConflict,
	NotFound:    http.StatusNotFound,
	Conflict:    http.StatusConflict,
	CircuitOpen: http.StatusServiceUnavailable,
}

// retryable reports whether the Kind's default policy is to retry at all.
// Network and Timeout are retried by the caller's retry policy; every other
// kind fails immediately.
var retryable = map[Kind]bool{
	Network: true,
	Timeout: true,
}

// Error is a classified error carrying a Kind, a message, an optional
// wrapped cause, and optional structured details for logs/API responses.
type Error struct {
	Kind    Kind                   `json:"kind"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails attaches a key/value pair and returns the receiver for
// chaining.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New builds a classified error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a classified error around an existing cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// As extracts a *Error from an error chain.
func As(err error) (*Error, bool) {
	var ce *Error
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or "" if err is not a classified error.
func KindOf(err error) Kind {
	if ce, ok := As(err); ok {
		return ce.Kind
	}
	return ""
}

// HTTPStatus returns the status code the management API should use for err.
// Unclassified errors map to 500.
func HTTPStatus(err error) int {
	if ce, ok := As(err); ok {
		if status, known := httpStatus[ce.Kind]; known {
			return status
		}
	}
	return http.StatusInternalServerError
}

// Retryable reports whether err's Kind is retried by default policy.
// Unclassified errors are treated as non-retryable — an error that was
// never given a chance to be classified should not be retried blindly.
func Retryable(err error) bool {
	if ce, ok := As(err); ok {
		return retryable[ce.Kind]
	}
	return false
}
