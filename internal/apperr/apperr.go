// Package apperr defines the platform error taxonomy and its HTTP mapping.
//
// Domain packages return sentinel errors wrapped in *Error with a Kind;
// handlers call Respond to convert them into structured JSON responses with
// a machine-checkable code. Storage errors never leak to clients raw.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kalvisk/namura/internal/validation"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	KindNotFound      Kind = "not_found"      // resource absent or membership missing (merged on purpose)
	KindForbidden     Kind = "forbidden"      // resolved org, authenticated principal, policy denied
	KindValidation    Kind = "validation"     // field-level, locally recoverable
	KindStateConflict Kind = "state_conflict" // transition invalid for current status
	KindLimitExceeded Kind = "limit_exceeded" // subscription gate denial
	KindDependency    Kind = "dependency"     // notification dispatch failure, non-fatal
	KindInternal      Kind = "internal"
)

// Error carries a kind, a user-facing message, and optional field details.
type Error struct {
	Kind    Kind
	Message string
	Fields  validation.FieldErrors
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds a not-found error. Used both for absent resources and for
// principals lacking membership, so existence is not leaked.
func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

// Forbidden builds a policy-denial error.
func Forbidden(msg string) *Error { return &Error{Kind: KindForbidden, Message: msg} }

// Validation builds a field-level validation error.
func Validation(msg string, fields validation.FieldErrors) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// StateConflict builds a state-machine violation error.
func StateConflict(msg string) *Error { return &Error{Kind: KindStateConflict, Message: msg} }

// LimitExceeded builds a subscription-gate denial error.
func LimitExceeded(msg string) *Error { return &Error{Kind: KindLimitExceeded, Message: msg} }

// Internal wraps an unexpected error.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

func statusFor(k Kind) int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindStateConflict, KindLimitExceeded:
		return http.StatusConflict
	case KindDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err as a structured JSON response. Unknown errors become
// opaque 500s.
func Respond(c *gin.Context, err error) {
	var ae *Error
	if !errors.As(err, &ae) {
		ae = Internal("unexpected error", err)
	}

	body := gin.H{
		"error":   string(ae.Kind),
		"message": ae.Message,
	}
	if len(ae.Fields) > 0 {
		body["details"] = ae.Fields
	}
	c.JSON(statusFor(ae.Kind), body)
}
