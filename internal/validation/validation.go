// Package validation provides field-level input validation for the API.
package validation

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kalvisk/namura/internal/money"
)

// MaxRequestSize is the maximum request body size (1MB).
const MaxRequestSize = 1 << 20

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// DateFormat is the wire format for calendar dates.
const DateFormat = "2006-01-02"

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// SanitizeString trims whitespace, strips null bytes and limits length.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// FieldError describes a single invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors is a collection of field errors.
type FieldErrors []FieldError

// Error implements the error interface.
func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Add appends an error for field.
func (e *FieldErrors) Add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

// Validate runs validators and collects errors.
func Validate(validators ...func() *FieldError) FieldErrors {
	var errs FieldErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks that a field is non-empty.
func Required(field, value string) func() *FieldError {
	return func() *FieldError {
		if strings.TrimSpace(value) == "" {
			return &FieldError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidEmail checks an optional email field.
func ValidEmail(field, value string) func() *FieldError {
	return func() *FieldError {
		if value == "" {
			return nil // use Required for required fields
		}
		if !emailRegex.MatchString(value) {
			return &FieldError{Field: field, Message: "must be a valid email address"}
		}
		return nil
	}
}

// ValidDate checks an optional YYYY-MM-DD field.
func ValidDate(field, value string) func() *FieldError {
	return func() *FieldError {
		if value == "" {
			return nil
		}
		if _, err := time.Parse(DateFormat, value); err != nil {
			return &FieldError{Field: field, Message: "must be a date in YYYY-MM-DD format"}
		}
		return nil
	}
}

// ValidAmount checks an optional decimal money field.
func ValidAmount(field, value string) func() *FieldError {
	return func() *FieldError {
		if value == "" {
			return nil
		}
		if _, err := money.Parse(value); err != nil {
			return &FieldError{Field: field, Message: "must be a decimal amount with at most two decimal places"}
		}
		return nil
	}
}

// NonNegativeAmount checks an optional money field that must not be negative.
func NonNegativeAmount(field, value string) func() *FieldError {
	return func() *FieldError {
		if value == "" {
			return nil
		}
		c, err := money.Parse(value)
		if err != nil {
			return &FieldError{Field: field, Message: "must be a decimal amount with at most two decimal places"}
		}
		if c < 0 {
			return &FieldError{Field: field, Message: "must not be negative"}
		}
		return nil
	}
}
