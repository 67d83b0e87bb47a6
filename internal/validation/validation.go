package validation

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// FieldError represents a structured validation error for one field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors collects multiple field errors.
type Errors struct {
	Errors []FieldError `json:"errors"`
}

func (ve *Errors) Add(field, message string) {
	ve.Errors = append(ve.Errors, FieldError{Field: field, Message: message})
}

func (ve *Errors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *Errors) Error() string {
	msgs := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		msgs[i] = e.Field + ": " + e.Message
	}
	return strings.Join(msgs, "; ")
}

// Require checks a required string field is non-empty.
func Require(ve *Errors, field, value string) {
	if strings.TrimSpace(value) == "" {
		ve.Add(field, "is required")
	}
}

// Enum checks a field is one of allowed values. Empty values pass; combine
// with Require when the field is mandatory.
func Enum(ve *Errors, field, value string, allowed []string) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	ve.Add(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

// Date checks a field is a valid date (YYYY-MM-DD) or datetime.
func Date(ve *Errors, field, value string) {
	if value == "" {
		return
	}
	if _, err := time.Parse("2006-01-02", value); err == nil {
		return
	}
	if _, err := time.Parse("2006-01-02 15:04:05", value); err == nil {
		return
	}
	if _, err := time.Parse(time.RFC3339, value); err == nil {
		return
	}
	ve.Add(field, "must be a valid date (YYYY-MM-DD)")
}

// PositiveInt checks a field is > 0.
func PositiveInt(ve *Errors, field string, value int) {
	if value <= 0 {
		ve.Add(field, "must be a positive integer")
	}
}

// IntRange checks a field is within [min, max].
func IntRange(ve *Errors, field string, value, min, max int) {
	if value < min || value > max {
		ve.Add(field, fmt.Sprintf("must be between %d and %d", min, max))
	}
}

// NonNegativeFloat checks a field is >= 0.
func NonNegativeFloat(ve *Errors, field string, value float64) {
	if value < 0 {
		ve.Add(field, "must be non-negative")
	}
}

// Email checks a field is a valid email (if non-empty).
func Email(ve *Errors, field, value string) {
	if value == "" {
		return
	}
	if _, err := mail.ParseAddress(value); err != nil {
		ve.Add(field, "must be a valid email address")
	}
}

// MaxLength checks string doesn't exceed max length.
func MaxLength(ve *Errors, field, value string, max int) {
	if len(value) > max {
		ve.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}
