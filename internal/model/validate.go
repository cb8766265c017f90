package model

import (
	"fmt"
	"strings"
)

// maxNameLength bounds project, config and user display names.
const maxNameLength = 200

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Invalid returns a *ValidationError with a single field error.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

// ValidateName checks a display name for a project, config or user.
func ValidateName(field, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return Invalid(field, "is required")
	}
	if len([]rune(name)) > maxNameLength {
		return Invalid(field, fmt.Sprintf("must be %d characters or fewer", maxNameLength))
	}
	return nil
}

// ValidatePropertyName checks a single property name. Names are compared
// after trimming surrounding whitespace.
func ValidatePropertyName(key string) error {
	if strings.TrimSpace(key) == "" {
		return Invalid("property", "invalid property name")
	}
	return nil
}

// ValidateValues checks every property name of a value set.
func ValidateValues(values ValueMap) error {
	var ve ValidationError
	for key := range values {
		if strings.TrimSpace(key) == "" {
			ve.Errors = append(ve.Errors, FieldError{Field: "values", Message: "invalid property name"})
			continue
		}
		if key != strings.TrimSpace(key) {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   "values",
				Message: fmt.Sprintf("property name %q has surrounding whitespace", key),
			})
		}
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateEmail performs a minimal sanity check on an email address.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return Invalid("email", "is required")
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.Count(email, "@") != 1 {
		return Invalid("email", fmt.Sprintf("invalid address %q", email))
	}
	return nil
}
