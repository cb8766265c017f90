package model

import (
	"errors"
	"strings"
	"testing"
)

// fieldErrors extracts a *ValidationError from err or fails the test.
func fieldErrors(t *testing.T, err error) []FieldError {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	return ve.Errors
}

func TestValidateName(t *testing.T) {
	for _, tc := range []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Simple", "production", false},
		{"Empty", "", true},
		{"WhitespaceOnly", "   \t\n  ", true},
		{"AtLimit", strings.Repeat("a", maxNameLength), false},
		{"OverLimit", strings.Repeat("a", maxNameLength+1), true},
		{"MultibyteAtLimit", strings.Repeat("é", maxNameLength), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateName("name", tc.input)
			if tc.wantErr {
				errs := fieldErrors(t, err)
				if errs[0].Field != "name" {
					t.Errorf("field = %q, want %q", errs[0].Field, "name")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidatePropertyName(t *testing.T) {
	if err := ValidatePropertyName("DATABASE_URL"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	errs := fieldErrors(t, ValidatePropertyName("  "))
	if errs[0].Message != "invalid property name" {
		t.Errorf("message = %q", errs[0].Message)
	}
}

func TestValidateValues(t *testing.T) {
	if err := ValidateValues(nil); err != nil {
		t.Fatalf("nil values: unexpected error: %v", err)
	}
	if err := ValidateValues(ValueMap{"A": {Value: StringPtr("1")}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	errs := fieldErrors(t, ValidateValues(ValueMap{"": {}, " B ": {}}))
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
}

func TestValidateEmail(t *testing.T) {
	for _, tc := range []struct {
		input   string
		wantErr bool
	}{
		{"alice@example.com", false},
		{"", true},
		{"alice", true},
		{"@example.com", true},
		{"alice@", true},
		{"a@b@c", true},
	} {
		err := ValidateEmail(tc.input)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
		}
	}
}

func TestValidationError_Format(t *testing.T) {
	ve := &ValidationError{Errors: []FieldError{
		{Field: "name", Message: "is required"},
		{Field: "values", Message: "invalid property name"},
	}}
	want := "validation failed: name: is required; values: invalid property name"
	if got := ve.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !ve.HasErrors() {
		t.Error("HasErrors() = false, want true")
	}
}

func TestErrUnauthorizedIsNotFound(t *testing.T) {
	if !errors.Is(ErrUnauthorized, ErrNotFound) {
		t.Fatal("ErrUnauthorized must match ErrNotFound")
	}
}

func TestValueMapClone(t *testing.T) {
	orig := ValueMap{"A": {Value: StringPtr("1"), Group: StringPtr("db")}}
	cp := orig.Clone()
	*cp["A"].Value = "2"
	*cp["A"].Group = "cache"
	if *orig["A"].Value != "1" || *orig["A"].Group != "db" {
		t.Fatalf("clone shares pointers with original: %+v", orig["A"])
	}

	var empty ValueMap
	if got := empty.Clone(); got == nil {
		t.Fatal("Clone of nil map should be non-nil")
	}
}
