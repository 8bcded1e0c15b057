package model

import (
	"strings"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "Page not found"}
	want := "NOT_FOUND: Page not found"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
}

func TestNewNotFoundError(t *testing.T) {
	e := NewNotFoundError("resource missing")
	if e.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", e.Code, ErrNotFound)
	}
	if e.Message != "resource missing" {
		t.Errorf("Message = %q, want %q", e.Message, "resource missing")
	}
}

func TestNewValidationError(t *testing.T) {
	details := []FieldError{
		{Field: "case_type", Code: "REQUIRED", Message: "Case type is required"},
	}
	e := NewValidationError(details)
	if e.Code != ErrValidationError {
		t.Errorf("Code = %q, want %q", e.Code, ErrValidationError)
	}
	if len(e.Details) != 1 {
		t.Fatalf("Details length = %d, want 1", len(e.Details))
	}
	if e.Details[0].Field != "case_type" {
		t.Errorf("Details[0].Field = %q, want %q", e.Details[0].Field, "case_type")
	}
}

func TestNewCaseNotFoundError(t *testing.T) {
	e := NewCaseNotFoundError("DRV-000001")
	if e.Code != ErrCaseNotFound {
		t.Errorf("Code = %q, want %q", e.Code, ErrCaseNotFound)
	}
	if !strings.Contains(e.Message, "DRV-000001") {
		t.Errorf("Message = %q, want it to mention the case number", e.Message)
	}
}

func TestNewCaseClosedError(t *testing.T) {
	e := NewCaseClosedError("DRV-000001")
	if e.Code != ErrCaseClosed {
		t.Errorf("Code = %q, want %q", e.Code, ErrCaseClosed)
	}
}

func TestNewStepNotRegisteredError(t *testing.T) {
	e := NewStepNotRegisteredError("100", "process")
	if e.Code != ErrStepNotRegistered {
		t.Errorf("Code = %q, want %q", e.Code, ErrStepNotRegistered)
	}
	if !strings.Contains(e.Message, "100") || !strings.Contains(e.Message, "process") {
		t.Errorf("Message = %q, want it to mention step and operation", e.Message)
	}
}

func TestNewStepConfigMissingError(t *testing.T) {
	e := NewStepConfigMissingError("200")
	if e.Code != ErrStepConfigMissing {
		t.Errorf("Code = %q, want %q", e.Code, ErrStepConfigMissing)
	}
}

func TestNewStepUnauthorizedError(t *testing.T) {
	e := NewStepUnauthorizedError("100")
	if e.Code != ErrStepUnauthorized {
		t.Errorf("Code = %q, want %q", e.Code, ErrStepUnauthorized)
	}
}

func TestNewConflictError(t *testing.T) {
	e := NewConflictError("case already advanced")
	if e.Code != ErrConflict {
		t.Errorf("Code = %q, want %q", e.Code, ErrConflict)
	}
}

func TestNewInternalError(t *testing.T) {
	e := NewInternalError()
	if e.Code != ErrInternalError {
		t.Errorf("Code = %q, want %q", e.Code, ErrInternalError)
	}
}
