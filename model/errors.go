package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest      = "BAD_REQUEST"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrForbidden       = "FORBIDDEN"
	ErrNotFound        = "NOT_FOUND"
	ErrConflict        = "CONFLICT"
	ErrValidationError = "VALIDATION_ERROR"
	ErrInternalError   = "INTERNAL_ERROR"
)

// Case-engine error codes.
const (
	ErrCaseNotFound      = "CASE_NOT_FOUND"
	ErrCaseClosed        = "CASE_CLOSED"
	ErrStepNotRegistered = "STEP_NOT_REGISTERED"
	ErrStepConfigMissing = "STEP_CONFIG_NOT_FOUND"
	ErrStepUnauthorized  = "STEP_UNAUTHORIZED"
)

// ErrorEnvelope is the standard error response envelope returned by the
// service. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewCaseNotFoundError returns a CASE_NOT_FOUND error for the given case
// number.
func NewCaseNotFoundError(caseNo string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrCaseNotFound,
		Message: fmt.Sprintf("case %q not found", caseNo),
	}
}

// NewCaseClosedError returns a CASE_CLOSED error. Raised when a transition is
// attempted on a case whose latest history row is terminal.
func NewCaseClosedError(caseNo string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrCaseClosed,
		Message: fmt.Sprintf("case %q is closed and accepts no further transitions", caseNo),
	}
}

// NewStepNotRegisteredError returns a STEP_NOT_REGISTERED error for the given
// step and operation.
func NewStepNotRegisteredError(stepID, operation string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrStepNotRegistered,
		Message: fmt.Sprintf("no %s handler registered for step %q", operation, stepID),
	}
}

// NewStepConfigMissingError returns a STEP_CONFIG_NOT_FOUND error.
func NewStepConfigMissingError(stepID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrStepConfigMissing,
		Message: fmt.Sprintf("step configuration %q not found", stepID),
	}
}

// NewStepUnauthorizedError returns a STEP_UNAUTHORIZED error. The transport
// layer renders this as a not-found response so callers cannot probe which
// steps exist.
func NewStepUnauthorizedError(stepID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrStepUnauthorized,
		Message: fmt.Sprintf("user does not have a valid role for step %q", stepID),
	}
}
