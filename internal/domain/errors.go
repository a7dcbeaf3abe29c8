package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrConsentRequired       = errors.New("consent required")
	ErrAlreadyTerminal       = errors.New("job already terminal")
	ErrEngineUnknown         = errors.New("engine unknown")
	ErrEngineOffline         = errors.New("engine offline")
	ErrCapabilityUnsupported = errors.New("capability unsupported")
	ErrGenerationFailed      = errors.New("generation failed")
)

// ErrorCode is the stable failure contract surfaced on terminal jobs and API
// errors. Callers key on the code; error text and remediation are advisory.
type ErrorCode string

const (
	CodeValidation       ErrorCode = "VALIDATION_ERROR"
	CodeConsentRequired  ErrorCode = "CONSENT_REQUIRED"
	CodePresetNotFound   ErrorCode = "PRESET_NOT_FOUND"
	CodeEngineUnknown    ErrorCode = "ENGINE_UNKNOWN"
	CodeEngineOffline    ErrorCode = "ENGINE_OFFLINE"
	CodeGenerationFailed ErrorCode = "GENERATION_FAILED"
	CodeUnknown          ErrorCode = "UNKNOWN_ERROR"
)

// ValidationError rejects a submission before any job state exists. Field
// names the offending input so callers can surface it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: input %q %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for one input field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// Classify maps an execution error onto the failure taxonomy.
func Classify(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrEngineUnknown):
		return CodeEngineUnknown
	case errors.Is(err, ErrEngineOffline):
		return CodeEngineOffline
	case errors.Is(err, ErrGenerationFailed), errors.Is(err, ErrCapabilityUnsupported):
		return CodeGenerationFailed
	case errors.Is(err, ErrNotFound):
		return CodePresetNotFound
	default:
		return CodeUnknown
	}
}
