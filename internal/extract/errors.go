package extract

import (
	"fmt"

	"bistrobooks/internal/domain"
)

// MalformedError reports model output that still is not decodable JSON
// after the repair pass. Raw carries the offending output for diagnostics;
// it is deliberately kept out of Error() so error logging at default
// verbosity never prints model output.
type MalformedError struct {
	Modality domain.Modality
	Raw      string
	Err      error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s model output (%d bytes): %v", e.Modality, len(e.Raw), e.Err)
}

func (e *MalformedError) Unwrap() error {
	return domain.ErrMalformedOutput
}

// NewMalformedError wraps a decode failure with the raw output that caused it.
func NewMalformedError(modality domain.Modality, raw string, err error) *MalformedError {
	return &MalformedError{Modality: modality, Raw: raw, Err: err}
}

// SchemaViolationError reports decodable output that breaks a payload rule.
// It names the failing field so callers can distinguish a genuinely
// ambiguous input from model noise.
type SchemaViolationError struct {
	Field  string
	Reason string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("schema violation: field %q: %s", e.Field, e.Reason)
}

func (e *SchemaViolationError) Unwrap() error {
	return domain.ErrSchemaViolation
}

// NewSchemaViolationError builds a violation for a single named field.
func NewSchemaViolationError(field, reason string) *SchemaViolationError {
	return &SchemaViolationError{Field: field, Reason: reason}
}
