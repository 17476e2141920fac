package errors

import (
	"errors"
	"fmt"
)

// Error codes for programmatic handling.
const (
	CodeConfigInvalid     = "CONFIG_INVALID"
	CodeInvalidConfidence = "INVALID_CONFIDENCE"
	CodeDuplicateID       = "DUPLICATE_ID"
	CodeNotFound          = "NOT_FOUND"
	CodeOwnershipMismatch = "OWNERSHIP_MISMATCH"
	CodeNoCandidates      = "NO_CANDIDATES"
	CodeCapacityZero      = "CAPACITY_ZERO"
	CodeEmptyCandidateSet = "EMPTY_CANDIDATE_SET"
	CodeUnknownStrategy   = "UNKNOWN_STRATEGY"
	CodeSnapshotFailed    = "SNAPSHOT_FAILED"
)

// Sentinels for errors.Is. Matching is by code, so any PatternError with the
// same code satisfies errors.Is against these.
var (
	ErrInvalidConfidence = New(CodeInvalidConfidence, "confidence out of range")
	ErrDuplicateID       = New(CodeDuplicateID, "duplicate pattern id")
	ErrNotFound          = New(CodeNotFound, "pattern not found")
	ErrOwnershipMismatch = New(CodeOwnershipMismatch, "contributor does not own pattern")
	ErrNoCandidates      = New(CodeNoCandidates, "no candidates")
	ErrCapacityZero      = New(CodeCapacityZero, "store capacity is zero")
	ErrEmptyCandidateSet = New(CodeEmptyCandidateSet, "empty candidate set")
	ErrUnknownStrategy   = New(CodeUnknownStrategy, "unknown resolution strategy")
	ErrConfigInvalid     = New(CodeConfigInvalid, "invalid configuration")
	ErrSnapshotFailed    = New(CodeSnapshotFailed, "snapshot failed")
)

// PatternError is a structured error with a code and actionable suggestion.
type PatternError struct {
	Code       string // machine-readable code (e.g. NOT_FOUND)
	Message    string // human-readable description
	Suggestion string // actionable fix
	Err        error  // wrapped underlying error
}

// Error implements the error interface.
func (e *PatternError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap supports errors.Is / errors.As.
func (e *PatternError) Unwrap() error {
	return e.Err
}

// New creates a PatternError with the given code and message.
func New(code, message string) *PatternError {
	return &PatternError{Code: code, Message: message}
}

// Newf creates a PatternError with a formatted message.
func Newf(code, format string, args ...any) *PatternError {
	return &PatternError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a PatternError wrapping an existing error.
func Wrap(code, message string, err error) *PatternError {
	return &PatternError{Code: code, Message: message, Err: err}
}

// WithSuggestion sets the suggestion and returns the same error.
func (e *PatternError) WithSuggestion(suggestion string) *PatternError {
	e.Suggestion = suggestion
	return e
}

// Is checks whether target matches this error's code.
func (e *PatternError) Is(target error) bool {
	var pe *PatternError
	if errors.As(target, &pe) {
		return e.Code == pe.Code
	}
	return false
}

// AsCode extracts the PatternError code from an error, or "" if not a PatternError.
func AsCode(err error) string {
	var pe *PatternError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Suggestion extracts the suggestion from an error, or "" if not a PatternError.
func Suggestion(err error) string {
	var pe *PatternError
	if errors.As(err, &pe) {
		return pe.Suggestion
	}
	return ""
}

// IsValidation reports whether err was rejected before touching state
// because the input or configuration was malformed.
func IsValidation(err error) bool {
	switch AsCode(err) {
	case CodeInvalidConfidence, CodeCapacityZero, CodeConfigInvalid:
		return true
	}
	return false
}

// IsProgrammer reports whether err indicates a caller bug rather than a data
// condition. These should surface loudly.
func IsProgrammer(err error) bool {
	switch AsCode(err) {
	case CodeEmptyCandidateSet, CodeUnknownStrategy:
		return true
	}
	return false
}
