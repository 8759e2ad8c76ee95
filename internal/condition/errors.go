package condition

import (
	"errors"
	"fmt"

	"github.com/roach88/wot/internal/domain"
)

// EvaluationError reports why a condition could not be evaluated.
type EvaluationError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Clause is the clause being evaluated when the error occurred.
	Clause domain.Clause

	// Message is a human-readable description.
	Message string
}

// ErrorCode categorizes evaluation errors.
type ErrorCode string

const (
	// ErrCodeMissingField indicates the payload lacks a referenced field.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"

	// ErrCodeIncomparable indicates an ordering between values of kinds
	// that have no order.
	ErrCodeIncomparable ErrorCode = "INCOMPARABLE"

	// ErrCodeUnknownOperator indicates a clause operator outside eq/ne/lt/le/gt/ge.
	ErrCodeUnknownOperator ErrorCode = "UNKNOWN_OPERATOR"
)

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%s: %s (clause %s)", e.Code, e.Message, e.Clause)
}

// IsMissingField returns true if err is an EvaluationError for a missing field.
func IsMissingField(err error) bool {
	return hasCode(err, ErrCodeMissingField)
}

// IsIncomparable returns true if err is an EvaluationError for incomparable values.
func IsIncomparable(err error) bool {
	return hasCode(err, ErrCodeIncomparable)
}

// IsUnknownOperator returns true if err is an EvaluationError for a bad operator.
func IsUnknownOperator(err error) bool {
	return hasCode(err, ErrCodeUnknownOperator)
}

func hasCode(err error, code ErrorCode) bool {
	var ee *EvaluationError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// DefinitionError reports a malformed condition definition.
type DefinitionError struct {
	Index   int
	Message string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("clause %d: %s", e.Index, e.Message)
}
