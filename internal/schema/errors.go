package schema

import (
	"errors"
	"fmt"

	"github.com/roach88/wot/internal/domain"
)

// ErrSchema matches every payload validation failure via errors.Is.
var ErrSchema = errors.New("payload does not conform to resource schema")

// UnknownFieldError reports a payload key the schema does not declare.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q", e.Field)
}

// Is makes errors.Is(err, ErrSchema) hold.
func (e *UnknownFieldError) Is(target error) bool {
	return target == ErrSchema
}

// TypeMismatchError reports a value whose runtime type does not match the
// declared field type.
type TypeMismatchError struct {
	Field    string
	Expected domain.FieldType
	Got      domain.Kind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("field %q: expected %s, got %s", e.Field, e.Expected, e.Got)
}

// Is makes errors.Is(err, ErrSchema) hold.
func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrSchema
}

// DefinitionError reports an invalid schema declaration.
type DefinitionError struct {
	Field   string
	Message string
}

func (e *DefinitionError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("field %q: %s", e.Field, e.Message)
}

// IsUnknownField returns true if err is or wraps an UnknownFieldError.
func IsUnknownField(err error) bool {
	var ue *UnknownFieldError
	return errors.As(err, &ue)
}

// IsTypeMismatch returns true if err is or wraps a TypeMismatchError.
func IsTypeMismatch(err error) bool {
	var te *TypeMismatchError
	return errors.As(err, &te)
}
