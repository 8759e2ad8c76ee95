// Package schema validates data point payloads against resource schemas.
package schema

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/wot/internal/domain"
)

// Validate checks a payload against a resource schema.
//
// Rules:
//  1. Every payload key must be declared (UnknownFieldError otherwise)
//  2. Every value must match its declared type exactly (TypeMismatchError)
//  3. Declared float fields accept anything CoerceFloat accepts
//  4. Missing fields are fine: partial payloads are allowed
//
// Unknown fields are reported before type mismatches. Keys are checked in
// sorted order so the reported error is deterministic.
//
// Validate is a pure function with no side effects.
func Validate(s domain.Schema, payload domain.Data) error {
	keys := payload.SortedKeys()

	for _, k := range keys {
		if _, ok := s.Lookup(k); !ok {
			return &UnknownFieldError{Field: k}
		}
	}

	for _, k := range keys {
		expected, _ := s.Lookup(k)
		if !matches(expected, payload[k]) {
			return &TypeMismatchError{Field: k, Expected: expected, Got: kindOf(payload[k])}
		}
	}

	return nil
}

// matches reports whether v satisfies the declared type.
func matches(expected domain.FieldType, v domain.Value) bool {
	if v == nil {
		return false
	}

	switch expected {
	case domain.TypeString:
		return v.Kind() == domain.KindString
	case domain.TypeInteger:
		return v.Kind() == domain.KindInt
	case domain.TypeBoolean:
		return v.Kind() == domain.KindBool
	case domain.TypeFloat:
		_, ok := CoerceFloat(v)
		return ok
	default:
		return false
	}
}

func kindOf(v domain.Value) domain.Kind {
	if v == nil {
		return domain.KindNull
	}
	return v.Kind()
}

// CoerceFloat converts a value to float64 the way a declared float field
// accepts it: integers, floats and numeric strings. Booleans, null,
// composites and strings spelling NaN or an infinity do not coerce.
func CoerceFloat(v domain.Value) (float64, bool) {
	switch val := v.(type) {
	case domain.Float:
		return float64(val), true
	case domain.Int:
		return float64(val), true
	case domain.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(val)), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// CheckDefinition validates a schema declaration: field names must be
// non-empty and unique, and every type tag must be known.
func CheckDefinition(s domain.Schema) error {
	if len(s) == 0 {
		return &DefinitionError{Message: "schema must declare at least one field"}
	}

	seen := make(map[string]bool, len(s))
	for _, f := range s {
		if strings.TrimSpace(f.Name) == "" {
			return &DefinitionError{Message: "field name must not be empty"}
		}
		if seen[f.Name] {
			return &DefinitionError{Field: f.Name, Message: "declared more than once"}
		}
		seen[f.Name] = true
		if !domain.ValidFieldTypes[f.Type] {
			return &DefinitionError{
				Field:   f.Name,
				Message: "unknown type " + strconv.Quote(string(f.Type)) + " (must be string, integer, float or boolean)",
			}
		}
	}
	return nil
}

// ParseSchema decodes and checks a JSON schema declaration such as
// {"temp": "float", "label": "string"}.
func ParseSchema(raw []byte) (domain.Schema, error) {
	var s domain.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &DefinitionError{Message: "invalid schema: " + err.Error()}
	}
	if err := CheckDefinition(s); err != nil {
		return nil, err
	}
	return s, nil
}
