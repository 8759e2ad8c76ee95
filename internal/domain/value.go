package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Kind identifies the runtime type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	// KindComposite covers JSON arrays and objects. They never match a
	// declared field type but are kept so they can be reported precisely.
	KindComposite
)

// String returns the name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindComposite:
		return "composite"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a sealed interface representing a data point field value.
// Only Null, String, Int, Float, Bool and Composite implement this.
type Value interface {
	Kind() Kind
	value() // Sealed - only these types implement it
}

// Null represents a JSON null value.
type Null struct{}

func (Null) value()     {}
func (Null) Kind() Kind { return KindNull }

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string value.
type String string

func (String) value()     {}
func (String) Kind() Kind { return KindString }

// Int represents an integer value. JSON numbers without a fraction or
// exponent decode to Int.
type Int int64

func (Int) value()     {}
func (Int) Kind() Kind { return KindInt }

// Float represents a floating-point value.
type Float float64

func (Float) value()     {}
func (Float) Kind() Kind { return KindFloat }

// MarshalJSON keeps a fraction on integral floats so the value decodes back
// to a Float.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("unsupported float value: %v", v)
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s), nil
}

// Bool represents a boolean value.
type Bool bool

func (Bool) value()     {}
func (Bool) Kind() Kind { return KindBool }

// Composite holds a JSON array or object verbatim.
type Composite json.RawMessage

func (Composite) value()     {}
func (Composite) Kind() Kind { return KindComposite }

// MarshalJSON implements json.Marshaler for Composite.
func (c Composite) MarshalJSON() ([]byte, error) {
	if len(c) == 0 {
		return []byte("null"), nil
	}
	return []byte(c), nil
}

// Data is a data point payload: field name to Value.
// Use SortedKeys() for deterministic iteration.
type Data map[string]Value

// SortedKeys returns the field names in lexicographic order.
func (d Data) SortedKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Native converts the payload to plain Go values, as produced by
// encoding/json with UseNumber disabled.
func (d Data) Native() map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = NativeValue(v)
	}
	return out
}

// UnmarshalJSON implements json.Unmarshaler for Data.
func (d *Data) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = nil
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*d = make(Data, len(raw))
	for k, v := range raw {
		val, err := ParseValue(v)
		if err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		(*d)[k] = val
	}
	return nil
}

// ParseData decodes a JSON object into Data.
func ParseData(raw []byte) (Data, error) {
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	if d == nil {
		d = Data{}
	}
	return d, nil
}

// ParseValue decodes a single JSON value, preserving the integer/float
// distinction of numbers.
func ParseValue(raw []byte) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch raw[0] {
	case '[', '{':
		if !json.Valid(raw) {
			return nil, fmt.Errorf("invalid JSON value: %s", raw)
		}
		return Composite(slices.Clone(raw)), nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return FromAny(v)
}

// FromAny converts a Go value (as produced by encoding/json, yaml.v3 or a
// literal in code) to a Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return Float(float64(val)), nil
		}
		return Int(int64(val)), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case json.Number:
		s := string(val)
		if !strings.ContainsAny(s, ".eE") {
			if n, err := val.Int64(); err == nil {
				return Int(n), nil
			}
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", s, err)
		}
		return Float(f), nil
	case []any, map[string]any:
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return Composite(raw), nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// MustValue is like FromAny but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustValue(v any) Value {
	val, err := FromAny(v)
	if err != nil {
		panic(err)
	}
	return val
}

// NativeValue converts a Value back to a plain Go value.
func NativeValue(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Composite:
		var out any
		if err := json.Unmarshal(val, &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}
