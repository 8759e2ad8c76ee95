package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FieldType is the declared primitive type of a resource field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeFloat   FieldType = "float"
	TypeBoolean FieldType = "boolean"
)

// ValidFieldTypes defines allowed field type tags.
var ValidFieldTypes = map[FieldType]bool{
	TypeString:  true,
	TypeInteger: true,
	TypeFloat:   true,
	TypeBoolean: true,
}

// Field is a single declared field of a resource schema.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Schema is the ordered field declaration of a resource.
// Its JSON form is an object in declaration order: {"temp": "float"}.
type Schema []Field

// Lookup returns the declared type of a field.
func (s Schema) Lookup(name string) (FieldType, bool) {
	for _, f := range s {
		if f.Name == name {
			return f.Type, true
		}
	}
	return "", false
}

// Names returns the field names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// MarshalJSON writes the schema as a JSON object in declaration order.
func (s Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, fmt.Errorf("marshal field name %q: %w", f.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		typ, err := json.Marshal(string(f.Type))
		if err != nil {
			return nil, fmt.Errorf("marshal field type %q: %w", f.Type, err)
		}
		buf.Write(typ)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping key order. Type tags are not
// checked here; use schema.ParseSchema for that.
func (s *Schema) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("schema must be a JSON object, got %v", tok)
	}

	var fields Schema
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected schema key %v", keyTok)
		}
		var typ string
		if err := dec.Decode(&typ); err != nil {
			return fmt.Errorf("field %q: type must be a string: %w", name, err)
		}
		fields = append(fields, Field{Name: name, Type: FieldType(typ)})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*s = fields
	return nil
}
