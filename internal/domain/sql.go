package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON columns: Schema, Condition and Data are stored as JSON text.

// Value implements driver.Valuer.
func (s Schema) Value() (driver.Value, error) {
	return jsonValue(s)
}

// Scan implements sql.Scanner.
func (s *Schema) Scan(src any) error {
	return scanJSON(src, s)
}

// Value implements driver.Valuer.
func (c Condition) Value() (driver.Value, error) {
	return jsonValue(c)
}

// Scan implements sql.Scanner.
func (c *Condition) Scan(src any) error {
	return scanJSON(src, c)
}

// Value implements driver.Valuer.
func (d Data) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	return jsonValue(d)
}

// Scan implements sql.Scanner.
func (d *Data) Scan(src any) error {
	if err := scanJSON(src, d); err != nil {
		return err
	}
	if *d == nil {
		*d = Data{}
	}
	return nil
}

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON(src any, dst any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		raw = []byte("null")
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dst)
	}
	return json.Unmarshal(raw, dst)
}
