package condition

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/wot/internal/domain"
)

// Parse decodes a condition definition and checks it against the resource
// schema.
//
// Rules:
//  1. The definition is a JSON array of [field, operator, value] triples
//  2. Every operator is one of eq, ne, lt, le, gt, ge
//  3. Every field is declared by the schema
//  4. Literals are scalars (string, number, boolean or null)
//
// null and [] both parse to the empty condition, which always holds.
func Parse(s domain.Schema, raw []byte) (domain.Condition, error) {
	var cond domain.Condition
	if err := json.Unmarshal(raw, &cond); err != nil {
		return nil, fmt.Errorf("invalid condition: %w", err)
	}
	if err := Check(s, cond); err != nil {
		return nil, err
	}
	return cond, nil
}

// Check validates an already decoded condition against the resource schema.
func Check(s domain.Schema, cond domain.Condition) error {
	for i, c := range cond {
		if !c.Operator.Valid() {
			return &DefinitionError{Index: i, Message: fmt.Sprintf("unknown operator %q", c.Operator)}
		}
		if _, ok := s.Lookup(c.Field); !ok {
			return &DefinitionError{Index: i, Message: fmt.Sprintf("field %q is not declared by the resource", c.Field)}
		}
		if c.Literal != nil && c.Literal.Kind() == domain.KindComposite {
			return &DefinitionError{Index: i, Message: "value must be a scalar"}
		}
	}
	return nil
}
