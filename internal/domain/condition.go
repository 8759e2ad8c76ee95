package domain

import (
	"encoding/json"
	"fmt"
)

// Operator is a comparison operator of a condition clause.
type Operator string

const (
	OpEq Operator = "eq"
	OpNe Operator = "ne"
	OpLt Operator = "lt"
	OpLe Operator = "le"
	OpGt Operator = "gt"
	OpGe Operator = "ge"
)

// Operators lists the supported operators in a fixed order.
var Operators = []Operator{OpEq, OpNe, OpLt, OpLe, OpGt, OpGe}

// Valid reports whether op is one of the six supported operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	default:
		return false
	}
}

// Clause compares one payload field against a literal.
// Its JSON form is a three-element array: ["temp", "gt", 100].
type Clause struct {
	Field    string
	Operator Operator
	Literal  Value
}

// MarshalJSON implements json.Marshaler for Clause.
func (c Clause) MarshalJSON() ([]byte, error) {
	lit := c.Literal
	if lit == nil {
		lit = Null{}
	}
	return json.Marshal([]any{c.Field, string(c.Operator), lit})
}

// UnmarshalJSON implements json.Unmarshaler for Clause.
// The operator is not checked here so stored conditions always load;
// condition.Parse rejects unknown operators on write.
func (c *Clause) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("clause must be a [field, operator, value] array: %w", err)
	}
	if len(parts) != 3 {
		return fmt.Errorf("clause must have 3 elements, got %d", len(parts))
	}

	var field, op string
	if err := json.Unmarshal(parts[0], &field); err != nil {
		return fmt.Errorf("clause field must be a string: %w", err)
	}
	if err := json.Unmarshal(parts[1], &op); err != nil {
		return fmt.Errorf("clause operator must be a string: %w", err)
	}
	lit, err := ParseValue(parts[2])
	if err != nil {
		return fmt.Errorf("clause value: %w", err)
	}

	c.Field = field
	c.Operator = Operator(op)
	c.Literal = lit
	return nil
}

// String renders the clause for logs.
func (c Clause) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, NativeValue(c.Literal))
}

// Condition is a conjunction of clauses. An empty condition always holds.
type Condition []Clause

// MarshalJSON writes an empty condition as [] rather than null.
func (c Condition) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Clause(c))
}
