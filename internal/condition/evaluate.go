// Package condition evaluates event conditions against data point payloads.
//
// A condition is a conjunction of (field, operator, literal) clauses. The
// declared schema type of the field decides how values compare: float fields
// compare as float64 on both sides, so a stored "101.5" satisfies
// ("temp", "gt", 100).
package condition

import (
	"bytes"
	"cmp"
	"context"
	"log/slog"
	"math"
	"math/big"
	"strings"

	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/metrics"
	"github.com/roach88/wot/internal/schema"
)

// Evaluate reports whether every clause of cond holds for payload.
//
// An empty condition holds. Clauses are evaluated in order and evaluation
// stops at the first clause that does not hold. A clause over a field the
// payload does not carry returns false with a MISSING_FIELD error.
//
// Evaluate is a pure function with no side effects.
func Evaluate(s domain.Schema, cond domain.Condition, payload domain.Data) (bool, error) {
	for _, c := range cond {
		ok, err := evalClause(s, c, payload)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalClause(s domain.Schema, c domain.Clause, payload domain.Data) (bool, error) {
	if !c.Operator.Valid() {
		return false, &EvaluationError{
			Code:    ErrCodeUnknownOperator,
			Clause:  c,
			Message: "unknown operator " + string(c.Operator),
		}
	}

	v, ok := payload[c.Field]
	if !ok {
		return false, &EvaluationError{
			Code:    ErrCodeMissingField,
			Clause:  c,
			Message: "payload has no field " + c.Field,
		}
	}

	lit := c.Literal
	if lit == nil {
		lit = domain.Null{}
	}
	if v == nil {
		v = domain.Null{}
	}

	declared, _ := s.Lookup(c.Field)
	order, comparable := compare(declared, v, lit)

	switch c.Operator {
	case domain.OpEq:
		return comparable && order == 0, nil
	case domain.OpNe:
		return !comparable || order != 0, nil
	}

	if !comparable || !ordered(v, lit) {
		return false, &EvaluationError{
			Code:    ErrCodeIncomparable,
			Clause:  c,
			Message: "cannot order " + v.Kind().String() + " against " + lit.Kind().String(),
		}
	}

	switch c.Operator {
	case domain.OpLt:
		return order < 0, nil
	case domain.OpLe:
		return order <= 0, nil
	case domain.OpGt:
		return order > 0, nil
	case domain.OpGe:
		return order >= 0, nil
	default:
		// Unreachable: Valid() covers every operator above.
		return false, &EvaluationError{Code: ErrCodeUnknownOperator, Clause: c, Message: "unknown operator"}
	}
}

// compare returns the three-way order of a against b and whether the two
// values can be compared at all.
func compare(declared domain.FieldType, a, b domain.Value) (int, bool) {
	if declared == domain.TypeFloat {
		fa, okA := schema.CoerceFloat(a)
		fb, okB := schema.CoerceFloat(b)
		if okA && okB {
			return compareNumbers(a, b, fa, fb)
		}
		// Fall through to kind-based equality, e.g. a non-numeric literal.
	}

	switch av := a.(type) {
	case domain.Int:
		switch bv := b.(type) {
		case domain.Int:
			return cmp.Compare(av, bv), true
		case domain.Float:
			return compareNumbers(av, bv, float64(av), float64(bv))
		}
	case domain.Float:
		switch bv := b.(type) {
		case domain.Int:
			return compareNumbers(av, bv, float64(av), float64(bv))
		case domain.Float:
			return compareNumbers(av, bv, float64(av), float64(bv))
		}
	case domain.String:
		if bv, ok := b.(domain.String); ok {
			return strings.Compare(string(av), string(bv)), true
		}
	case domain.Bool:
		if bv, ok := b.(domain.Bool); ok {
			return cmp.Compare(boolRank(av), boolRank(bv)), true
		}
	case domain.Null:
		if _, ok := b.(domain.Null); ok {
			return 0, true
		}
	case domain.Composite:
		if bv, ok := b.(domain.Composite); ok {
			if bytes.Equal(av, bv) {
				return 0, true
			}
			return 1, true
		}
	}
	return 0, false
}

// compareNumbers orders two numeric values given their float64 forms.
// An Int compares exactly against a float, even beyond 2^53. NaN is
// unordered, so only ne can hold against it.
func compareNumbers(a, b domain.Value, fa, fb float64) (int, bool) {
	if math.IsNaN(fa) || math.IsNaN(fb) {
		return 0, false
	}
	ai, aInt := a.(domain.Int)
	bi, bInt := b.(domain.Int)
	switch {
	case aInt && bInt:
		return cmp.Compare(ai, bi), true
	case aInt:
		return new(big.Float).SetInt64(int64(ai)).Cmp(big.NewFloat(fb)), true
	case bInt:
		return big.NewFloat(fa).Cmp(new(big.Float).SetInt64(int64(bi))), true
	}
	return cmp.Compare(fa, fb), true
}

// ordered reports whether lt/le/gt/ge are defined between a and b.
// Nulls and composites only support equality.
func ordered(a, b domain.Value) bool {
	for _, v := range []domain.Value{a, b} {
		switch v.Kind() {
		case domain.KindNull, domain.KindComposite:
			return false
		}
	}
	return true
}

func boolRank(b domain.Bool) int {
	if b {
		return 1
	}
	return 0
}

// Evaluator evaluates conditions and logs evaluation errors.
type Evaluator struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger used for evaluation errors.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = l
	}
}

// WithMetrics counts evaluation outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

// NewEvaluator creates an Evaluator. The default logger is slog.Default().
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Satisfied reports whether the event's condition holds for the data point.
// Any evaluation error is logged and counts as not satisfied.
func (e *Evaluator) Satisfied(ctx context.Context, res domain.Resource, ev domain.Event, dp domain.DataPoint) bool {
	ok, err := Evaluate(res.Fields, ev.Condition, dp.Data)
	if err != nil {
		level := slog.LevelWarn
		if IsMissingField(err) {
			level = slog.LevelDebug
		}
		e.logger.Log(ctx, level, "condition not evaluable",
			"event_id", ev.ID,
			"event", ev.Slug,
			"data_point_id", dp.ID,
			"error", err,
		)
		e.metrics.Evaluation(metrics.Errored)
		return false
	}
	if ok {
		e.metrics.Evaluation(metrics.Satisfied)
	} else {
		e.metrics.Evaluation(metrics.Unsatisfied)
	}
	return ok
}
