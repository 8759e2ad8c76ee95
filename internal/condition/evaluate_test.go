package condition

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wot/internal/domain"
)

func sensorSchema() domain.Schema {
	return domain.Schema{
		{Name: "temp", Type: domain.TypeFloat},
		{Name: "count", Type: domain.TypeInteger},
		{Name: "label", Type: domain.TypeString},
		{Name: "on", Type: domain.TypeBoolean},
	}
}

func clause(field string, op domain.Operator, lit any) domain.Clause {
	return domain.Clause{Field: field, Operator: op, Literal: domain.MustValue(lit)}
}

func TestEvaluateEmptyConditionHolds(t *testing.T) {
	ok, err := Evaluate(sensorSchema(), nil, domain.Data{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Evaluate(sensorSchema(), domain.Condition{}, domain.Data{"temp": domain.Float(1)})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateMissingFieldIsFalse(t *testing.T) {
	ok, err := Evaluate(sensorSchema(),
		domain.Condition{clause("temp", domain.OpGt, 100)},
		domain.Data{"label": domain.String("x")})

	assert.False(t, ok)
	assert.True(t, IsMissingField(err))
}

func TestEvaluateOperators(t *testing.T) {
	payload := domain.Data{
		"temp":  domain.String("101.5"),
		"count": domain.Int(3),
		"label": domain.String("kitchen"),
		"on":    domain.Bool(true),
	}

	tests := []struct {
		name string
		c    domain.Clause
		want bool
	}{
		{"numeric string gt int", clause("temp", domain.OpGt, 100), true},
		{"numeric string lt float", clause("temp", domain.OpLt, 101.6), true},
		{"numeric string eq float", clause("temp", domain.OpEq, 101.5), true},
		{"numeric string eq string literal", clause("temp", domain.OpEq, "101.50"), true},
		{"numeric string ge", clause("temp", domain.OpGe, 101.5), true},
		{"numeric string le", clause("temp", domain.OpLe, 101), false},
		{"int eq", clause("count", domain.OpEq, 3), true},
		{"int ne", clause("count", domain.OpNe, 3), false},
		{"int lt float", clause("count", domain.OpLt, 3.5), true},
		{"int ge", clause("count", domain.OpGe, 4), false},
		{"string eq", clause("label", domain.OpEq, "kitchen"), true},
		{"string lt lexicographic", clause("label", domain.OpLt, "l"), true},
		{"string gt lexicographic", clause("label", domain.OpGt, "kz"), false},
		{"bool eq", clause("on", domain.OpEq, true), true},
		{"bool gt false", clause("on", domain.OpGt, false), true},
		{"cross kind eq", clause("label", domain.OpEq, 1), false},
		{"cross kind ne", clause("label", domain.OpNe, 1), true},
		{"int eq string", clause("count", domain.OpEq, "3"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := Evaluate(sensorSchema(), domain.Condition{tt.c}, payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestEvaluateIncomparableOrdering(t *testing.T) {
	tests := []struct {
		name    string
		c       domain.Clause
		payload domain.Data
	}{
		{"string vs int", clause("label", domain.OpGt, 1), domain.Data{"label": domain.String("x")}},
		{"bool vs string", clause("on", domain.OpLt, "y"), domain.Data{"on": domain.Bool(true)}},
		{"float field non numeric literal", clause("temp", domain.OpGt, "hot"), domain.Data{"temp": domain.Float(1)}},
		{"null literal", clause("count", domain.OpLe, nil), domain.Data{"count": domain.Int(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := Evaluate(sensorSchema(), domain.Condition{tt.c}, tt.payload)
			assert.False(t, ok)
			assert.True(t, IsIncomparable(err), "got %v", err)
		})
	}
}

func TestEvaluateNaNIsUnordered(t *testing.T) {
	nan := domain.Float(math.NaN())

	for _, op := range []domain.Operator{domain.OpLt, domain.OpLe, domain.OpGt, domain.OpGe} {
		t.Run(string(op), func(t *testing.T) {
			ok, err := Evaluate(sensorSchema(), domain.Condition{clause("temp", op, 100)}, domain.Data{"temp": nan})
			assert.False(t, ok)
			assert.True(t, IsIncomparable(err), "got %v", err)
		})
	}

	ok, err := Evaluate(sensorSchema(), domain.Condition{clause("temp", domain.OpEq, 100)}, domain.Data{"temp": nan})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Evaluate(sensorSchema(), domain.Condition{clause("temp", domain.OpNe, 100)}, domain.Data{"temp": nan})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateNonFiniteStringsNeverOrder(t *testing.T) {
	for _, s := range []string{"NaN", "Inf", "-inf"} {
		t.Run(s, func(t *testing.T) {
			payload := domain.Data{"temp": domain.String(s)}
			for _, op := range []domain.Operator{domain.OpLt, domain.OpLe, domain.OpGt, domain.OpGe} {
				ok, _ := Evaluate(sensorSchema(), domain.Condition{clause("temp", op, 100)}, payload)
				assert.False(t, ok, "%s %s 100", s, op)
			}
		})
	}
}

func TestEvaluateIntAgainstFloatIsExact(t *testing.T) {
	n := domain.Int(1<<53 + 1)
	f := domain.Float(1 << 53)

	tests := []struct {
		name    string
		c       domain.Clause
		payload domain.Data
		want    bool
	}{
		{"int field eq", domain.Clause{Field: "count", Operator: domain.OpEq, Literal: f}, domain.Data{"count": n}, false},
		{"int field ne", domain.Clause{Field: "count", Operator: domain.OpNe, Literal: f}, domain.Data{"count": n}, true},
		{"int field gt", domain.Clause{Field: "count", Operator: domain.OpGt, Literal: f}, domain.Data{"count": n}, true},
		{"float field eq", domain.Clause{Field: "temp", Operator: domain.OpEq, Literal: n}, domain.Data{"temp": f}, false},
		{"float field lt", domain.Clause{Field: "temp", Operator: domain.OpLt, Literal: n}, domain.Data{"temp": f}, true},
		{"float field ge", domain.Clause{Field: "temp", Operator: domain.OpGe, Literal: n}, domain.Data{"temp": f}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := Evaluate(sensorSchema(), domain.Condition{tt.c}, tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestEvaluateUnknownOperator(t *testing.T) {
	ok, err := Evaluate(sensorSchema(),
		domain.Condition{clause("temp", "between", 1)},
		domain.Data{"temp": domain.Float(1)})

	assert.False(t, ok)
	assert.True(t, IsUnknownOperator(err))
}

func TestEvaluateConjunction(t *testing.T) {
	cond := domain.Condition{
		clause("temp", domain.OpGt, 100),
		clause("label", domain.OpEq, "kitchen"),
	}

	ok, err := Evaluate(sensorSchema(), cond, domain.Data{"temp": domain.Float(120), "label": domain.String("kitchen")})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Evaluate(sensorSchema(), cond, domain.Data{"temp": domain.Float(120), "label": domain.String("garage")})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateStopsAtFirstFalseClause(t *testing.T) {
	// The second clause would be a MISSING_FIELD error.
	cond := domain.Condition{
		clause("temp", domain.OpGt, 100),
		clause("label", domain.OpEq, "kitchen"),
	}
	ok, err := Evaluate(sensorSchema(), cond, domain.Data{"temp": domain.Float(1)})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	cond := domain.Condition{clause("temp", domain.OpGt, 100), clause("count", domain.OpNe, 0)}
	payload := domain.Data{"temp": domain.String("101.5"), "count": domain.Int(2)}

	first, firstErr := Evaluate(sensorSchema(), cond, payload)
	for range 10 {
		ok, err := Evaluate(sensorSchema(), cond, payload)
		assert.Equal(t, first, ok)
		assert.Equal(t, firstErr, err)
	}
	assert.Equal(t, domain.String("101.5"), payload["temp"], "payload must not be modified")
}

func TestSatisfiedLogsAndReportsFalse(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := NewEvaluator(WithLogger(logger))

	res := domain.Resource{Fields: sensorSchema()}
	ev := domain.Event{ID: 7, Slug: "too-hot", Condition: domain.Condition{clause("label", domain.OpGt, 5)}}
	dp := domain.DataPoint{ID: 3, Data: domain.Data{"label": domain.String("x")}}

	assert.False(t, e.Satisfied(context.Background(), res, ev, dp))
	assert.Contains(t, buf.String(), "condition not evaluable")
	assert.Contains(t, buf.String(), "event_id=7")
	assert.Contains(t, buf.String(), "INCOMPARABLE")

	ev.Condition = domain.Condition{clause("label", domain.OpEq, "x")}
	assert.True(t, e.Satisfied(context.Background(), res, ev, dp))
}
