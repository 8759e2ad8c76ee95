package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	// Verify all types implement Value (compile-time check via assignment)
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Int(42)
	var _ Value = Float(1.5)
	var _ Value = Bool(true)
	var _ Value = Composite(`[1,2]`)
}

func TestParseValueKeepsNumberKind(t *testing.T) {
	tests := []struct {
		raw  string
		want Value
	}{
		{`5`, Int(5)},
		{`-12`, Int(-12)},
		{`5.0`, Float(5)},
		{`101.5`, Float(101.5)},
		{`1e3`, Float(1000)},
		{`"101.5"`, String("101.5")},
		{`true`, Bool(true)},
		{`null`, Null{}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseValue([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseValueComposite(t *testing.T) {
	got, err := ParseValue([]byte(`{"a": [1, 2]}`))
	require.NoError(t, err)
	assert.Equal(t, KindComposite, got.Kind())

	_, err = ParseValue([]byte(`[1,`))
	assert.Error(t, err)
}

func TestParseValueHugeIntegerFallsBackToFloat(t *testing.T) {
	got, err := ParseValue([]byte(`123456789012345678901234567890`))
	require.NoError(t, err)
	assert.Equal(t, KindFloat, got.Kind())
}

func TestDataRoundTripPreservesRepresentation(t *testing.T) {
	in := `{"count":3,"label":"x","ok":false,"ratio":2.0,"temp":"101.5"}`

	d, err := ParseData([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, String("101.5"), d["temp"])
	assert.Equal(t, Float(2), d["ratio"])

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
	assert.Contains(t, string(out), `"ratio":2.0`)
}

func TestParseDataNullIsEmpty(t *testing.T) {
	d, err := ParseData([]byte(`null`))
	require.NoError(t, err)
	assert.NotNil(t, d)
	assert.Empty(t, d)
}

func TestParseDataRejectsNonObject(t *testing.T) {
	_, err := ParseData([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestFloatMarshalRejectsNaN(t *testing.T) {
	_, err := json.Marshal(Data{"x": Float(nan())})
	assert.Error(t, err)
}

func TestFromAny(t *testing.T) {
	assert.Equal(t, Int(7), MustValue(7))
	assert.Equal(t, Float(0.5), MustValue(0.5))
	assert.Equal(t, String("a"), MustValue("a"))
	assert.Equal(t, Null{}, MustValue(nil))
	assert.Equal(t, KindComposite, MustValue([]any{1}).Kind())

	_, err := FromAny(struct{}{})
	assert.Error(t, err)
}

func TestDataSortedKeysAndNative(t *testing.T) {
	d := Data{"b": Int(1), "a": String("x"), "c": Float(1.5)}
	assert.Equal(t, []string{"a", "b", "c"}, d.SortedKeys())
	assert.Equal(t, map[string]any{"a": "x", "b": int64(1), "c": 1.5}, d.Native())
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}
