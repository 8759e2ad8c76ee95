package harness

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wot/internal/ingest"
	"github.com/roach88/wot/internal/schema"
	"github.com/roach88/wot/internal/store"
)

func TestScenarios_Golden(t *testing.T) {
	for _, name := range []string{
		"numeric_string_reading",
		"type_mismatch_rejected",
		"unknown_field_rejected",
		"retry_then_next",
	} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_SiblingEvents(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/sibling_events.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	var steps []int
	for _, e := range result.Trace {
		if e.Type == TraceDelivery {
			steps = append(steps, e.Step)
		}
	}
	assert.Equal(t, []int{2, 3}, steps)
	assert.Equal(t, "not_found", result.Trace[len(result.Trace)-1].Error)
}

func TestRun_IsDeterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/retry_then_next.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := Snapshot(s.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ReportsUnexpectedOutcome(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/numeric_string_reading.yaml")
	require.NoError(t, err)
	s.Flow[0].Expect = &ExpectClause{Error: ErrorTypeMismatch}
	s.Assertions = append(s.Assertions, Assertion{Type: AssertDeliveryCount, Count: 5})

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `expected error "type_mismatch", got ""`)
	assert.Contains(t, result.Errors[1], "Expected: 5 deliveries")
}

func TestRun_SetupErrors(t *testing.T) {
	t.Run("missing catalog", func(t *testing.T) {
		s := &Scenario{
			Name:    "missing",
			Catalog: filepath.Join(t.TempDir(), "none"),
			Flow:    []FlowStep{{Ingest: "greenhouse/sensor"}},
		}
		_, err := Run(s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load catalog")
	})

	t.Run("unknown event", func(t *testing.T) {
		s := &Scenario{
			Name:          "unknown",
			Catalog:       filepath.Join("testdata", "catalogs", "greenhouse"),
			Subscriptions: []SubscriptionStep{{Event: "greenhouse/too-cold", Path: "/x"}},
			Flow:          []FlowStep{{Ingest: "greenhouse/sensor"}},
		}
		_, err := Run(s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "subscriptions[0]")
		assert.True(t, store.IsNotFound(err))
	})

	t.Run("broken catalog", func(t *testing.T) {
		dir := t.TempDir()
		src := "package catalog\n\napplication: greenhouse: {\n\tname: \"Greenhouse\"\n\tresource: sensor: {\n\t\tname: \"Sensor\"\n\t\tfields: temp: \"decimal\"\n\t}\n}\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.cue"), []byte(src), 0o644))

		_, err := Run(&Scenario{Name: "broken", Catalog: dir, Flow: []FlowStep{{Ingest: "greenhouse/sensor"}}})
		require.Error(t, err)
	})
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", errorKind(nil))
	assert.Equal(t, ErrorTypeMismatch, errorKind(fmt.Errorf("wrap: %w", &schema.TypeMismatchError{Field: "temp"})))
	assert.Equal(t, ErrorUnknownField, errorKind(&schema.UnknownFieldError{Field: "color"}))
	assert.Equal(t, ErrorNotFound, errorKind(fmt.Errorf("x: %w", store.ErrNotFound)))
	assert.Equal(t, ErrorInvalidPayload, errorKind(fmt.Errorf("%w: bad", ingest.ErrInvalidPayload)))
	assert.Equal(t, ErrorOther, errorKind(errors.New("disk full")))
}
