package harness

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trace() []TraceEvent {
	return []TraceEvent{
		{Type: TraceIngest, Step: 1, DataPointID: 1},
		{Type: TraceDelivery, Step: 1, Path: "/a", Delivery: "job-0001", Offset: "0s"},
		{Type: TraceDelivery, Step: 1, Path: "/b", Delivery: "job-0002", Offset: "1s"},
		{Type: TraceIngest, Step: 2, DataPointID: 2},
		{Type: TraceDelivery, Step: 2, Path: "/a", Delivery: "job-0003", Offset: "1s"},
	}
}

func TestAssertDeliveryCount(t *testing.T) {
	assert.NoError(t, assertDeliveryCount(trace(), Assertion{Count: 3}))

	err := assertDeliveryCount(trace(), Assertion{Count: 1})
	var ae *AssertionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, AssertDeliveryCount, ae.Type)
	assert.Equal(t, "3 deliveries", ae.Actual)
}

func TestAssertDeliveryOrder(t *testing.T) {
	assert.NoError(t, assertDeliveryOrder(trace(), Assertion{Paths: []string{"/a", "/b", "/a"}}))

	err := assertDeliveryOrder(trace(), Assertion{Paths: []string{"/b", "/a", "/a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Actual: /a -> /b -> /a")

	assert.Error(t, assertDeliveryOrder(trace(), Assertion{Paths: []string{"/a", "/b"}}))
}

func TestAssertDeliveryGap_PerStep(t *testing.T) {
	// job-0003 arrives at the same offset as job-0002 but belongs to another step.
	assert.NoError(t, assertDeliveryGap(trace(), Assertion{Gap: time.Second}))

	err := assertDeliveryGap(trace(), Assertion{Gap: 2 * time.Second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1s between job-0001 and job-0002")
}

func TestAssertDeliveryGap_BadOffset(t *testing.T) {
	bad := []TraceEvent{{Type: TraceDelivery, Step: 1, Delivery: "job-0001", Offset: "soon"}}
	assert.Error(t, assertDeliveryGap(bad, Assertion{Gap: time.Second}))
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{Type: "delivery_count", Expected: "1", Actual: "2", Trace: trace()}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: delivery_count")
	assert.Contains(t, msg, "step 1 ingest point=1")
	assert.Contains(t, msg, "step 2 delivery job-0003 /a at +1s")
}

func TestEqualCounts(t *testing.T) {
	assert.True(t, equalCounts(map[string]int{"delivered": 2}, map[string]int{"delivered": 2, "failed": 0}))
	assert.False(t, equalCounts(map[string]int{"delivered": 2, "failed": 1}, map[string]int{"delivered": 2}))
	assert.Equal(t, "delivered=2 failed=1", formatCounts(map[string]int{"failed": 1, "delivered": 2, "queued": 0}))
	assert.Equal(t, "none", formatCounts(nil))
}
