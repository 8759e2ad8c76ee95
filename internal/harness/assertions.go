package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			switch event.Type {
			case TraceIngest:
				fmt.Fprintf(&buf, "  [%d] step %d ingest point=%d error=%q\n", i+1, event.Step, event.DataPointID, event.Error)
			case TraceDelivery:
				fmt.Fprintf(&buf, "  [%d] step %d delivery %s %s at +%s\n", i+1, event.Step, event.Delivery, event.Path, event.Offset)
			}
		}
	}
	return buf.String()
}

type assertionContext struct {
	ctx    context.Context
	store  *store.Store
	result *Result
}

func evaluateAssertion(ac *assertionContext, a Assertion) error {
	switch a.Type {
	case AssertDeliveryCount:
		return assertDeliveryCount(ac.result.Trace, a)
	case AssertDeliveryOrder:
		return assertDeliveryOrder(ac.result.Trace, a)
	case AssertDeliveryGap:
		return assertDeliveryGap(ac.result.Trace, a)
	case AssertStoredPoints:
		return assertStoredPoints(ac, a)
	case AssertJobStates:
		return assertJobStates(ac, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func deliveryPaths(trace []TraceEvent) []string {
	var paths []string
	for _, e := range trace {
		if e.Type == TraceDelivery {
			paths = append(paths, e.Path)
		}
	}
	return paths
}

func assertDeliveryCount(trace []TraceEvent, a Assertion) error {
	got := len(deliveryPaths(trace))
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertDeliveryCount,
		Expected: fmt.Sprintf("%d deliveries", a.Count),
		Actual:   fmt.Sprintf("%d deliveries", got),
		Trace:    trace,
	}
}

// assertDeliveryOrder requires the exact arrival sequence.
func assertDeliveryOrder(trace []TraceEvent, a Assertion) error {
	got := deliveryPaths(trace)
	if equalStrings(got, a.Paths) {
		return nil
	}
	return &AssertionError{
		Type:     AssertDeliveryOrder,
		Expected: strings.Join(a.Paths, " -> "),
		Actual:   strings.Join(got, " -> "),
		Trace:    trace,
	}
}

// assertDeliveryGap checks consecutive arrivals of one flow step.
func assertDeliveryGap(trace []TraceEvent, a Assertion) error {
	var prev *TraceEvent
	var prevAt time.Duration
	for i := range trace {
		e := &trace[i]
		if e.Type != TraceDelivery {
			continue
		}
		at, err := time.ParseDuration(e.Offset)
		if err != nil {
			return fmt.Errorf("delivery %s: bad offset %q: %w", e.Delivery, e.Offset, err)
		}
		if prev != nil && prev.Step == e.Step && at-prevAt < a.Gap {
			return &AssertionError{
				Type:     AssertDeliveryGap,
				Expected: fmt.Sprintf("at least %s between deliveries", a.Gap),
				Actual:   fmt.Sprintf("%s between %s and %s", at-prevAt, prev.Delivery, e.Delivery),
				Trace:    trace,
			}
		}
		prev, prevAt = e, at
	}
	return nil
}

func assertStoredPoints(ac *assertionContext, a Assertion) error {
	appSlug, resSlug, err := splitRef(a.Resource)
	if err != nil {
		return err
	}
	app, err := ac.store.ApplicationBySlug(ac.ctx, appSlug)
	if err != nil {
		return fmt.Errorf("stored_points: %w", err)
	}
	res, err := ac.store.ResourceBySlug(ac.ctx, app.ID, resSlug)
	if err != nil {
		return fmt.Errorf("stored_points: %w", err)
	}

	var got int
	if err := ac.store.DB().GetContext(ac.ctx, &got,
		`SELECT COUNT(*) FROM data_points WHERE resource_id = ?`, res.ID); err != nil {
		return fmt.Errorf("stored_points: count: %w", err)
	}
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertStoredPoints,
		Expected: fmt.Sprintf("%d data points in %s", a.Count, a.Resource),
		Actual:   fmt.Sprintf("%d data points", got),
	}
}

func assertJobStates(ac *assertionContext, a Assertion) error {
	got := make(map[string]int)
	for _, e := range ac.result.Trace {
		if e.Type != TraceIngest || e.DataPointID == 0 {
			continue
		}
		jobs, err := ac.store.ListJobs(ac.ctx, e.DataPointID)
		if err != nil {
			return fmt.Errorf("job_states: %w", err)
		}
		for _, j := range jobs {
			got[string(j.State)]++
		}
	}

	if equalCounts(got, a.States) {
		return nil
	}
	return &AssertionError{
		Type:     AssertJobStates,
		Expected: formatCounts(a.States),
		Actual:   formatCounts(got),
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// equalCounts treats a missing state as zero.
func equalCounts(got, want map[string]int) bool {
	for _, s := range []domain.JobState{domain.JobQueued, domain.JobDelivering, domain.JobDelivered, domain.JobFailed} {
		if got[string(s)] != want[string(s)] {
			return false
		}
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "none"
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return strings.Join(parts, " ")
}
