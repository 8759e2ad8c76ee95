package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/wot/internal/catalog"
	"github.com/roach88/wot/internal/dispatch"
	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/ingest"
	"github.com/roach88/wot/internal/schema"
	"github.com/roach88/wot/internal/store"
	"github.com/roach88/wot/internal/taskqueue"
	"github.com/roach88/wot/internal/testutil"
	"github.com/roach88/wot/internal/trigger"
)

// Harness holds the wiring of one run.
type Harness struct {
	store    *store.Store
	recorder *testutil.WebhookRecorder
	ingester *ingest.Ingester
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each run gets a fresh in-memory database, a virtual clock starting at
// testutil.Epoch and job ids job-0001, job-0002, ... Tasks run inline, so
// every delivery caused by a flow step has arrived when the step returns.
//
// An error is returned when the scenario cannot be set up (bad catalog,
// unknown event). Failed expectations are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with a caller-supplied logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	ctx := context.Background()

	h, err := setup(ctx, scenario, logger)
	if err != nil {
		return nil, err
	}
	defer h.close()

	result := NewResult()
	seen := 0
	for i, step := range scenario.Flow {
		n := i + 1
		app, res, _ := splitRef(step.Ingest)

		event := TraceEvent{Type: TraceIngest, Step: n}
		dp, err := h.ingest(ctx, app, res, step.Data)
		if err != nil {
			event.Error = errorKind(err)
			h.logger.Debug("ingest rejected", "step", n, "error", err)
		} else {
			event.DataPointID = dp.ID
		}
		result.Trace = append(result.Trace, event)

		want := ""
		if step.Expect != nil {
			want = step.Expect.Error
		}
		if event.Error != want {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected error %q, got %q (%v)",
				i, step.Ingest, want, event.Error, err))
		}

		deliveries := h.recorder.Deliveries()
		for _, d := range deliveries[seen:] {
			result.Trace = append(result.Trace, TraceEvent{
				Type:     TraceDelivery,
				Step:     n,
				Path:     d.Path,
				Delivery: d.Header.Get(dispatch.HeaderDelivery),
				Offset:   d.Arrived.Sub(testutil.Epoch).String(),
				Body:     json.RawMessage(d.Body),
			})
		}
		seen = len(deliveries)
	}

	actx := &assertionContext{ctx: ctx, store: h.store, result: result}
	for _, a := range scenario.Assertions {
		if err := evaluateAssertion(actx, a); err != nil {
			result.AddError(err.Error())
		}
	}
	return result, nil
}

func setup(ctx context.Context, scenario *Scenario, logger *slog.Logger) (*Harness, error) {
	clock := testutil.NewVirtualClock()

	st, err := store.Open(":memory:", store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	cat, errs := catalog.Load(scenario.Catalog, catalog.LoadModeCollectAll)
	if len(errs) > 0 {
		st.Close()
		return nil, fmt.Errorf("load catalog %s: %w", scenario.Catalog, errors.Join(errs...))
	}
	if _, err := catalog.Apply(ctx, st, cat); err != nil {
		st.Close()
		return nil, fmt.Errorf("apply catalog: %w", err)
	}

	rec := testutil.StartWebhookRecorder(clock.Now)
	for path, code := range scenario.Responses {
		rec.RespondWith(path, code)
	}

	h := &Harness{store: st, recorder: rec, logger: logger}

	for i, sub := range scenario.Subscriptions {
		if err := h.subscribe(ctx, sub); err != nil {
			h.close()
			return nil, fmt.Errorf("subscriptions[%d]: %w", i, err)
		}
	}

	queue := taskqueue.NewInline(
		taskqueue.WithSleeper(clock.Sleep),
		taskqueue.WithInlineLogger(logger),
	)

	opts := []dispatch.Option{
		dispatch.WithIDGenerator(testutil.NewSequenceIDs("")),
		dispatch.WithClock(clock.Now),
		dispatch.WithLogger(logger),
	}
	if scenario.Dispatch.Pacing > 0 {
		opts = append(opts, dispatch.WithPacing(scenario.Dispatch.Pacing))
	}
	if scenario.Dispatch.MaxAttempts > 1 {
		backoff := scenario.Dispatch.RetryBackoff
		if backoff == 0 {
			backoff = 2 * time.Second
		}
		opts = append(opts, dispatch.WithRetries(scenario.Dispatch.MaxAttempts, backoff))
	}
	d := dispatch.New(st, queue, opts...)

	coord := trigger.New(st, queue, d, trigger.WithLogger(logger))
	h.ingester = ingest.New(st, coord, ingest.WithLogger(logger))
	return h, nil
}

func (h *Harness) subscribe(ctx context.Context, sub SubscriptionStep) error {
	appSlug, evSlug, err := splitRef(sub.Event)
	if err != nil {
		return err
	}
	app, err := h.store.ApplicationBySlug(ctx, appSlug)
	if err != nil {
		return err
	}
	ev, err := h.store.EventBySlug(ctx, app.ID, evSlug)
	if err != nil {
		return err
	}
	_, err = h.store.CreateSubscription(ctx, domain.Subscription{
		EventID:   ev.ID,
		NotifyURL: h.recorder.URL(sub.Path),
	})
	return err
}

func (h *Harness) ingest(ctx context.Context, app, res string, raw map[string]any) (domain.DataPoint, error) {
	data := make(domain.Data, len(raw))
	for k, v := range raw {
		val, err := domain.FromAny(v)
		if err != nil {
			return domain.DataPoint{}, fmt.Errorf("%w: field %q: %v", ingest.ErrInvalidPayload, k, err)
		}
		data[k] = val
	}
	return h.ingester.Ingest(ctx, app, res, data)
}

func (h *Harness) close() {
	if h.ingester != nil {
		h.ingester.Close()
	}
	h.recorder.Close()
	h.store.Close()
}

// errorKind classifies an ingest error for traces and expect clauses.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case schema.IsTypeMismatch(err):
		return ErrorTypeMismatch
	case schema.IsUnknownField(err):
		return ErrorUnknownField
	case store.IsNotFound(err):
		return ErrorNotFound
	case errors.Is(err, ingest.ErrInvalidPayload):
		return ErrorInvalidPayload
	default:
		return ErrorOther
	}
}
