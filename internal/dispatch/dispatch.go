// Package dispatch delivers event notifications to subscriber webhooks.
//
// One trigger (a data point that satisfied an event) becomes a chain of
// deliver_notification tasks, one per subscription in creation order. Each
// link POSTs one job and then submits the next link with a Delay equal to
// the pacing interval, so a trigger never has more than one job in flight
// and consecutive jobs start at least one interval apart. No worker ever
// sleeps.
//
// Every job is recorded in the delivery log as queued when the trigger
// starts, under the unique key (data point, event, subscription). Only a
// job found in state queued is delivered, which makes re-running a trigger
// safe and lets a replay finish a chain that shutdown cut short.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/metrics"
	"github.com/roach88/wot/internal/store"
	"github.com/roach88/wot/internal/taskqueue"
)

// TaskDeliver is the task name of one chain link.
const TaskDeliver = "deliver_notification"

// Defaults.
const (
	DefaultPacing       = time.Second
	DefaultTimeout      = 10 * time.Second
	DefaultMaxAttempts  = 1
	DefaultRetryBackoff = 2 * time.Second
)

// UserAgent is sent with every delivery.
const UserAgent = "wot-dispatcher"

// HeaderDelivery carries the notification job id.
const HeaderDelivery = "X-Wot-Delivery"

// Store is the persistence the dispatcher needs.
type Store interface {
	ListSubscriptions(ctx context.Context, eventID int64) ([]domain.Subscription, error)
	Subscription(ctx context.Context, id int64) (domain.Subscription, error)
	EnsureJob(ctx context.Context, job domain.NotificationJob) (domain.NotificationJob, bool, error)
	TransitionJob(ctx context.Context, job domain.NotificationJob, from domain.JobState) (bool, error)
}

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Trigger is one satisfied (data point, event) pair.
type Trigger struct {
	Application domain.Application
	Resource    domain.Resource
	Event       domain.Event
	DataPoint   domain.DataPoint
}

// deliverArgs are the JSON arguments of a chain link.
type deliverArgs struct {
	DataPointID   int64           `json:"data_point_id"`
	EventID       int64           `json:"event_id"`
	Subscriptions []int64         `json:"subscriptions"`
	Attempt       int             `json:"attempt,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Dispatcher delivers notifications.
type Dispatcher struct {
	store   Store
	queue   taskqueue.Queue
	client  Doer
	ids     IDGenerator
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	pacing       time.Duration
	maxAttempts  int
	retryBackoff time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPacing sets the minimum gap between consecutive jobs of one trigger.
//
// Default: 1s (DefaultPacing)
func WithPacing(d time.Duration) Option {
	return func(disp *Dispatcher) {
		disp.pacing = d
	}
}

// WithRetries enables bounded retries. maxAttempts counts the first try;
// retry n waits backoff * 2^(n-1).
//
// Default: 1 attempt, no retries.
func WithRetries(maxAttempts int, backoff time.Duration) Option {
	return func(disp *Dispatcher) {
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		disp.maxAttempts = maxAttempts
		disp.retryBackoff = backoff
	}
}

// WithClient replaces the HTTP client. The default is an *http.Client with
// DefaultTimeout.
func WithClient(c Doer) Option {
	return func(disp *Dispatcher) {
		disp.client = c
	}
}

// WithIDGenerator replaces the UUIDv7 job id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(disp *Dispatcher) {
		disp.ids = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(disp *Dispatcher) {
		disp.logger = l
	}
}

// WithMetrics sets the collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(disp *Dispatcher) {
		disp.metrics = m
	}
}

// WithClock sets the time source used to measure delivery time.
func WithClock(now func() time.Time) Option {
	return func(disp *Dispatcher) {
		disp.now = now
	}
}

// New creates a Dispatcher and registers its task handler on the queue.
func New(s Store, q taskqueue.Registrar, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:        s,
		queue:        q,
		client:       &http.Client{Timeout: DefaultTimeout},
		ids:          UUIDv7Generator{},
		logger:       slog.Default(),
		now:          time.Now,
		pacing:       DefaultPacing,
		maxAttempts:  DefaultMaxAttempts,
		retryBackoff: DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(d)
	}

	q.Register(TaskDeliver, d.handleDeliver)
	return d
}

// Start begins the delivery chain for a trigger. It snapshots the event's
// subscriptions and submits the first link; it does not wait for delivery.
// A trigger with no subscriptions is a no-op.
func (d *Dispatcher) Start(ctx context.Context, tr Trigger) error {
	subs, err := d.store.ListSubscriptions(ctx, tr.Event.ID)
	if err != nil {
		return fmt.Errorf("list subscriptions of event %d: %w", tr.Event.ID, err)
	}
	if len(subs) == 0 {
		d.logger.Debug("event has no subscribers", "event_id", tr.Event.ID)
		return nil
	}

	payload, err := json.Marshal(domain.NewNotification(tr.Application, tr.Resource, tr.Event, tr.DataPoint))
	if err != nil {
		return fmt.Errorf("build payload for event %d: %w", tr.Event.ID, err)
	}

	ids := make([]int64, len(subs))
	for i, s := range subs {
		ids[i] = s.ID
		// Record every job before the first delivery, so a chain cut short
		// by shutdown leaves its remaining jobs queued.
		if _, _, err := d.store.EnsureJob(ctx, domain.NotificationJob{
			ID:             d.ids.Generate(),
			DataPointID:    tr.DataPoint.ID,
			EventID:        tr.Event.ID,
			SubscriptionID: s.ID,
		}); err != nil {
			return fmt.Errorf("record job for subscription %d: %w", s.ID, err)
		}
	}

	d.logger.Info("dispatching notifications",
		"event_id", tr.Event.ID,
		"event", tr.Event.Slug,
		"data_point_id", tr.DataPoint.ID,
		"subscribers", len(ids),
	)

	return d.submit(ctx, deliverArgs{
		DataPointID:   tr.DataPoint.ID,
		EventID:       tr.Event.ID,
		Subscriptions: ids,
		Payload:       payload,
	}, 0)
}

func (d *Dispatcher) submit(ctx context.Context, args deliverArgs, delay time.Duration) error {
	task, err := taskqueue.NewTask(TaskDeliver, args, delay)
	if err != nil {
		return err
	}
	if err := d.queue.Submit(ctx, task); err != nil {
		return fmt.Errorf("submit delivery for event %d: %w", args.EventID, err)
	}
	return nil
}

// handleDeliver runs one chain link: deliver the head subscription's job,
// then submit either a retry of the same job or the rest of the chain.
func (d *Dispatcher) handleDeliver(ctx context.Context, raw json.RawMessage) error {
	var args deliverArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("decode delivery args: %w", err)
	}
	if len(args.Subscriptions) == 0 {
		return nil
	}

	// A started link finishes and records its outcome even if the caller
	// gives up; the HTTP client timeout bounds it.
	ctx = context.WithoutCancel(ctx)

	ran, retry := d.deliverHead(ctx, args)

	if retry {
		args.Attempt++
		return d.continueChain(ctx, args, d.backoff(args.Attempt))
	}

	rest := args
	rest.Subscriptions = args.Subscriptions[1:]
	rest.Attempt = 0
	if len(rest.Subscriptions) == 0 {
		return nil
	}

	delay := time.Duration(0)
	if ran {
		delay = d.pacing
	}
	return d.continueChain(ctx, rest, delay)
}

// continueChain submits the next link. Once the queue has shut down the
// chain stops; its jobs stay queued in the delivery log, and replaying the
// data point delivers them.
func (d *Dispatcher) continueChain(ctx context.Context, args deliverArgs, delay time.Duration) error {
	err := d.submit(ctx, args, delay)
	if errors.Is(err, taskqueue.ErrQueueClosed) {
		d.logger.Warn("task queue closed, notifications left queued",
			"event_id", args.EventID,
			"data_point_id", args.DataPointID,
			"jobs", len(args.Subscriptions),
		)
		return nil
	}
	return err
}

// deliverHead delivers the job of the first subscription in args.
// ran reports whether a POST was attempted; retry whether the same job
// should be attempted again. Failures are logged, never returned, so one
// subscriber cannot stop the chain.
func (d *Dispatcher) deliverHead(ctx context.Context, args deliverArgs) (ran, retry bool) {
	subID := args.Subscriptions[0]
	log := d.logger.With(
		"event_id", args.EventID,
		"data_point_id", args.DataPointID,
		"subscription_id", subID,
	)

	sub, err := d.store.Subscription(ctx, subID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Info("subscription removed before delivery")
		} else {
			log.Error("load subscription", "error", err)
		}
		d.metrics.Delivery(metrics.Skipped, 0)
		return false, false
	}

	job, created, err := d.store.EnsureJob(ctx, domain.NotificationJob{
		ID:             d.ids.Generate(),
		DataPointID:    args.DataPointID,
		EventID:        args.EventID,
		SubscriptionID: subID,
	})
	if err != nil {
		log.Error("record notification job", "error", err)
		d.metrics.Delivery(metrics.Skipped, 0)
		return false, false
	}
	log = log.With("job_id", job.ID)

	if job.State != domain.JobQueued {
		log.Info("notification job already handled", "state", job.State, "created", created)
		d.metrics.Delivery(metrics.Skipped, 0)
		return false, false
	}

	job.State = domain.JobDelivering
	job.Attempts++
	claimed, err := d.store.TransitionJob(ctx, job, domain.JobQueued)
	if err != nil || !claimed {
		if err != nil {
			log.Error("claim notification job", "error", err)
		}
		d.metrics.Delivery(metrics.Skipped, 0)
		return false, false
	}

	start := d.now()
	status, deliverErr := d.post(ctx, job.ID, sub.NotifyURL, args.Payload)
	elapsed := d.now().Sub(start)

	job.StatusCode = status
	if deliverErr == nil {
		job.State = domain.JobDelivered
		job.LastError = ""
		d.finish(ctx, log, job)
		d.metrics.Delivery(metrics.Delivered, elapsed)
		log.Info("notification delivered", "url", sub.NotifyURL, "status", status, "attempt", job.Attempts)
		return true, false
	}

	job.LastError = deliverErr.Error()
	if job.Attempts < d.maxAttempts {
		job.State = domain.JobQueued
		d.finish(ctx, log, job)
		d.metrics.Delivery(metrics.Retried, elapsed)
		log.Warn("notification failed, will retry",
			"url", sub.NotifyURL,
			"attempt", job.Attempts,
			"max_attempts", d.maxAttempts,
			"error", deliverErr,
		)
		return true, true
	}

	job.State = domain.JobFailed
	d.finish(ctx, log, job)
	d.metrics.Delivery(metrics.Failed, elapsed)
	log.Error("notification failed",
		"url", sub.NotifyURL,
		"attempt", job.Attempts,
		"error", deliverErr,
	)
	return true, false
}

// finish records the outcome of a delivering job.
func (d *Dispatcher) finish(ctx context.Context, log *slog.Logger, job domain.NotificationJob) {
	if _, err := d.store.TransitionJob(ctx, job, domain.JobDelivering); err != nil {
		log.Error("record delivery outcome", "state", job.State, "error", err)
	}
}

// post sends the payload. Network failure, timeout and non-2xx are all a
// *DeliveryError. The returned status is 0 when no response arrived.
func (d *Dispatcher) post(ctx context.Context, jobID, url string, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, &DeliveryError{JobID: jobID, URL: url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(HeaderDelivery, jobID)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, &DeliveryError{JobID: jobID, URL: url, Err: err}
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &DeliveryError{JobID: jobID, URL: url, StatusCode: resp.StatusCode}
	}
	return resp.StatusCode, nil
}

// backoff returns the wait before retry n (n >= 1).
func (d *Dispatcher) backoff(n int) time.Duration {
	wait := d.retryBackoff
	for i := 1; i < n; i++ {
		wait *= 2
	}
	if wait < d.pacing {
		// A retry is still the next job of the trigger.
		wait = d.pacing
	}
	return wait
}
