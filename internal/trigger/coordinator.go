// Package trigger fans a stored data point out to its resource's events.
//
// OnDataPointStored pages through the resource's events and submits one
// check_event_condition task per event. The task evaluates the condition
// and, when it holds, hands the trigger to the dispatcher. The caller that
// stored the point never waits for evaluation or delivery.
//
// Each event is isolated: a failure submitting or checking one event is
// logged and the others proceed.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/wot/internal/condition"
	"github.com/roach88/wot/internal/dispatch"
	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/taskqueue"
)

// TaskCheckEvent is the task name of one event evaluation.
const TaskCheckEvent = "check_event_condition"

// DefaultPageSize is the number of events read per page.
const DefaultPageSize = 100

// Store is the persistence the coordinator needs.
type Store interface {
	ListEvents(ctx context.Context, resourceID, afterID int64, limit int) ([]domain.Event, error)
	Event(ctx context.Context, id int64) (domain.Event, error)
	Resource(ctx context.Context, id int64) (domain.Resource, error)
	Application(ctx context.Context, id int64) (domain.Application, error)
	DataPoint(ctx context.Context, id int64) (domain.DataPoint, error)
}

// Dispatcher starts the delivery chain for a satisfied event.
type Dispatcher interface {
	Start(ctx context.Context, tr dispatch.Trigger) error
}

type checkArgs struct {
	EventID     int64 `json:"event_id"`
	DataPointID int64 `json:"data_point_id"`
}

// Coordinator connects stored data points to event evaluation and delivery.
type Coordinator struct {
	store      Store
	queue      taskqueue.Queue
	dispatcher Dispatcher
	evaluator  *condition.Evaluator
	logger     *slog.Logger
	pageSize   int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPageSize sets how many events are read per page.
//
// Default: 100 (DefaultPageSize)
func WithPageSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithEvaluator replaces the condition evaluator.
func WithEvaluator(e *condition.Evaluator) Option {
	return func(c *Coordinator) {
		c.evaluator = e
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// New creates a Coordinator and registers its task handler on the queue.
func New(s Store, q taskqueue.Registrar, d Dispatcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:      s,
		queue:      q,
		dispatcher: d,
		logger:     slog.Default(),
		pageSize:   DefaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.evaluator == nil {
		c.evaluator = condition.NewEvaluator(condition.WithLogger(c.logger))
	}

	q.Register(TaskCheckEvent, c.handleCheck)
	return c
}

// OnDataPointStored submits one evaluation task per event of the resource.
// It must be called after the data point is committed.
//
// The returned error only summarizes what was already logged; the caller
// should log it and carry on. The data point stays stored either way.
func (c *Coordinator) OnDataPointStored(ctx context.Context, res domain.Resource, dp domain.DataPoint) error {
	if dp.ResourceID != res.ID {
		return fmt.Errorf("data point %d belongs to resource %d, not %d", dp.ID, dp.ResourceID, res.ID)
	}

	var (
		errs      []error
		submitted int
		afterID   int64
	)
	for {
		events, err := c.store.ListEvents(ctx, res.ID, afterID, c.pageSize)
		if err != nil {
			c.logger.Error("list events", "resource_id", res.ID, "after_id", afterID, "error", err)
			errs = append(errs, fmt.Errorf("list events of resource %d: %w", res.ID, err))
			break
		}

		for _, ev := range events {
			if err := c.submitCheck(ctx, ev, dp); err != nil {
				c.logger.Error("submit event check",
					"event_id", ev.ID,
					"data_point_id", dp.ID,
					"error", err,
				)
				errs = append(errs, err)
				continue
			}
			submitted++
		}

		if len(events) < c.pageSize {
			break
		}
		afterID = events[len(events)-1].ID
	}

	c.logger.Debug("data point fanned out",
		"resource_id", res.ID,
		"data_point_id", dp.ID,
		"events", submitted,
	)
	return errors.Join(errs...)
}

func (c *Coordinator) submitCheck(ctx context.Context, ev domain.Event, dp domain.DataPoint) error {
	task, err := taskqueue.NewTask(TaskCheckEvent, checkArgs{EventID: ev.ID, DataPointID: dp.ID}, 0)
	if err != nil {
		return err
	}
	if err := c.queue.Submit(ctx, task); err != nil {
		return fmt.Errorf("submit check of event %d: %w", ev.ID, err)
	}
	return nil
}

// Replay re-runs the pipeline for a stored data point. Jobs already in the
// delivery log are not sent again.
func (c *Coordinator) Replay(ctx context.Context, dataPointID int64) error {
	dp, err := c.store.DataPoint(ctx, dataPointID)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	res, err := c.store.Resource(ctx, dp.ResourceID)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	c.logger.Info("replaying data point", "data_point_id", dp.ID, "resource", res.Slug)
	return c.OnDataPointStored(ctx, res, dp)
}

// handleCheck evaluates one event against one data point.
func (c *Coordinator) handleCheck(ctx context.Context, raw json.RawMessage) error {
	var args checkArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("decode check args: %w", err)
	}

	tr, err := c.load(ctx, args)
	if err != nil {
		return err
	}

	if !c.evaluator.Satisfied(ctx, tr.Resource, tr.Event, tr.DataPoint) {
		return nil
	}

	c.logger.Info("event triggered",
		"event_id", tr.Event.ID,
		"event", tr.Event.Slug,
		"data_point_id", tr.DataPoint.ID,
	)

	if err := c.dispatcher.Start(ctx, tr); err != nil {
		return fmt.Errorf("dispatch event %d: %w", tr.Event.ID, err)
	}
	return nil
}

// load reads everything one check needs, at task time.
func (c *Coordinator) load(ctx context.Context, args checkArgs) (dispatch.Trigger, error) {
	ev, err := c.store.Event(ctx, args.EventID)
	if err != nil {
		return dispatch.Trigger{}, fmt.Errorf("check event: %w", err)
	}
	dp, err := c.store.DataPoint(ctx, args.DataPointID)
	if err != nil {
		return dispatch.Trigger{}, fmt.Errorf("check event %d: %w", ev.ID, err)
	}
	if dp.ResourceID != ev.ResourceID {
		return dispatch.Trigger{}, fmt.Errorf("check event %d: data point %d is not of resource %d",
			ev.ID, dp.ID, ev.ResourceID)
	}
	res, err := c.store.Resource(ctx, ev.ResourceID)
	if err != nil {
		return dispatch.Trigger{}, fmt.Errorf("check event %d: %w", ev.ID, err)
	}
	app, err := c.store.Application(ctx, ev.ApplicationID)
	if err != nil {
		return dispatch.Trigger{}, fmt.Errorf("check event %d: %w", ev.ID, err)
	}
	return dispatch.Trigger{Application: app, Resource: res, Event: ev, DataPoint: dp}, nil
}
