package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wot/internal/dispatch"
	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/store"
	"github.com/roach88/wot/internal/taskqueue"
	"github.com/roach88/wot/internal/testutil"
)

type fixture struct {
	store *store.Store
	clock *testutil.VirtualClock
	hooks *testutil.WebhookRecorder
	queue *taskqueue.Inline
	app   domain.Application
	res   domain.Resource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := testutil.NewVirtualClock()

	app, err := s.CreateApplication(ctx, domain.Application{Name: "Greenhouse"})
	require.NoError(t, err)
	res, err := s.CreateResource(ctx, domain.Resource{
		ApplicationID: app.ID,
		Name:          "Sensor",
		Fields: domain.Schema{
			{Name: "temp", Type: domain.TypeFloat},
			{Name: "label", Type: domain.TypeString},
		},
	})
	require.NoError(t, err)

	return &fixture{
		store: s,
		clock: clock,
		hooks: testutil.NewWebhookRecorder(t, clock.Now),
		queue: taskqueue.NewInline(taskqueue.WithSleeper(clock.Sleep)),
		app:   app,
		res:   res,
	}
}

// event creates an event with one subscriber at path.
func (f *fixture) event(t *testing.T, name, path string, cond domain.Condition) domain.Event {
	t.Helper()
	ctx := context.Background()
	ev, err := f.store.CreateEvent(ctx, domain.Event{
		ApplicationID: f.app.ID,
		ResourceID:    f.res.ID,
		Name:          name,
		Condition:     cond,
	})
	require.NoError(t, err)
	_, err = f.store.CreateSubscription(ctx, domain.Subscription{EventID: ev.ID, NotifyURL: f.hooks.URL(path)})
	require.NoError(t, err)
	return ev
}

func (f *fixture) point(t *testing.T, data domain.Data) domain.DataPoint {
	t.Helper()
	dp, err := f.store.CreateDataPoint(context.Background(), f.res, data)
	require.NoError(t, err)
	return dp
}

func (f *fixture) coordinator(s Store, opts ...Option) *Coordinator {
	d := dispatch.New(f.store, f.queue,
		dispatch.WithIDGenerator(testutil.NewSequenceIDs("")),
		dispatch.WithClock(f.clock.Now),
	)
	return New(s, f.queue, d, opts...)
}

func hotter(n int64) domain.Condition {
	return domain.Condition{{Field: "temp", Operator: domain.OpGt, Literal: domain.Int(n)}}
}

func TestOnDataPointStored_NotifiesSatisfiedEvent(t *testing.T) {
	f := newFixture(t)
	f.event(t, "Too Hot", "/hot", hotter(100))
	c := f.coordinator(f.store)

	dp := f.point(t, domain.Data{"temp": domain.String("101.5")})
	require.NoError(t, c.OnDataPointStored(context.Background(), f.res, dp))

	got := f.hooks.Deliveries()
	require.Len(t, got, 1)
	assert.JSONEq(t,
		`{"name":"too-hot","application":"greenhouse","resource":{"name":"sensor","data":{"temp":"101.5"}}}`,
		string(got[0].Body))
}

func TestOnDataPointStored_UnsatisfiedSendsNothing(t *testing.T) {
	f := newFixture(t)
	f.event(t, "Too Hot", "/hot", hotter(100))
	c := f.coordinator(f.store)

	dp := f.point(t, domain.Data{"temp": domain.Float(99)})
	require.NoError(t, c.OnDataPointStored(context.Background(), f.res, dp))

	assert.Empty(t, f.hooks.Deliveries())
	jobs, err := f.store.ListJobs(context.Background(), dp.ID)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestOnDataPointStored_FailingEventDoesNotBlockSiblings(t *testing.T) {
	f := newFixture(t)
	// Ordering a string field against a number cannot be evaluated.
	f.event(t, "Broken", "/broken", domain.Condition{
		{Field: "label", Operator: domain.OpGt, Literal: domain.Int(5)},
	})
	f.event(t, "Too Hot", "/hot", hotter(100))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c := f.coordinator(f.store, WithLogger(logger))

	dp := f.point(t, domain.Data{"temp": domain.Float(120), "label": domain.String("x")})
	require.NoError(t, c.OnDataPointStored(context.Background(), f.res, dp))

	assert.Equal(t, []string{"/hot"}, f.hooks.Paths())
	assert.Contains(t, buf.String(), "condition not evaluable")
}

func TestOnDataPointStored_StoreFailureIsolatedPerEvent(t *testing.T) {
	f := newFixture(t)
	bad := f.event(t, "First", "/first", hotter(0))
	f.event(t, "Second", "/second", hotter(0))

	s := &flakyStore{Store: f.store, failEvent: bad.ID}
	c := f.coordinator(s)

	dp := f.point(t, domain.Data{"temp": domain.Float(1)})
	require.NoError(t, c.OnDataPointStored(context.Background(), f.res, dp))

	assert.Equal(t, []string{"/second"}, f.hooks.Paths())
}

func TestOnDataPointStored_ResourceMismatch(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(f.store)

	dp := f.point(t, domain.Data{"temp": domain.Float(1)})
	other := f.res
	other.ID = f.res.ID + 100

	assert.Error(t, c.OnDataPointStored(context.Background(), other, dp))
}

func TestOnDataPointStored_PagesThroughEvents(t *testing.T) {
	f := newFixture(t)
	var want []int64
	for i := 0; i < 5; i++ {
		ev := f.event(t, "Event", "/e", nil)
		want = append(want, ev.ID)
	}

	q := &recordingQueue{}
	c := New(f.store, q, nil, WithPageSize(2))

	dp := f.point(t, domain.Data{"temp": domain.Float(1)})
	require.NoError(t, c.OnDataPointStored(context.Background(), f.res, dp))

	assert.Equal(t, want, q.eventIDs(t))
}

func TestOnDataPointStored_SubmitFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.event(t, "One", "/one", nil)
	f.event(t, "Two", "/two", nil)

	q := &recordingQueue{fail: taskqueue.ErrQueueClosed}
	c := New(f.store, q, nil)

	dp := f.point(t, domain.Data{"temp": domain.Float(1)})
	err := c.OnDataPointStored(context.Background(), f.res, dp)

	require.Error(t, err)
	assert.ErrorIs(t, err, taskqueue.ErrQueueClosed)
	assert.Equal(t, 2, q.attempts)
}

func TestReplay_DoesNotResend(t *testing.T) {
	f := newFixture(t)
	f.event(t, "Too Hot", "/hot", hotter(100))
	c := f.coordinator(f.store)
	ctx := context.Background()

	dp := f.point(t, domain.Data{"temp": domain.Float(150)})
	require.NoError(t, c.OnDataPointStored(ctx, f.res, dp))
	require.NoError(t, c.Replay(ctx, dp.ID))

	assert.Len(t, f.hooks.Deliveries(), 1)
}

func TestReplay_UnknownDataPoint(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(f.store)

	err := c.Replay(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))
}

// flakyStore fails Event lookups for one event.
type flakyStore struct {
	*store.Store
	failEvent int64
}

func (s *flakyStore) Event(ctx context.Context, id int64) (domain.Event, error) {
	if id == s.failEvent {
		return domain.Event{}, errors.New("disk on fire")
	}
	return s.Store.Event(ctx, id)
}

// recordingQueue keeps submitted tasks without running them.
type recordingQueue struct {
	mu       sync.Mutex
	tasks    []taskqueue.Task
	attempts int
	fail     error
}

func (q *recordingQueue) Register(string, taskqueue.Handler) {}

func (q *recordingQueue) Submit(_ context.Context, t taskqueue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.attempts++
	if q.fail != nil {
		return q.fail
	}
	q.tasks = append(q.tasks, t)
	return nil
}

func (q *recordingQueue) eventIDs(t *testing.T) []int64 {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	var ids []int64
	for _, task := range q.tasks {
		require.Equal(t, TaskCheckEvent, task.Name)
		var args checkArgs
		require.NoError(t, json.Unmarshal(task.Args, &args))
		ids = append(ids, args.EventID)
	}
	return ids
}
