package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wot/internal/domain"
)

func newJob(t *testing.T, s *Store, f fixture) (domain.NotificationJob, domain.DataPoint) {
	t.Helper()
	dp, err := s.CreateDataPoint(context.Background(), f.res, domain.Data{"temp": domain.Float(120)})
	require.NoError(t, err)
	return domain.NotificationJob{
		ID:             "job-1",
		DataPointID:    dp.ID,
		EventID:        f.ev.ID,
		SubscriptionID: f.sub.ID,
	}, dp
}

func TestEnsureJob_InsertOrSelect(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	f := seed(t, s)
	job, _ := newJob(t, s, f)

	first, inserted, err := s.EnsureJob(ctx, job)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, domain.JobQueued, first.State)
	assert.Equal(t, "job-1", first.ID)

	// Same triple, different id: the original row wins.
	job.ID = "job-2"
	second, inserted, err := s.EnsureJob(ctx, job)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "job-1", second.ID)

	var count int
	require.NoError(t, s.db.Get(&count, "SELECT COUNT(*) FROM notification_jobs"))
	assert.Equal(t, 1, count)
}

func TestTransitionJob_CompareAndSet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	f := seed(t, s)
	job, _ := newJob(t, s, f)

	job, _, err := s.EnsureJob(ctx, job)
	require.NoError(t, err)

	job.State = domain.JobDelivering
	job.Attempts = 1
	ok, err := s.TransitionJob(ctx, job, domain.JobQueued)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second worker racing for the same job loses.
	ok, err = s.TransitionJob(ctx, job, domain.JobQueued)
	require.NoError(t, err)
	assert.False(t, ok)

	job.State = domain.JobDelivered
	job.StatusCode = 200
	ok, err = s.TransitionJob(ctx, job, domain.JobDelivering)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobDelivered, got.State)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, 200, got.StatusCode)
}

func TestTransitionJob_RejectsInvalidTransition(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	f := seed(t, s)
	job, _ := newJob(t, s, f)
	job, _, err := s.EnsureJob(ctx, job)
	require.NoError(t, err)

	job.State = domain.JobDelivered
	_, err = s.TransitionJob(ctx, job, domain.JobQueued)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestListJobs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	f := seed(t, s)
	job, dp := newJob(t, s, f)
	_, _, err := s.EnsureJob(ctx, job)
	require.NoError(t, err)

	jobs, err := s.ListJobs(ctx, dp.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, f.sub.ID, jobs[0].SubscriptionID)

	none, err := s.ListJobs(ctx, dp.ID+1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPruneJobs_KeepsActiveAndRecent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	f := seed(t, s)
	job, _ := newJob(t, s, f)

	job, _, err := s.EnsureJob(ctx, job)
	require.NoError(t, err)

	// Queued jobs are never pruned.
	n, err := s.PruneJobs(ctx, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	job.State = domain.JobDelivering
	_, err = s.TransitionJob(ctx, job, domain.JobQueued)
	require.NoError(t, err)
	job.State = domain.JobFailed
	_, err = s.TransitionJob(ctx, job, domain.JobDelivering)
	require.NoError(t, err)

	// Updated at testNow: not older than the cutoff.
	n, err = s.PruneJobs(ctx, testNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.PruneJobs(ctx, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeleteSubscription_CascadesToJobs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	f := seed(t, s)
	job, dp := newJob(t, s, f)
	_, _, err := s.EnsureJob(ctx, job)
	require.NoError(t, err)

	require.NoError(t, s.DeleteSubscription(ctx, f.sub.ID))

	jobs, err := s.ListJobs(ctx, dp.ID)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
