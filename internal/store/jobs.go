package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/wot/internal/domain"
)

const jobColumns = `id, data_point_id, event_id, subscription_id, state, attempts, status_code, last_error, created, updated`

// EnsureJob inserts a queued job for (data point, event, subscription) or
// returns the one already recorded for that triple.
// Returns the job and whether it was newly inserted.
func (s *Store) EnsureJob(ctx context.Context, job domain.NotificationJob) (domain.NotificationJob, bool, error) {
	now := s.timestamp()
	job.State = domain.JobQueued
	job.Attempts = 0
	job.Created, job.Updated = now, now

	var (
		out      domain.NotificationJob
		inserted bool
	)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			INSERT INTO notification_jobs
			(id, data_point_id, event_id, subscription_id, state, attempts, status_code, last_error, created, updated)
			VALUES (:id, :data_point_id, :event_id, :subscription_id, :state, :attempts, :status_code, :last_error, :created, :updated)
			ON CONFLICT(data_point_id, event_id, subscription_id) DO NOTHING
		`, job)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		inserted = n > 0

		// Either the row just inserted or the existing one for the triple.
		return tx.GetContext(ctx, &out, `
			SELECT `+jobColumns+` FROM notification_jobs
			WHERE data_point_id = ? AND event_id = ? AND subscription_id = ?
		`, job.DataPointID, job.EventID, job.SubscriptionID)
	})
	if err != nil {
		return domain.NotificationJob{}, false, fmt.Errorf("ensure job: %w", err)
	}
	return out, inserted, nil
}

// TransitionJob moves a job from state `from` to job.State, recording
// attempts, status code and last error. It is a compare-and-set: it returns
// false without error if the job is no longer in `from`.
func (s *Store) TransitionJob(ctx context.Context, job domain.NotificationJob, from domain.JobState) (bool, error) {
	if !from.CanTransition(job.State) {
		return false, fmt.Errorf("job %s: %s -> %s: %w", job.ID, from, job.State, ErrInvalidTransition)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_jobs
		SET state = ?, attempts = ?, status_code = ?, last_error = ?, updated = ?
		WHERE id = ? AND state = ?
	`, job.State, job.Attempts, job.StatusCode, job.LastError, s.timestamp(), job.ID, from)
	if err != nil {
		return false, fmt.Errorf("transition job %s: %w", job.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition job %s: rows affected: %w", job.ID, err)
	}
	return n > 0, nil
}

// Job returns a job by id.
func (s *Store) Job(ctx context.Context, id string) (domain.NotificationJob, error) {
	var job domain.NotificationJob
	err := s.db.GetContext(ctx, &job, `SELECT `+jobColumns+` FROM notification_jobs WHERE id = ?`, id)
	if err != nil {
		return domain.NotificationJob{}, notFound(err, "job", id)
	}
	return job, nil
}

// ListJobs returns the delivery log of a data point, ordered by event then
// subscription creation.
func (s *Store) ListJobs(ctx context.Context, dataPointID int64) ([]domain.NotificationJob, error) {
	out := []domain.NotificationJob{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+jobColumns+` FROM notification_jobs
		WHERE data_point_id = ?
		ORDER BY event_id ASC, subscription_id ASC
	`, dataPointID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

// PruneJobs deletes terminal jobs last updated before cutoff and returns how
// many were removed. Queued and delivering jobs are kept.
func (s *Store) PruneJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM notification_jobs
		WHERE state IN (?, ?) AND updated < ?
	`, domain.JobDelivered, domain.JobFailed, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune jobs: rows affected: %w", err)
	}
	return n, nil
}
