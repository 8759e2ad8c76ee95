package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/wot/internal/condition"
	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/slug"
)

const eventColumns = `id, application_id, resource_id, name, slug, condition, created, modified`

// CreateEvent inserts an event after checking its condition against the
// resource schema.
func (s *Store) CreateEvent(ctx context.Context, ev domain.Event) (domain.Event, error) {
	if strings.TrimSpace(ev.Name) == "" {
		return domain.Event{}, fmt.Errorf("create event: %w: name is required", ErrInvalid)
	}

	res, err := s.Resource(ctx, ev.ResourceID)
	if err != nil {
		return domain.Event{}, fmt.Errorf("create event: %w", err)
	}
	if res.ApplicationID != ev.ApplicationID {
		return domain.Event{}, fmt.Errorf("create event: resource %d belongs to application %d, not %d",
			res.ID, res.ApplicationID, ev.ApplicationID)
	}
	if err := condition.Check(res.Fields, ev.Condition); err != nil {
		return domain.Event{}, fmt.Errorf("create event %q: %w", ev.Name, err)
	}

	if ev.Slug == "" {
		sl, err := slug.Unique(ev.Name, func(c string) (bool, error) {
			return s.exists(ctx, `SELECT COUNT(*) FROM events WHERE application_id = ? AND slug = ?`, ev.ApplicationID, c)
		})
		if err != nil {
			return domain.Event{}, fmt.Errorf("create event: %w", err)
		}
		ev.Slug = sl
	}

	now := s.timestamp()
	ev.Created, ev.Modified = now, now

	result, err := s.db.NamedExecContext(ctx, `
		INSERT INTO events (application_id, resource_id, name, slug, condition, created, modified)
		VALUES (:application_id, :resource_id, :name, :slug, :condition, :created, :modified)
	`, ev)
	if err != nil {
		if isConstraint(err) {
			return domain.Event{}, fmt.Errorf("create event %q: %w", ev.Slug, ErrConflict)
		}
		return domain.Event{}, fmt.Errorf("create event: %w", err)
	}

	ev.ID, err = result.LastInsertId()
	if err != nil {
		return domain.Event{}, fmt.Errorf("create event: last insert id: %w", err)
	}
	return ev, nil
}

// UpdateEvent replaces an event's name and condition. Slug, resource and
// application are fixed at creation.
func (s *Store) UpdateEvent(ctx context.Context, ev domain.Event) (domain.Event, error) {
	current, err := s.Event(ctx, ev.ID)
	if err != nil {
		return domain.Event{}, fmt.Errorf("update event: %w", err)
	}
	res, err := s.Resource(ctx, current.ResourceID)
	if err != nil {
		return domain.Event{}, fmt.Errorf("update event: %w", err)
	}
	if err := condition.Check(res.Fields, ev.Condition); err != nil {
		return domain.Event{}, fmt.Errorf("update event %q: %w", current.Slug, err)
	}

	if strings.TrimSpace(ev.Name) == "" {
		ev.Name = current.Name
	}
	ev.Modified = s.timestamp()

	_, err = s.db.NamedExecContext(ctx, `
		UPDATE events SET name = :name, condition = :condition, modified = :modified
		WHERE id = :id
	`, ev)
	if err != nil {
		return domain.Event{}, fmt.Errorf("update event %d: %w", ev.ID, err)
	}
	return s.Event(ctx, ev.ID)
}

// Event returns an event by id.
func (s *Store) Event(ctx context.Context, id int64) (domain.Event, error) {
	var ev domain.Event
	err := s.db.GetContext(ctx, &ev, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	if err != nil {
		return domain.Event{}, notFound(err, "event", id)
	}
	return ev, nil
}

// EventBySlug returns an event of an application by slug.
func (s *Store) EventBySlug(ctx context.Context, applicationID int64, sl string) (domain.Event, error) {
	var ev domain.Event
	err := s.db.GetContext(ctx, &ev,
		`SELECT `+eventColumns+` FROM events WHERE application_id = ? AND slug = ?`,
		applicationID, sl)
	if err != nil {
		return domain.Event{}, notFound(err, "event", sl)
	}
	return ev, nil
}

// ListEvents returns up to limit events of a resource with id > afterID, in
// creation order. Pass afterID 0 for the first page.
func (s *Store) ListEvents(ctx context.Context, resourceID, afterID int64, limit int) ([]domain.Event, error) {
	out := []domain.Event{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+eventColumns+` FROM events
		WHERE resource_id = ? AND id > ?
		ORDER BY id ASC
		LIMIT ?
	`, resourceID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

// ListApplicationEvents returns all events of an application in creation order.
func (s *Store) ListApplicationEvents(ctx context.Context, applicationID int64) ([]domain.Event, error) {
	out := []domain.Event{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+eventColumns+` FROM events WHERE application_id = ? ORDER BY id ASC`,
		applicationID)
	if err != nil {
		return nil, fmt.Errorf("list application events: %w", err)
	}
	return out, nil
}

// expectOne returns ErrNotFound if an UPDATE or DELETE touched no row.
func expectOne(res sql.Result, what string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %v: rows affected: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
	}
	return nil
}
