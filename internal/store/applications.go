package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/slug"
)

const applicationColumns = `id, name, slug, is_private, created, modified`

// CreateApplication inserts an application. An empty Slug is derived from
// Name and made unique; an explicit Slug that is taken returns ErrConflict.
func (s *Store) CreateApplication(ctx context.Context, app domain.Application) (domain.Application, error) {
	if strings.TrimSpace(app.Name) == "" {
		return domain.Application{}, fmt.Errorf("create application: %w: name is required", ErrInvalid)
	}

	if app.Slug == "" {
		sl, err := slug.Unique(app.Name, func(c string) (bool, error) {
			return s.exists(ctx, `SELECT COUNT(*) FROM applications WHERE slug = ?`, c)
		})
		if err != nil {
			return domain.Application{}, fmt.Errorf("create application: %w", err)
		}
		app.Slug = sl
	}

	now := s.timestamp()
	app.Created, app.Modified = now, now

	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO applications (name, slug, is_private, created, modified)
		VALUES (:name, :slug, :is_private, :created, :modified)
	`, app)
	if err != nil {
		if isConstraint(err) {
			return domain.Application{}, fmt.Errorf("create application %q: %w", app.Slug, ErrConflict)
		}
		return domain.Application{}, fmt.Errorf("create application: %w", err)
	}

	app.ID, err = res.LastInsertId()
	if err != nil {
		return domain.Application{}, fmt.Errorf("create application: last insert id: %w", err)
	}
	return app, nil
}

// UpdateApplication replaces the name and privacy flag. The slug is stable.
func (s *Store) UpdateApplication(ctx context.Context, app domain.Application) (domain.Application, error) {
	app.Modified = s.timestamp()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE applications SET name = :name, is_private = :is_private, modified = :modified
		WHERE id = :id
	`, app)
	if err != nil {
		return domain.Application{}, fmt.Errorf("update application %d: %w", app.ID, err)
	}
	if err := expectOne(res, "application", app.ID); err != nil {
		return domain.Application{}, err
	}
	return s.Application(ctx, app.ID)
}

// Application returns an application by id.
func (s *Store) Application(ctx context.Context, id int64) (domain.Application, error) {
	var app domain.Application
	err := s.db.GetContext(ctx, &app, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)
	if err != nil {
		return domain.Application{}, notFound(err, "application", id)
	}
	return app, nil
}

// ApplicationBySlug returns an application by slug.
func (s *Store) ApplicationBySlug(ctx context.Context, sl string) (domain.Application, error) {
	var app domain.Application
	err := s.db.GetContext(ctx, &app, `SELECT `+applicationColumns+` FROM applications WHERE slug = ?`, sl)
	if err != nil {
		return domain.Application{}, notFound(err, "application", sl)
	}
	return app, nil
}

// ListApplications returns all applications in creation order.
func (s *Store) ListApplications(ctx context.Context) ([]domain.Application, error) {
	apps := []domain.Application{}
	err := s.db.SelectContext(ctx, &apps, `SELECT `+applicationColumns+` FROM applications ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return false, err
	}
	return n > 0, nil
}
