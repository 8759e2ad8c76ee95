package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/schema"
	"github.com/roach88/wot/internal/slug"
)

const resourceColumns = `id, application_id, name, slug, fields, created, modified`

// CreateResource inserts a resource after checking its schema declaration.
// The schema is immutable once stored.
func (s *Store) CreateResource(ctx context.Context, res domain.Resource) (domain.Resource, error) {
	if strings.TrimSpace(res.Name) == "" {
		return domain.Resource{}, fmt.Errorf("create resource: %w: name is required", ErrInvalid)
	}
	if err := schema.CheckDefinition(res.Fields); err != nil {
		return domain.Resource{}, fmt.Errorf("create resource %q: %w", res.Name, err)
	}

	if res.Slug == "" {
		sl, err := slug.Unique(res.Name, func(c string) (bool, error) {
			return s.exists(ctx, `SELECT COUNT(*) FROM resources WHERE application_id = ? AND slug = ?`, res.ApplicationID, c)
		})
		if err != nil {
			return domain.Resource{}, fmt.Errorf("create resource: %w", err)
		}
		res.Slug = sl
	}

	now := s.timestamp()
	res.Created, res.Modified = now, now

	result, err := s.db.NamedExecContext(ctx, `
		INSERT INTO resources (application_id, name, slug, fields, created, modified)
		VALUES (:application_id, :name, :slug, :fields, :created, :modified)
	`, res)
	if err != nil {
		if isConstraint(err) {
			return domain.Resource{}, fmt.Errorf("create resource %q: %w", res.Slug, ErrConflict)
		}
		return domain.Resource{}, fmt.Errorf("create resource: %w", err)
	}

	res.ID, err = result.LastInsertId()
	if err != nil {
		return domain.Resource{}, fmt.Errorf("create resource: last insert id: %w", err)
	}
	return res, nil
}

// Resource returns a resource with its schema.
func (s *Store) Resource(ctx context.Context, id int64) (domain.Resource, error) {
	var res domain.Resource
	err := s.db.GetContext(ctx, &res, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	if err != nil {
		return domain.Resource{}, notFound(err, "resource", id)
	}
	return res, nil
}

// ResourceBySlug returns a resource of an application by slug.
func (s *Store) ResourceBySlug(ctx context.Context, applicationID int64, sl string) (domain.Resource, error) {
	var res domain.Resource
	err := s.db.GetContext(ctx, &res,
		`SELECT `+resourceColumns+` FROM resources WHERE application_id = ? AND slug = ?`,
		applicationID, sl)
	if err != nil {
		return domain.Resource{}, notFound(err, "resource", sl)
	}
	return res, nil
}

// ListResources returns an application's resources in creation order.
func (s *Store) ListResources(ctx context.Context, applicationID int64) ([]domain.Resource, error) {
	out := []domain.Resource{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+resourceColumns+` FROM resources WHERE application_id = ? ORDER BY id ASC`,
		applicationID)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return out, nil
}
