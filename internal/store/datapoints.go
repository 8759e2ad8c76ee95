package store

import (
	"context"
	"fmt"

	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/schema"
)

const dataPointColumns = `id, resource_id, data, created`

// CreateDataPoint validates data against the resource schema and, only if
// it conforms, stores it. For a rejected payload errors.Is(err,
// schema.ErrSchema) holds and nothing is written.
func (s *Store) CreateDataPoint(ctx context.Context, res domain.Resource, data domain.Data) (domain.DataPoint, error) {
	if err := schema.Validate(res.Fields, data); err != nil {
		return domain.DataPoint{}, fmt.Errorf("resource %s: %w", res.Slug, err)
	}
	if data == nil {
		data = domain.Data{}
	}

	dp := domain.DataPoint{
		ResourceID: res.ID,
		Data:       data,
		Created:    s.timestamp(),
	}

	result, err := s.db.NamedExecContext(ctx, `
		INSERT INTO data_points (resource_id, data, created)
		VALUES (:resource_id, :data, :created)
	`, dp)
	if err != nil {
		return domain.DataPoint{}, fmt.Errorf("create data point: %w", err)
	}

	dp.ID, err = result.LastInsertId()
	if err != nil {
		return domain.DataPoint{}, fmt.Errorf("create data point: last insert id: %w", err)
	}
	return dp, nil
}

// DataPoint returns a stored data point by id.
func (s *Store) DataPoint(ctx context.Context, id int64) (domain.DataPoint, error) {
	var dp domain.DataPoint
	err := s.db.GetContext(ctx, &dp, `SELECT `+dataPointColumns+` FROM data_points WHERE id = ?`, id)
	if err != nil {
		return domain.DataPoint{}, notFound(err, "data point", id)
	}
	return dp, nil
}

// LatestDataPoint returns the data point with the highest id for a resource.
func (s *Store) LatestDataPoint(ctx context.Context, resourceID int64) (domain.DataPoint, error) {
	var dp domain.DataPoint
	err := s.db.GetContext(ctx, &dp, `
		SELECT `+dataPointColumns+` FROM data_points
		WHERE resource_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, resourceID)
	if err != nil {
		return domain.DataPoint{}, notFound(err, "latest data point of resource", resourceID)
	}
	return dp, nil
}
