// Package ingest is the write path for data points: resolve the resource,
// store the validated point, then hand it to the trigger coordinator.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/metrics"
)

// ErrInvalidPayload marks a body that is not a JSON object.
var ErrInvalidPayload = errors.New("invalid payload")

// DefaultResourceTTL is how long a resolved resource is cached.
const DefaultResourceTTL = time.Minute

// Store is the persistence the ingester needs.
type Store interface {
	ApplicationBySlug(ctx context.Context, slug string) (domain.Application, error)
	ResourceBySlug(ctx context.Context, applicationID int64, slug string) (domain.Resource, error)
	CreateDataPoint(ctx context.Context, res domain.Resource, data domain.Data) (domain.DataPoint, error)
}

// Notifier is told about every committed data point.
type Notifier interface {
	OnDataPointStored(ctx context.Context, res domain.Resource, dp domain.DataPoint) error
}

// Ingester stores data points and starts their evaluation.
type Ingester struct {
	store    Store
	notifier Notifier
	cache    *ttlcache.Cache[string, domain.Resource]
	metrics  *metrics.Metrics
	logger   *slog.Logger
	ttl      time.Duration
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithResourceTTL sets the resource cache TTL. Zero disables caching.
func WithResourceTTL(d time.Duration) Option {
	return func(i *Ingester) {
		i.ttl = d
	}
}

// WithMetrics records accepted and rejected points.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Ingester) {
		i.metrics = m
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(i *Ingester) {
		i.logger = l
	}
}

// New creates an Ingester. Call Close to stop the cache janitor.
func New(s Store, n Notifier, opts ...Option) *Ingester {
	i := &Ingester{
		store:    s,
		notifier: n,
		logger:   slog.Default(),
		ttl:      DefaultResourceTTL,
	}
	for _, opt := range opts {
		opt(i)
	}

	i.cache = ttlcache.New[string, domain.Resource](
		ttlcache.WithTTL[string, domain.Resource](i.ttl),
		ttlcache.WithDisableTouchOnHit[string, domain.Resource](),
	)
	go i.cache.Start()
	return i
}

// Close stops the cache janitor.
func (i *Ingester) Close() {
	i.cache.Stop()
}

// Resolve returns the resource addressed by application and resource slug.
func (i *Ingester) Resolve(ctx context.Context, appSlug, resSlug string) (domain.Resource, error) {
	key := appSlug + "/" + resSlug
	if i.ttl > 0 {
		if item := i.cache.Get(key); item != nil {
			return item.Value(), nil
		}
	}

	app, err := i.store.ApplicationBySlug(ctx, appSlug)
	if err != nil {
		return domain.Resource{}, err
	}
	res, err := i.store.ResourceBySlug(ctx, app.ID, resSlug)
	if err != nil {
		return domain.Resource{}, err
	}

	if i.ttl > 0 {
		i.cache.Set(key, res, ttlcache.DefaultTTL)
	}
	return res, nil
}

// Forget drops a cached resource so the next write reloads its schema.
func (i *Ingester) Forget(appSlug, resSlug string) {
	i.cache.Delete(appSlug + "/" + resSlug)
}

// Ingest validates and stores one data point, then hands it to the
// notifier. Schema errors are returned as is (errors.Is(err,
// schema.ErrSchema)) and nothing is stored.
//
// The point is committed before evaluation starts; a hand-off failure is
// logged and does not fail the write.
func (i *Ingester) Ingest(ctx context.Context, appSlug, resSlug string, data domain.Data) (domain.DataPoint, error) {
	res, err := i.Resolve(ctx, appSlug, resSlug)
	if err != nil {
		return domain.DataPoint{}, err
	}
	return i.Write(ctx, res, data)
}

// Write stores a data point for an already resolved resource.
func (i *Ingester) Write(ctx context.Context, res domain.Resource, data domain.Data) (domain.DataPoint, error) {
	dp, err := i.store.CreateDataPoint(ctx, res, data)
	if err != nil {
		i.metrics.DataPoint(false)
		i.logger.Debug("data point rejected", "resource", res.Slug, "error", err)
		return domain.DataPoint{}, err
	}
	i.metrics.DataPoint(true)

	if i.notifier != nil {
		if err := i.notifier.OnDataPointStored(ctx, res, dp); err != nil {
			i.logger.Warn("data point hand-off incomplete",
				"resource", res.Slug,
				"data_point_id", dp.ID,
				"error", err,
			)
		}
	}
	return dp, nil
}

// ParseAndIngest decodes a JSON object payload and ingests it.
func (i *Ingester) ParseAndIngest(ctx context.Context, appSlug, resSlug string, raw []byte) (domain.DataPoint, error) {
	data, err := domain.ParseData(raw)
	if err != nil {
		i.metrics.DataPoint(false)
		return domain.DataPoint{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return i.Ingest(ctx, appSlug, resSlug, data)
}
