// Package api serves the REST interface over applications, resources,
// events, subscriptions and data points.
//
// Entities are addressed by slug under /api/{app}. Creation answers 201
// with a Location header; schema and definition errors answer 400 and
// unknown entities 404.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/ingest"
	"github.com/roach88/wot/internal/metrics"
)

// Store is the persistence the API reads and writes.
type Store interface {
	CreateApplication(ctx context.Context, app domain.Application) (domain.Application, error)
	Application(ctx context.Context, id int64) (domain.Application, error)
	ApplicationBySlug(ctx context.Context, slug string) (domain.Application, error)
	ListApplications(ctx context.Context) ([]domain.Application, error)

	CreateResource(ctx context.Context, res domain.Resource) (domain.Resource, error)
	Resource(ctx context.Context, id int64) (domain.Resource, error)
	ResourceBySlug(ctx context.Context, applicationID int64, slug string) (domain.Resource, error)
	ListResources(ctx context.Context, applicationID int64) ([]domain.Resource, error)

	CreateEvent(ctx context.Context, ev domain.Event) (domain.Event, error)
	UpdateEvent(ctx context.Context, ev domain.Event) (domain.Event, error)
	EventBySlug(ctx context.Context, applicationID int64, slug string) (domain.Event, error)
	ListEvents(ctx context.Context, resourceID, afterID int64, limit int) ([]domain.Event, error)
	ListApplicationEvents(ctx context.Context, applicationID int64) ([]domain.Event, error)

	CreateSubscription(ctx context.Context, sub domain.Subscription) (domain.Subscription, error)
	UpdateSubscription(ctx context.Context, sub domain.Subscription) (domain.Subscription, error)
	DeleteSubscription(ctx context.Context, id int64) error
	Subscription(ctx context.Context, id int64) (domain.Subscription, error)
	ListSubscriptions(ctx context.Context, eventID int64) ([]domain.Subscription, error)

	LatestDataPoint(ctx context.Context, resourceID int64) (domain.DataPoint, error)
}

// Server holds the API dependencies.
type Server struct {
	store    Store
	ingester *ingest.Ingester
	limiter  *ipLimiter
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit limits data point writes per client IP to limit requests
// per second with the given burst. A zero limit disables it.
func WithRateLimit(limit float64, burst int) Option {
	return func(s *Server) {
		if limit > 0 {
			s.limiter = newIPLimiter(limit, burst)
		}
	}
}

// WithMetrics records rate limiting and serves g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New creates a Server.
func New(st Store, in *ingest.Ingester, opts ...Option) *Server {
	s := &Server{
		store:    st,
		ingester: in,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the rate limiter cache.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.close()
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/applications", s.listApplications)
	mux.HandleFunc("POST /api/applications", s.createApplication)
	mux.HandleFunc("GET /api/{app}", s.getApplication)

	mux.HandleFunc("GET /api/{app}/resources", s.listResources)
	mux.HandleFunc("POST /api/{app}/resources", s.createResource)
	mux.HandleFunc("GET /api/{app}/resources/{res}", s.latestDataPoint)
	mux.Handle("POST /api/{app}/resources/{res}", s.rateLimited(http.HandlerFunc(s.writeDataPoint)))

	mux.HandleFunc("GET /api/{app}/resources/{res}/events", s.listEvents)
	mux.HandleFunc("POST /api/{app}/resources/{res}/events", s.createEvent)
	mux.HandleFunc("GET /api/{app}/resources/{res}/events/{ev}", s.getEvent)
	mux.HandleFunc("PUT /api/{app}/resources/{res}/events/{ev}", s.updateEvent)

	mux.HandleFunc("GET /api/{app}/resources/{res}/events/{ev}/subscriptions", s.listSubscriptions)
	mux.HandleFunc("POST /api/{app}/resources/{res}/events/{ev}/subscriptions", s.createSubscription)
	mux.HandleFunc("GET /api/{app}/resources/{res}/events/{ev}/subscriptions/{id}", s.getSubscription)
	mux.HandleFunc("PUT /api/{app}/resources/{res}/events/{ev}/subscriptions/{id}", s.updateSubscription)
	mux.HandleFunc("DELETE /api/{app}/resources/{res}/events/{ev}/subscriptions/{id}", s.deleteSubscription)

	mux.HandleFunc("POST /hook", s.hook)

	if s.gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(s.gatherer))
	}
	return mux
}
