package cli

import (
	"log/slog"
	"net/http"

	"github.com/roach88/wot/internal/condition"
	"github.com/roach88/wot/internal/config"
	"github.com/roach88/wot/internal/dispatch"
	"github.com/roach88/wot/internal/ingest"
	"github.com/roach88/wot/internal/metrics"
	"github.com/roach88/wot/internal/store"
	"github.com/roach88/wot/internal/taskqueue"
	"github.com/roach88/wot/internal/trigger"
)

// loadConfig reads --config, or the defaults, and applies --db.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		cfg, err = config.Load(opts.Config)
		if err != nil {
			return config.Config{}, err
		}
	}
	if opts.DB != "" {
		cfg.Database.Path = opts.DB
	}
	return cfg, nil
}

// openStore loads the config and opens its database.
func openStore(opts *RootOptions, f *OutputFormatter) (config.Config, *store.Store, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return cfg, nil, f.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	f.VerboseLog("Opening database %s", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return cfg, nil, f.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	return cfg, st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// pipeline is the ingest -> trigger -> dispatch chain over one queue.
type pipeline struct {
	dispatcher  *dispatch.Dispatcher
	coordinator *trigger.Coordinator
	ingester    *ingest.Ingester
}

// newPipeline registers the task handlers on q. m may be nil.
func newPipeline(cfg config.Config, st *store.Store, q taskqueue.Registrar, m *metrics.Metrics, logger *slog.Logger) *pipeline {
	d := dispatch.New(st, q,
		dispatch.WithPacing(cfg.Dispatch.Pacing),
		dispatch.WithRetries(cfg.Dispatch.MaxAttempts, cfg.Dispatch.RetryBackoff),
		dispatch.WithClient(&http.Client{Timeout: cfg.Dispatch.Timeout}),
		dispatch.WithMetrics(m),
		dispatch.WithLogger(logger),
	)
	coord := trigger.New(st, q, d,
		trigger.WithPageSize(cfg.Trigger.PageSize),
		trigger.WithEvaluator(condition.NewEvaluator(condition.WithLogger(logger), condition.WithMetrics(m))),
		trigger.WithLogger(logger),
	)
	in := ingest.New(st, coord,
		ingest.WithResourceTTL(cfg.Cache.ResourceTTL),
		ingest.WithMetrics(m),
		ingest.WithLogger(logger),
	)
	return &pipeline{dispatcher: d, coordinator: coord, ingester: in}
}

func (p *pipeline) Close() {
	p.ingester.Close()
}
