package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/wot/internal/api"
	"github.com/roach88/wot/internal/catalog"
	"github.com/roach88/wot/internal/metrics"
	"github.com/roach88/wot/internal/retention"
	"github.com/roach88/wot/internal/store"
	"github.com/roach88/wot/internal/taskqueue"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr    string
	Catalog string

	// Ready is called with the bound address once the server accepts
	// connections (for testing).
	Ready func(addr net.Addr)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the notification workers",
		Long: `Serve the REST API, evaluate events for every stored data point and
deliver webhooks from a pool of task workers. Delivery-log retention runs on
the configured cron schedule.

SIGINT or SIGTERM stops accepting requests and lets running deliveries
finish. Pending tasks drain for up to 10s; notifications still queued
after that stay in the delivery log for 'wot replay'.

Example:
  wot serve --config wot.yaml
  wot serve --db ./wot.db --addr :9000 --catalog ./catalog`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides http.addr)")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "catalog directory to apply before serving")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	logger := slog.Default()

	cfg, st, err := openStore(opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer closeStore(st)

	if opts.Addr != "" {
		cfg.HTTP.Addr = opts.Addr
	}

	if opts.Catalog != "" {
		if err := applyCatalogDir(cmd.Context(), st, opts.Catalog, f); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	pool := taskqueue.NewPool(cfg.TaskQueue.Workers,
		taskqueue.WithLogger(logger),
		taskqueue.WithObserver(m),
		taskqueue.WithDrainTimeout(shutdownTimeout),
	)
	p := newPipeline(cfg, st, pool, m, logger)
	defer p.Close()

	srv := api.New(st, p.ingester,
		api.WithRateLimit(cfg.HTTP.RateLimit.Limit, cfg.HTTP.RateLimit.Burst),
		api.WithMetrics(m, reg),
		api.WithLogger(logger),
	)
	defer srv.Close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to listen", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = pool.Run(ctx)
	}()

	if cfg.Retention.Schedule != "" {
		janitor, err := retention.New(st, cfg.Retention.Schedule, cfg.Retention.MaxAge,
			retention.WithMetrics(m),
			retention.WithLogger(logger),
		)
		if err != nil {
			stop()
			wg.Wait()
			ln.Close()
			return f.Fail(ExitCommandError, ErrCodeConfig, "invalid retention schedule", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := janitor.Run(ctx); err != nil {
				logger.Error("retention stopped", "error", err)
			}
		}()
	}

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()

	logger.Info("wot serving", "addr", ln.Addr().String(), "db", cfg.Database.Path, "workers", cfg.TaskQueue.Workers)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())
	if opts.Ready != nil {
		opts.Ready(ln.Addr())
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	stop()
	wg.Wait()
	logger.Info("wot stopped")

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "http server error", serveErr)
	}
	return nil
}

// applyCatalogDir loads and applies a catalog, reporting changes verbosely.
func applyCatalogDir(ctx context.Context, st *store.Store, dir string, f *OutputFormatter) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cat, errs := catalog.Load(dir, catalog.LoadModeCollectAll)
	if len(errs) > 0 {
		return f.Fail(ExitFailure, ErrCodeCatalog, "catalog invalid", errors.Join(errs...))
	}
	changes, err := catalog.Apply(ctx, st, cat)
	for _, c := range changes {
		f.VerboseLog("%s %s %s", c.Action, c.Kind, c.Path)
	}
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeCatalog, "failed to apply catalog", err)
	}
	return nil
}
