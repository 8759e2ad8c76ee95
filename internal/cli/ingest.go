package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/ingest"
	"github.com/roach88/wot/internal/schema"
	"github.com/roach88/wot/internal/store"
	"github.com/roach88/wot/internal/taskqueue"
)

// DeliveryReport is a data point and the notification jobs it produced.
type DeliveryReport struct {
	DataPoint domain.DataPoint         `json:"data_point"`
	Jobs      []domain.NotificationJob `json:"jobs"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <application> <resource> <json>",
		Short: "Store one data point and deliver its notifications",
		Long: `Validate a JSON object against the resource schema, store it and run
the event pipeline in-process. The command returns once every triggered
webhook has been attempted, honouring the dispatch pacing.

Example:
  wot ingest greenhouse sensor '{"temp": "101.5"}'`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(rootOpts, args[0], args[1], []byte(args[2]), cmd)
		},
	}
	return cmd
}

func runIngest(opts *RootOptions, app, res string, raw []byte, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	cfg, st, err := openStore(opts, f)
	if err != nil {
		return err
	}
	defer closeStore(st)

	logger := slog.Default()
	q := taskqueue.NewInline(taskqueue.WithInlineLogger(logger))
	p := newPipeline(cfg, st, q, nil, logger)
	defer p.Close()

	ctx := commandContext(cmd)
	dp, err := p.ingester.ParseAndIngest(ctx, app, res, raw)
	if err != nil {
		return ingestFailure(f, err)
	}

	return outputReport(ctx, f, st, dp, fmt.Sprintf("data point %d stored for %s/%s", dp.ID, app, res))
}

// ingestFailure maps a rejected write to an error code.
func ingestFailure(f *OutputFormatter, err error) error {
	switch {
	case errors.Is(err, schema.ErrSchema):
		return f.Fail(ExitFailure, ErrCodeSchema, "data point rejected", err)
	case errors.Is(err, ingest.ErrInvalidPayload):
		return f.Fail(ExitFailure, ErrCodeInvalid, "data point rejected", err)
	case store.IsNotFound(err):
		return f.Fail(ExitFailure, ErrCodeNotFound, "not found", err)
	default:
		return f.Fail(ExitFailure, ErrCodeGeneric, "ingest failed", err)
	}
}

func outputReport(ctx context.Context, f *OutputFormatter, st *store.Store, dp domain.DataPoint, headline string) error {
	jobs, err := st.ListJobs(ctx, dp.ID)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeDatabase, "failed to list jobs", err)
	}
	if jobs == nil {
		jobs = []domain.NotificationJob{}
	}
	return f.SuccessText(DeliveryReport{DataPoint: dp, Jobs: jobs}, headline+"\n"+formatJobs(jobs))
}

func formatJobs(jobs []domain.NotificationJob) string {
	if len(jobs) == 0 {
		return "no notifications\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-38s %-10s %-5s %-8s %-6s %s\n", "JOB", "STATE", "EVENT", "ATTEMPTS", "STATUS", "SUBSCRIPTION")
	for _, j := range jobs {
		status := "-"
		if j.StatusCode != 0 {
			status = fmt.Sprint(j.StatusCode)
		}
		fmt.Fprintf(&b, "%-38s %-10s %-5d %-8d %-6s %d\n", j.ID, j.State, j.EventID, j.Attempts, status, j.SubscriptionID)
		if j.LastError != "" {
			fmt.Fprintf(&b, "  %s\n", j.LastError)
		}
	}
	return b.String()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
