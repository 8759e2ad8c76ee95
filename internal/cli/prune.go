package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/wot/internal/retention"
)

// PruneResult reports a one-off retention run.
type PruneResult struct {
	Removed int64  `json:"removed"`
	MaxAge  string `json:"max_age"`
}

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old finished jobs from the delivery log",
		Long: `Delete delivered and failed notification jobs last updated more than
max age ago. Queued and delivering jobs are never removed. 'wot serve' does
the same on retention.schedule.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)

			cfg, st, err := openStore(rootOpts, f)
			if err != nil {
				return err
			}
			defer closeStore(st)

			if maxAge > 0 {
				cfg.Retention.MaxAge = maxAge
			}
			j, err := retention.New(st, "", cfg.Retention.MaxAge, retention.WithLogger(slog.Default()))
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeConfig, "invalid retention settings", err)
			}
			n, err := j.PruneOnce(commandContext(cmd))
			if err != nil {
				return f.Fail(ExitFailure, ErrCodeDatabase, "prune failed", err)
			}

			result := PruneResult{Removed: n, MaxAge: cfg.Retention.MaxAge.String()}
			return f.SuccessText(result, fmt.Sprintf("%d job(s) older than %s removed\n", n, result.MaxAge))
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "override retention.max_age")

	return cmd
}
