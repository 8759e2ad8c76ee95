package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/wot/internal/store"
)

// NewDeliveriesCommand creates the deliveries command.
func NewDeliveriesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "deliveries <data-point-id>",
		Short:         "Show the delivery log of a data point",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeliveries(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runDeliveries(opts *RootOptions, arg string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	id, err := parseID(arg)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalid, "invalid data point id", err)
	}

	_, st, err := openStore(opts, f)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := commandContext(cmd)
	dp, err := st.DataPoint(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return f.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("data point %d not found", id), nil)
		}
		return f.Fail(ExitFailure, ErrCodeDatabase, "failed to load data point", err)
	}
	return outputReport(ctx, f, st, dp, fmt.Sprintf("data point %d (resource %d, %s)",
		dp.ID, dp.ResourceID, dp.Created.Format("2006-01-02T15:04:05Z07:00")))
}
