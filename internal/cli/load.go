package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/wot/internal/catalog"
)

// LoadResult lists what a catalog apply did.
type LoadResult struct {
	Changes []catalog.Change `json:"changes"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <catalog-dir>",
		Short: "Apply a catalog to the database",
		Long: `Compile the CUE catalog in a directory and upsert its applications,
resources, events and subscriptions by slug.

Existing resources keep their schema: a catalog that changes one is
rejected. Subscriptions are only ever added.

Example:
  wot load --db ./wot.db ./catalog`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runLoad(opts *RootOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	cat, errs := catalog.Load(dir, catalog.LoadModeCollectAll)
	if len(errs) > 0 {
		return f.Fail(ExitFailure, ErrCodeCatalog, "catalog invalid", errors.Join(errs...))
	}
	f.VerboseLog("Compiled %d file(s), %d application(s)", cat.FileCount, len(cat.Applications))

	_, st, err := openStore(opts, f)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	changes, err := catalog.Apply(ctx, st, cat)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeCatalog, "failed to apply catalog", err)
	}

	var buf strings.Builder
	counts := map[catalog.Action]int{}
	for _, c := range changes {
		counts[c.Action]++
		if c.Action != catalog.Unchanged || opts.Verbose {
			fmt.Fprintf(&buf, "%-9s %-12s %s\n", c.Action, c.Kind, c.Path)
		}
	}
	fmt.Fprintf(&buf, "✓ Catalog applied: %d created, %d updated, %d unchanged\n",
		counts[catalog.Created], counts[catalog.Updated], counts[catalog.Unchanged])

	if changes == nil {
		changes = []catalog.Change{}
	}
	return f.SuccessText(LoadResult{Changes: changes}, buf.String())
}
