package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/wot/internal/catalog"
)

// CheckError is one catalog problem with its source position.
type CheckError struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// CheckResult holds catalog check results.
type CheckResult struct {
	Valid        bool         `json:"valid"`
	Files        int          `json:"files,omitempty"`
	Applications int          `json:"applications,omitempty"`
	Errors       []CheckError `json:"errors,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <catalog-dir>",
		Short: "Validate a catalog without touching the database",
		Long: `Compile the CUE catalog in a directory and report every problem:
shape errors, field types, slugs, conditions and subscription URLs.

Exit codes:
  0 - Catalog valid
  1 - Catalog invalid`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runCheck(opts *RootOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	cat, errs := catalog.Load(dir, catalog.LoadModeCollectAll)
	if len(errs) > 0 {
		result := CheckResult{Errors: make([]CheckError, 0, len(errs))}
		for _, err := range errs {
			result.Errors = append(result.Errors, toCheckError(err))
		}
		return outputCheckErrors(f, result)
	}

	result := CheckResult{Valid: true, Files: cat.FileCount, Applications: len(cat.Applications)}
	return f.SuccessText(result, fmt.Sprintf("✓ Catalog valid: %d application(s) in %d file(s)\n",
		result.Applications, result.Files))
}

func toCheckError(err error) CheckError {
	var ce *catalog.CompileError
	if !errors.As(err, &ce) {
		return CheckError{Message: err.Error()}
	}
	out := CheckError{Path: ce.Path, Message: ce.Message}
	if ce.Pos.IsValid() {
		out.File = ce.Pos.Filename()
		out.Line = ce.Pos.Line()
		out.Column = ce.Pos.Column()
	}
	return out
}

func outputCheckErrors(f *OutputFormatter, result CheckResult) error {
	msg := fmt.Sprintf("%d catalog error(s)", len(result.Errors))

	if f.Format == "json" {
		if err := f.Error(ErrCodeCatalog, msg, result.Errors); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "✗ %s\n", msg)
	for _, e := range result.Errors {
		loc := e.Path
		if e.File != "" {
			loc = fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column)
			if e.Path != "" {
				loc += " " + e.Path
			}
		}
		if loc == "" {
			fmt.Fprintf(&buf, "  %s\n", e.Message)
		} else {
			fmt.Fprintf(&buf, "  %s: %s\n", loc, e.Message)
		}
	}
	fmt.Fprint(f.Writer, buf.String())
	return NewExitError(ExitFailure, msg)
}
