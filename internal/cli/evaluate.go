package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/wot/internal/condition"
	"github.com/roach88/wot/internal/domain"
	"github.com/roach88/wot/internal/schema"
	"github.com/roach88/wot/internal/store"
)

// EvaluateOptions holds flags for the evaluate command.
type EvaluateOptions struct {
	*RootOptions
	Schema    string
	Condition string
	Event     string // application/event, read from the database
}

// EvaluateResult is the outcome of one evaluation.
type EvaluateResult struct {
	Satisfied bool   `json:"satisfied"`
	Code      string `json:"code,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// NewEvaluateCommand creates the evaluate command.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvaluateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "evaluate <json>",
		Short: "Test a condition against a payload",
		Long: `Validate a payload against a schema and evaluate a condition on it,
without storing anything or sending notifications.

The schema and condition come from flags, or from a stored event with
--event application/event.

Examples:
  wot evaluate --schema '{"temp":"float"}' --condition '[["temp","gt",100]]' '{"temp":"101.5"}'
  wot evaluate --db ./wot.db --event greenhouse/too-hot '{"temp":99}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(opts, []byte(args[0]), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", `resource schema, e.g. '{"temp":"float"}'`)
	cmd.Flags().StringVar(&opts.Condition, "condition", "[]", `condition triples, e.g. '[["temp","gt",100]]'`)
	cmd.Flags().StringVar(&opts.Event, "event", "", "stored event as application/event")

	return cmd
}

func runEvaluate(opts *EvaluateOptions, payload []byte, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	s, cond, err := evaluationInputs(opts, f, cmd)
	if err != nil {
		return err
	}

	data, err := domain.ParseData(payload)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalid, "invalid payload", err)
	}
	if err := schema.Validate(s, data); err != nil {
		return f.Fail(ExitFailure, ErrCodeSchema, "payload rejected", err)
	}

	ok, err := condition.Evaluate(s, cond, data)
	result := EvaluateResult{Satisfied: ok}
	var ee *condition.EvaluationError
	if errors.As(err, &ee) {
		result.Code = string(ee.Code)
		result.Reason = ee.Message
	}

	text := fmt.Sprintf("satisfied: %t\n", result.Satisfied)
	if result.Code != "" {
		text += fmt.Sprintf("reason: %s: %s\n", result.Code, result.Reason)
	}
	return f.SuccessText(result, text)
}

func evaluationInputs(opts *EvaluateOptions, f *OutputFormatter, cmd *cobra.Command) (domain.Schema, domain.Condition, error) {
	if opts.Event == "" {
		if opts.Schema == "" {
			return nil, nil, f.Fail(ExitCommandError, ErrCodeInvalid, "--schema or --event is required", nil)
		}
		s, err := schema.ParseSchema([]byte(opts.Schema))
		if err != nil {
			return nil, nil, f.Fail(ExitCommandError, ErrCodeInvalid, "invalid schema", err)
		}
		cond, err := condition.Parse(s, []byte(opts.Condition))
		if err != nil {
			return nil, nil, f.Fail(ExitCommandError, ErrCodeInvalid, "invalid condition", err)
		}
		return s, cond, nil
	}

	appSlug, evSlug, ok := cutRef(opts.Event)
	if !ok {
		return nil, nil, f.Fail(ExitCommandError, ErrCodeInvalid, fmt.Sprintf("--event %q must be application/event", opts.Event), nil)
	}

	_, st, err := openStore(opts.RootOptions, f)
	if err != nil {
		return nil, nil, err
	}
	defer closeStore(st)

	ctx := commandContext(cmd)
	app, err := st.ApplicationBySlug(ctx, appSlug)
	if err != nil {
		return nil, nil, lookupFailure(f, err)
	}
	ev, err := st.EventBySlug(ctx, app.ID, evSlug)
	if err != nil {
		return nil, nil, lookupFailure(f, err)
	}
	res, err := st.Resource(ctx, ev.ResourceID)
	if err != nil {
		return nil, nil, lookupFailure(f, err)
	}
	f.VerboseLog("Event %s on resource %s: %s", ev.Slug, res.Slug, ev.Condition)
	return res.Fields, ev.Condition, nil
}

func lookupFailure(f *OutputFormatter, err error) error {
	if store.IsNotFound(err) {
		return f.Fail(ExitFailure, ErrCodeNotFound, "not found", err)
	}
	return f.Fail(ExitFailure, ErrCodeDatabase, "lookup failed", err)
}

func cutRef(ref string) (string, string, bool) {
	a, b, ok := strings.Cut(ref, "/")
	return a, b, ok && a != "" && b != ""
}
