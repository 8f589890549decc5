package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/regress/internal/history"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
	Case  string // "suite/case"
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show past test runs",
		Long: `Show runs stored in the run history.

Without arguments the latest runs are listed. With a run ID the outcome of
every case in that run is shown. With --case the latest outcomes of one
case are shown.

The history file is set with "history" in regress.yaml or --history.

Examples:
  regress history
  regress history 01927c3e-5b1a-7c4e-9f00-2a8d3c1b4e5f
  regress history --case arith/add.mq -n 20`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistory(cmd, opts, args)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 10, "number of entries to show (0 for all)")
	cmd.Flags().StringVar(&opts.Case, "case", "", "show the history of one suite/case")

	return cmd
}

func showHistory(cmd *cobra.Command, opts *HistoryOptions, args []string) error {
	ctx := cmd.Context()
	f := formatter(cmd, opts.RootOptions)

	e, err := loadEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	if e.paths.History == "" {
		return NewExitError(ExitCommandError, "run history is not configured (set history in regress.yaml or pass --history)")
	}

	store, err := history.Open(e.paths.History)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open run history", err)
	}
	defer store.Close()

	switch {
	case len(args) == 1 && opts.Case != "":
		return NewExitError(ExitCommandError, "a run ID and --case cannot be combined")

	case len(args) == 1:
		cases, err := store.Cases(ctx, args[0])
		if errors.Is(err, history.ErrRunNotFound) {
			return WrapExitError(ExitCommandError, "unknown run", err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run history", err)
		}
		if f.JSON() {
			return f.Success(cases)
		}
		printCases(f, cases, false)
		return nil

	case opts.Case != "":
		suite, name, ok := strings.Cut(opts.Case, "/")
		if !ok || suite == "" || name == "" {
			return NewExitError(ExitCommandError, fmt.Sprintf("--case must be suite/case, got %q", opts.Case))
		}
		cases, err := store.CaseHistory(ctx, suite, name, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run history", err)
		}
		if f.JSON() {
			return f.Success(cases)
		}
		printCases(f, cases, true)
		return nil

	default:
		runs, err := store.Runs(ctx, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run history", err)
		}
		if f.JSON() {
			return f.Success(runs)
		}
		printRuns(f, runs)
		return nil
	}
}

func printRuns(f *OutputFormatter, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(f.Writer, "No runs recorded.")
		return
	}

	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tPASSED\tFAILED\tSKIPPED\tRATE")
	for _, r := range runs {
		rate := "-"
		if r.Total() > 0 {
			rate = fmt.Sprintf("%d%%", 100*r.Passed/r.Total())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID,
			r.StartedAt.UTC().Format(time.RFC3339),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
			r.Passed, r.Failed, r.Skipped, rate,
		)
	}
	tw.Flush()
}

func printCases(f *OutputFormatter, cases []history.CaseRecord, withRun bool) {
	if len(cases) == 0 {
		fmt.Fprintln(f.Writer, "No cases recorded.")
		return
	}

	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	if withRun {
		fmt.Fprintln(tw, "RUN\tCASE\tOUTCOME\tEXIT")
	} else {
		fmt.Fprintln(tw, "CASE\tOUTCOME\tEXIT")
	}
	for _, c := range cases {
		exit := "-"
		if c.ExitCode != nil {
			exit = fmt.Sprint(*c.ExitCode)
		}
		if withRun {
			fmt.Fprintf(tw, "%s\t", c.RunID)
		}
		fmt.Fprintf(tw, "%s/%s\t%s\t%s\n", c.Suite, c.Case, c.Outcome, exit)
	}
	tw.Flush()

	if f.Verbose {
		for _, c := range cases {
			if len(c.Diagnostic) == 0 {
				continue
			}
			fmt.Fprintf(f.Writer, "\n%s/%s:\n", c.Suite, c.Case)
			for _, line := range c.Diagnostic {
				fmt.Fprintf(f.Writer, "  %s\n", line)
			}
		}
	}
}
