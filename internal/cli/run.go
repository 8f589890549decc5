package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/regress/internal/history"
	"github.com/roach88/regress/internal/session"
	"github.com/roach88/regress/internal/testdb"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Filter string // doublestar pattern over "suite/case"
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Test cases against their recorded expectations",
		Long: `Run test cases and compare them with the test database.

Without paths every case is tested, suite by suite. Paths select single
cases; paths that are not in the database are reported and skipped.

Examples:
  regress run
  regress run regression-tests/arith/add.mq
  regress run --filter 'arith/**'
  regress run --skip-events --format json`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only test cases whose suite/case matches this pattern")

	return cmd
}

func runTests(cmd *cobra.Command, opts *RunOptions, paths []string) error {
	ctx := cmd.Context()
	f := formatter(cmd, opts.RootOptions)
	out := f.Text()

	e, err := loadEnv(opts.RootOptions)
	if err != nil {
		return err
	}

	targets, err := selectTargets(e, paths, out)
	if err != nil {
		return err
	}
	if targets, err = session.Filter(targets, opts.Filter); err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	driver, err := e.driver(ctx, cmd.ErrOrStderr(), needsCapture(targets, opts.SkipEvents, false))
	if err != nil {
		return err
	}

	sess := e.session(out, driver)
	if e.paths.History != "" {
		store, err := history.Open(e.paths.History)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open run history", err)
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				e.log.Error("error closing run history", "error", closeErr)
			}
		}()
		sess.History = store
	}

	report, err := sess.Run(ctx, targets)
	if err != nil {
		return WrapExitError(ExitCommandError, "test run aborted", err)
	}

	if !report.OK() {
		msg := fmt.Sprintf("%d case(s) failed", report.Failed)
		if err := f.Failure(CodeTestFailed, msg, report); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	if f.JSON() {
		return f.Success(report)
	}
	return nil
}

// selectTargets returns the cases named by paths, or every case when no
// path is given.
func selectTargets(e *env, paths []string, out io.Writer) ([]testdb.Target, error) {
	if len(paths) == 0 {
		return e.db.All(), nil
	}

	found, misses, err := session.Resolve(e.db, e.layout, paths)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid test case path", err)
	}
	for _, miss := range misses {
		fmt.Fprintf(out, "Cannot test %v\n", miss)
		fmt.Fprintln(out, "Use 'regress add' to add new test case")
		e.log.Warn("case not in test database", "error", miss)
	}
	return found, nil
}
