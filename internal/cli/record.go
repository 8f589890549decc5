package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/regress/internal/session"
	"github.com/roach88/regress/internal/testdb"
)

// RecordOptions holds flags shared by the commands that record
// expectations.
type RecordOptions struct {
	*RootOptions
	CaptureEvents bool // capture events even for cases that never had any
}

func addRecordFlags(cmd *cobra.Command, opts *RecordOptions) {
	cmd.Flags().BoolVar(&opts.CaptureEvents, "capture-events", false, "record MIDI events for every recorded case")
}

// RecordResult is the JSON payload of discover, add and update.
type RecordResult struct {
	NewSuites []string           `json:"new_suites,omitempty"`
	Recorded  []session.Recorded `json:"recorded"`
	Skipped   []string           `json:"skipped"`
	Messages  []string           `json:"messages,omitempty"`
}

// recordTargets records targets and saves the database. On an execution
// error nothing is saved.
func recordTargets(cmd *cobra.Command, e *env, opts *RecordOptions, targets []testdb.Target, result *RecordResult) error {
	f := formatter(cmd, opts.RootOptions)

	if len(targets) > 0 {
		driver, err := e.driver(cmd.Context(), cmd.ErrOrStderr(), needsCapture(targets, opts.SkipEvents, opts.CaptureEvents))
		if err != nil {
			return err
		}

		sess := e.session(f.Text(), driver)
		sess.ForceCapture = opts.CaptureEvents

		rec, err := sess.Record(cmd.Context(), targets)
		if err != nil {
			return WrapExitError(ExitCommandError, "recording aborted, test database not saved", err)
		}
		result.Recorded = rec.Recorded
		result.Skipped = rec.Skipped
	}

	if err := e.save(); err != nil {
		return err
	}

	if f.JSON() {
		return f.Success(result)
	}
	return nil
}

func newRecordResult() *RecordResult {
	return &RecordResult{Recorded: []session.Recorded{}, Skipped: []string{}}
}

// note prints a workflow message and keeps it for the JSON payload.
func (r *RecordResult) note(out io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(out, msg)
	r.Messages = append(r.Messages, msg)
}

// NewDiscoverCommand creates the discover command.
func NewDiscoverCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Add and record cases that are not in the test database",
		Long: `Scan the tests directory for suites and case files missing from the
test database, add them and record their current behavior.

Existing cases are left untouched.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(opts.RootOptions)
			if err != nil {
				return err
			}
			out := formatter(cmd, opts.RootOptions).Text()
			result := newRecordResult()

			found, err := testdb.Discover(e.db, e.layout)
			if err != nil {
				return WrapExitError(ExitCommandError, "discovery failed", err)
			}
			for _, s := range found.Suites {
				result.note(out, "Discovered new test suite: %s", s)
			}
			for _, t := range found.Cases {
				result.note(out, "In suite '%s' discovered new test case: %s", t.Suite.Name, t.Case.Name)
			}
			result.NewSuites = found.Suites

			return recordTargets(cmd, e, opts, found.Cases, result)
		},
	}

	addRecordFlags(cmd, opts)
	return cmd
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <paths...>",
		Short: "Add cases to the test database and record them",
		Long: `Add test case files to the test database and record their behavior.

Each path must name a file <tests>/<suite>/<case> with the configured
extension. Missing suites are created. Cases that already exist are
reported and left untouched.

Example:
  regress add regression-tests/arith/add.mq`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(opts.RootOptions)
			if err != nil {
				return err
			}
			out := formatter(cmd, opts.RootOptions).Text()
			result := newRecordResult()

			// Validate every path before touching the database.
			for _, p := range args {
				if _, _, err := e.layout.Split(p); err != nil {
					return WrapExitError(ExitCommandError, "cannot add case", err)
				}
			}

			var targets []testdb.Target
			for _, p := range args {
				suiteName, _, _ := e.layout.Split(p)
				isNewSuite := e.db.Suite(suiteName) == nil

				t, added, err := testdb.Add(e.db, e.layout, p)
				if err != nil {
					return WrapExitError(ExitCommandError, "cannot add case", err)
				}
				if isNewSuite {
					result.note(out, "Discovered new test suite: %s", t.Suite.Name)
					result.NewSuites = append(result.NewSuites, t.Suite.Name)
				}
				if !added {
					result.note(out, "Test case %s in suite %s already exists", t.Case.Name, t.Suite.Name)
					continue
				}
				targets = append(targets, t)
			}

			return recordTargets(cmd, e, opts, targets, result)
		},
	}

	addRecordFlags(cmd, opts)
	return cmd
}

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	RecordOptions
	All bool
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RecordOptions: RecordOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "update [paths...]",
		Short: "Re-record the expectations of existing cases",
		Long: `Run existing cases again and store what they do now as their expectation.

Paths that are not in the test database are reported and skipped. With
--all every case is re-recorded.

Examples:
  regress update regression-tests/arith/add.mq
  regress update --all`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.All == (len(args) > 0) {
				return NewExitError(ExitCommandError, "update needs either case paths or --all")
			}

			e, err := loadEnv(opts.RootOptions)
			if err != nil {
				return err
			}
			out := formatter(cmd, opts.RootOptions).Text()
			result := newRecordResult()

			if opts.All {
				return recordTargets(cmd, e, &opts.RecordOptions, e.db.All(), result)
			}

			var targets []testdb.Target
			for _, p := range args {
				t, err := testdb.Lookup(e.db, e.layout, p)
				if errors.Is(err, testdb.ErrNotInDatabase) {
					result.note(out, "Cannot update %v", err)
					result.note(out, "Use 'regress add' to add new test case")
					continue
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "cannot update case", err)
				}
				targets = append(targets, t)
			}

			return recordTargets(cmd, e, &opts.RecordOptions, targets, result)
		},
	}

	addRecordFlags(cmd, &opts.RecordOptions)
	cmd.Flags().BoolVar(&opts.All, "all", false, "re-record every case")
	return cmd
}
