package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/regress/internal/history"
	"github.com/roach88/regress/internal/logger"
	"github.com/roach88/regress/internal/midi"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ConfigFile  string
	Root        string
	TestsDir    string
	Database    string
	Interpreter string
	History     string

	SkipEvents       bool
	LegacyEventMatch bool

	// Ports overrides the system MIDI port (for testing).
	Ports midi.Opener

	// IDs and Now override run IDs and the wall clock (for testing).
	IDs history.IDGenerator
	Now func() time.Time

	// Logger is set up before any command runs.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the regress CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regress",
		Short: "Regression tests for the Musique interpreter",
		Long: `Run the regression test suite of an interpreter and keep its expectations.

Each test case is a source file under <tests>/<suite>/. The interpreter's exit
code, standard output, standard error and, optionally, the MIDI events it
sends are recorded in a test database and compared on every run.

Without a subcommand every case in the database is tested.

Exit codes:
  0 - All cases passed
  1 - One or more cases failed
  2 - Command error (bad path, malformed database, missing interpreter, etc.)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Logger == nil {
				opts.Logger = logger.New(cmd.ErrOrStderr(), opts.Verbose)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, &RunOptions{RootOptions: opts}, nil)
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVarP(&opts.ConfigFile, "config", "c", "", "config file (default ./regress.yaml if present)")
	flags.StringVar(&opts.Root, "root", "", "project root, the interpreter's working directory")
	flags.StringVar(&opts.TestsDir, "tests", "", "directory holding one subdirectory per suite")
	flags.StringVar(&opts.Database, "db", "", "test database file")
	flags.StringVar(&opts.Interpreter, "interpreter", "", "interpreter binary under test")
	flags.StringVar(&opts.History, "history", "", "SQLite run history file")
	flags.BoolVar(&opts.SkipEvents, "skip-events", false, "skip cases that expect MIDI events")
	flags.BoolVar(&opts.LegacyEventMatch, "legacy-event-match", false, "let several expected events match the same actual event")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewDiscoverCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// Execute runs the command line args and returns the process exit code.
// Errors are reported on stderr in text mode and as a JSON response on
// stdout in JSON mode.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return execute(ctx, &RootOptions{}, args, stdout, stderr)
}

func execute(ctx context.Context, opts *RootOptions, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	code := GetExitCode(err)
	f := &OutputFormatter{Format: opts.Format, Writer: stdout, ErrWriter: stderr, Verbose: opts.Verbose}
	if !isValidFormat(opts.Format) {
		f.Format = "text"
	}

	// A failed run already printed its report.
	var exitErr *ExitError
	if code == ExitFailure && errors.As(err, &exitErr) && exitErr.Err == nil {
		if !f.JSON() {
			fmt.Fprintln(stderr, err)
		}
		return code
	}

	_ = f.Error(errorCode(err), err.Error(), nil)
	return code
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
