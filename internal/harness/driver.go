package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/roach88/regress/internal/midi"
)

// Capture defaults.
const (
	// ListenTimeout bounds each wait for the next event. A wait that
	// times out ends the capture.
	ListenTimeout = 5 * time.Second

	// DrainWindow replaces ListenTimeout once the interpreter has exited,
	// so events already in flight are still collected.
	DrainWindow = 50 * time.Millisecond

	// killWaitDelay bounds how long a killed interpreter may keep its
	// output pipes open through child processes.
	killWaitDelay = 2 * time.Second

	// DefaultQuietFlag selects the interpreter's non-interactive mode.
	DefaultQuietFlag = "-q"
)

// ErrCaseTimeout is returned when an execution exceeds Driver.CaseTimeout.
var ErrCaseTimeout = errors.New("case timed out")

// LaunchError reports that the interpreter could not be started.
type LaunchError struct {
	Interpreter string
	Err         error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("cannot launch interpreter %s: %v", e.Interpreter, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Driver runs the interpreter on one source file at a time.
//
// A Driver holds no state between calls to Execute.
type Driver struct {
	// Interpreter is the path of the interpreter binary.
	Interpreter string

	// WorkDir is the working directory of the interpreter process.
	WorkDir string

	// QuietFlag is appended after the source path. Defaults to "-q".
	QuietFlag string

	// Ports opens the event port for captures. Required only when
	// Execute is asked to capture events.
	Ports midi.Opener

	// ListenTimeout and DrainWindow override the package defaults when
	// non-zero.
	ListenTimeout time.Duration
	DrainWindow   time.Duration

	// CaseTimeout kills the interpreter after this long. Zero disables it.
	CaseTimeout time.Duration

	Logger *slog.Logger
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

func (d *Driver) quietFlag() string {
	if d.QuietFlag == "" {
		return DefaultQuietFlag
	}
	return d.QuietFlag
}

func (d *Driver) listenTimeout() time.Duration {
	if d.ListenTimeout > 0 {
		return d.ListenTimeout
	}
	return ListenTimeout
}

func (d *Driver) drainWindow() time.Duration {
	if d.DrainWindow > 0 {
		return d.DrainWindow
	}
	return DrainWindow
}

// Execute runs the interpreter on source, feeding it stdin, and returns the
// observed Result.
//
// With capture set, the event port is opened before the process starts and
// one time origin is shared by the spawn and every event offset. Events are
// collected until a wait times out or, after the process exits, until the
// drain window passes without new events. Only then is the process joined.
//
// A nonzero exit code is part of the Result, not an error. Errors are
// returned for a missing source, a failed launch, an unavailable port and
// an unrecognized event.
func (d *Driver) Execute(ctx context.Context, source string, stdin []string, capture bool) (*Result, error) {
	if _, err := os.Stat(source); err != nil {
		return nil, fmt.Errorf("test source: %w", err)
	}

	var port midi.Port
	if capture {
		if d.Ports == nil {
			return nil, fmt.Errorf("%w: no event port configured", midi.ErrPortUnavailable)
		}
		p, err := d.Ports.Open()
		if err != nil {
			return nil, err
		}
		port = p
		defer func() {
			if err := port.Close(); err != nil {
				d.logger().Warn("closing event port failed", "error", err)
			}
		}()
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if d.CaseTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d.CaseTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, d.Interpreter, source, d.quietFlag())
	cmd.Dir = d.WorkDir
	cmd.Stdin = strings.NewReader(joinLines(stdin))
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = killWaitDelay

	origin := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Interpreter: d.Interpreter, Err: err}
	}
	d.logger().Debug("interpreter started", "source", source, "pid", cmd.Process.Pid, "capture", capture)

	exited := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(exited)
	}()

	var events []midi.Event
	if capture {
		var err error
		events, err = d.listen(runCtx, port, origin, exited)
		if err != nil {
			cancel()
			<-exited
			if terr := d.interrupted(ctx, runCtx, source); terr != nil {
				return nil, terr
			}
			return nil, fmt.Errorf("capture events: %w", err)
		}
	}

	<-exited

	if err := d.interrupted(ctx, runCtx, source); err != nil {
		return nil, err
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("wait for interpreter: %w", waitErr)
		}
		exitCode = exitErr.ExitCode()
	}

	d.logger().Debug("interpreter finished",
		"source", source,
		"exit_code", exitCode,
		"elapsed", time.Since(origin),
		"events", len(events),
	)

	return &Result{
		ExitCode: exitCode,
		Stdout:   SplitLines(stdout.Bytes()),
		Stderr:   SplitLines(stderr.Bytes()),
		Events:   events,
	}, nil
}

// interrupted reports why the run context ended early, if it did.
func (d *Driver) interrupted(parent, run context.Context, source string) error {
	if err := parent.Err(); err != nil {
		return err
	}
	if errors.Is(run.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %s", ErrCaseTimeout, d.CaseTimeout, source)
	}
	return nil
}

// listen reads the port until a wait times out. A wait that is still
// pending when the process exits is cut short, and from then on each wait
// lasts only the drain window.
func (d *Driver) listen(ctx context.Context, port midi.Port, origin time.Time, exited <-chan struct{}) ([]midi.Event, error) {
	events := []midi.Event{}
	done := false

	for {
		if !done {
			select {
			case <-exited:
				done = true
			default:
			}
		}

		var (
			raw midi.Raw
			ok  bool
			err error
		)
		if done {
			raw, ok, err = port.Next(ctx, d.drainWindow())
		} else {
			raw, ok, err = d.nextUntilExit(ctx, port, exited)
			if err != nil && ctx.Err() == nil && errors.Is(err, context.Canceled) {
				// the process exited mid-wait; drain what is left
				done = true
				continue
			}
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			return events, nil
		}

		offset := raw.At.Sub(origin).Seconds()
		if offset < 0 {
			offset = 0
		}
		ev, err := midi.Normalize(raw.Msg, offset)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
}

// nextUntilExit waits for one message with the idle timeout, cancelling the
// wait if the process exits first.
func (d *Driver) nextUntilExit(ctx context.Context, port midi.Port, exited <-chan struct{}) (midi.Raw, bool, error) {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-exited:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	return port.Next(waitCtx, d.listenTimeout())
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
