package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/roach88/regress/internal/midi"
	"github.com/roach88/regress/internal/testutil"
)

// newTestDriver writes an interpreter script and a source file into a temp
// dir and returns a driver for them.
func newTestDriver(t *testing.T, body, source string) (*Driver, string) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "case.mq")
	require.NoError(t, os.WriteFile(src, []byte(source), 0644))

	return &Driver{
		Interpreter:   testutil.WriteInterpreter(t, dir, body),
		WorkDir:       dir,
		ListenTimeout: 150 * time.Millisecond,
		DrainWindow:   30 * time.Millisecond,
	}, src
}

func TestExecuteCapturesStdout(t *testing.T) {
	d, src := newTestDriver(t, testutil.CatInterpreter, "3\n")

	res, err := d.Execute(context.Background(), src, nil, false)
	require.NoError(t, err)

	assert.True(t, Matches(Result{ExitCode: 0, Stdout: []string{"3"}, Stderr: []string{}}, *res))
	assert.Nil(t, res.Events, "events absent without capture")
}

func TestExecutePassesSourceAndQuietFlag(t *testing.T) {
	d, src := newTestDriver(t, testutil.EchoArgsInterpreter, "")

	res, err := d.Execute(context.Background(), src, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{src, "-q"}, res.Stdout)

	d.QuietFlag = "--quiet"
	res, err = d.Execute(context.Background(), src, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{src, "--quiet"}, res.Stdout)
}

func TestExecuteFeedsStdin(t *testing.T) {
	d, src := newTestDriver(t, "cat", "")

	res, err := d.Execute(context.Background(), src, []string{"first", "second"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, res.Stdout)
}

func TestExecuteNonzeroExitIsData(t *testing.T) {
	d, src := newTestDriver(t, "echo oops >&2\nexit 3", "")

	res, err := d.Execute(context.Background(), src, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, []string{"oops"}, res.Stderr)
	assert.Empty(t, res.Stdout)
}

func TestExecuteRunsInWorkDir(t *testing.T) {
	d, src := newTestDriver(t, "pwd -P", "")
	want, err := filepath.EvalSymlinks(d.WorkDir)
	require.NoError(t, err)

	res, err := d.Execute(context.Background(), src, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{want}, res.Stdout)
}

func TestExecuteLaunchFailureIsFatal(t *testing.T) {
	d, src := newTestDriver(t, "true", "")
	d.Interpreter = filepath.Join(t.TempDir(), "missing-interpreter")

	_, err := d.Execute(context.Background(), src, nil, false)
	require.Error(t, err)

	var launchErr *LaunchError
	assert.True(t, errors.As(err, &launchErr))
}

func TestExecuteMissingSource(t *testing.T) {
	d, _ := newTestDriver(t, "true", "")

	_, err := d.Execute(context.Background(), filepath.Join(d.WorkDir, "nope.mq"), nil, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExecuteCapturesEvents(t *testing.T) {
	d, src := newTestDriver(t, "sleep 0.3", "")
	opener := &testutil.ScriptedOpener{Script: []testutil.ScriptedEvent{
		{After: 0, Msg: gomidi.NoteOn(0, 60, 100)},
		{After: 50 * time.Millisecond, Msg: gomidi.NoteOff(0, 60)},
	}}
	d.Ports = opener

	res, err := d.Execute(context.Background(), src, nil, true)
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	assert.Equal(t, midi.KindNoteOn, res.Events[0].Kind)
	assert.Equal(t, []string{"0", "60"}, res.Events[0].Args)
	assert.Equal(t, midi.KindNoteOff, res.Events[1].Kind)
	assert.GreaterOrEqual(t, res.Events[0].Offset, 0.0)
	assert.InDelta(t, 0.05, res.Events[1].Offset-res.Events[0].Offset, 0.04)

	require.Equal(t, 1, opener.Opens())
	assert.True(t, opener.Ports[0].Closed(), "port released after execute")
}

func TestExecuteCaptureWithNoEvents(t *testing.T) {
	d, src := newTestDriver(t, "true", "")
	d.Ports = &testutil.ScriptedOpener{}

	res, err := d.Execute(context.Background(), src, nil, true)
	require.NoError(t, err)
	require.NotNil(t, res.Events)
	assert.Empty(t, res.Events)
}

func TestExecuteStopsListeningAfterExit(t *testing.T) {
	d, src := newTestDriver(t, "true", "")
	d.ListenTimeout = 3 * time.Second
	d.Ports = &testutil.ScriptedOpener{Script: []testutil.ScriptedEvent{
		{After: 0, Msg: gomidi.NoteOn(0, 60, 100)},
		{After: 10 * time.Millisecond, Msg: gomidi.NoteOff(0, 60)},
	}}

	start := time.Now()
	res, err := d.Execute(context.Background(), src, nil, true)
	require.NoError(t, err)

	assert.Len(t, res.Events, 2)
	assert.Less(t, time.Since(start), 2*time.Second, "drain window replaces the idle timeout once the process exits")
}

func TestExecuteUnknownEventIsFatal(t *testing.T) {
	d, src := newTestDriver(t, "sleep 0.2", "")
	opener := &testutil.ScriptedOpener{Script: []testutil.ScriptedEvent{
		{After: 0, Msg: gomidi.ControlChange(0, 7, 100)},
	}}
	d.Ports = opener

	_, err := d.Execute(context.Background(), src, nil, true)
	require.Error(t, err)

	var unknown *midi.UnknownEventError
	assert.True(t, errors.As(err, &unknown))
	assert.True(t, opener.Ports[0].Closed())
}

func TestExecutePortUnavailable(t *testing.T) {
	d, src := newTestDriver(t, "true", "")
	d.Ports = &testutil.ScriptedOpener{Err: midi.ErrPortUnavailable}

	_, err := d.Execute(context.Background(), src, nil, true)
	assert.ErrorIs(t, err, midi.ErrPortUnavailable)

	d.Ports = nil
	_, err = d.Execute(context.Background(), src, nil, true)
	assert.ErrorIs(t, err, midi.ErrPortUnavailable)
}

func TestExecuteCaseTimeout(t *testing.T) {
	d, src := newTestDriver(t, "exec sleep 5", "")
	d.CaseTimeout = 100 * time.Millisecond

	start := time.Now()
	_, err := d.Execute(context.Background(), src, nil, false)
	assert.ErrorIs(t, err, ErrCaseTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)
}
