package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/roach88/regress/internal/midi"
	"github.com/roach88/regress/internal/testdb"
	"github.com/roach88/regress/internal/testutil"
)

// project is a throwaway checkout with a config file, a test tree and a
// shell interpreter.
type project struct {
	dir    string
	config string
	ports  *testutil.ScriptedOpener
	ids    *testutil.FixedIDGenerator
}

func newProject(t *testing.T) *project {
	t.Helper()
	dir := t.TempDir()
	testutil.ExtractTxtarFile(t, dir, filepath.Join("testdata", "project.txtar"))
	testutil.WriteInterpreter(t, dir, `exec sh "$1"`)

	return &project{
		dir:    dir,
		config: filepath.Join(dir, "regress.yaml"),
		ports:  &testutil.ScriptedOpener{},
		ids:    testutil.NewFixedIDGenerator("run-1", "run-2", "run-3"),
	}
}

type outcome struct {
	stdout string
	stderr string
	code   int
}

func (p *project) run(t *testing.T, args ...string) outcome {
	t.Helper()
	opts := &RootOptions{
		Ports:  p.ports,
		IDs:    p.ids,
		Now:    testutil.NewStepClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), time.Second).Now,
		Logger: slog.New(slog.DiscardHandler),
	}
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), opts, append([]string{"--config", p.config}, args...), &stdout, &stderr)
	return outcome{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

func (p *project) path(rel string) string {
	return filepath.Join(p.dir, "tests", filepath.FromSlash(rel))
}

func (p *project) write(t *testing.T, rel, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(p.path(rel), []byte(content), 0644))
}

func (p *project) database(t *testing.T) *testdb.Database {
	t.Helper()
	db, err := testdb.Load(p.path("test_db.json"))
	require.NoError(t, err)
	return db
}

func TestDiscoverRecordsAndSaves(t *testing.T) {
	p := newProject(t)

	res := p.run(t, "discover")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	assert.Contains(t, res.stdout, "Discovered new test suite: arith\n")
	assert.Contains(t, res.stdout, "Discovered new test suite: notes\n")
	assert.Contains(t, res.stdout, "In suite 'arith' discovered new test case: add.mq\n")
	assert.Contains(t, res.stdout, "Recording case div.mq\n  changed: exit code, stderr\n")

	db := p.database(t)
	require.Equal(t, 3, db.Len())
	add := db.Suite("arith").Case("add.mq")
	assert.Equal(t, []string{"3"}, add.Stdout)
	assert.Nil(t, add.Events, "no capture unless requested")

	again := p.run(t, "discover")
	require.Equal(t, ExitSuccess, again.code)
	assert.Empty(t, again.stdout, "discovery is idempotent")
}

func TestRunAfterDiscoverPasses(t *testing.T) {
	p := newProject(t)
	require.Equal(t, ExitSuccess, p.run(t, "discover").code)

	res := p.run(t, "run")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Testing suite arith\n  Testing case add.mq  ok\n")
	assert.Contains(t, res.stdout, "Passed 3 out of 3 (100%)\n")

	bare := p.run(t)
	require.Equal(t, ExitSuccess, bare.code, bare.stderr)
	assert.Contains(t, bare.stdout, "Passed 3 out of 3 (100%)\n")
}

func TestRunFailureExitsOne(t *testing.T) {
	p := newProject(t)
	require.Equal(t, ExitSuccess, p.run(t, "discover").code)
	p.write(t, "arith/add.mq", "echo 4\n")

	res := p.run(t, "run")
	require.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stdout, "  Testing case add.mq  FAILED\n")
	assert.Contains(t, res.stdout, "First difference at line 1 in standard output:\n  Expected: 3\n       Got: 4\n")
	assert.Contains(t, res.stdout, "Passed 2 out of 3 (66%)\n")
	assert.Contains(t, res.stderr, "1 case(s) failed")
}

func TestRunJSON(t *testing.T) {
	p := newProject(t)
	require.Equal(t, ExitSuccess, p.run(t, "discover").code)
	p.write(t, "arith/add.mq", "echo 4\n")

	res := p.run(t, "run", "--format", "json")
	require.Equal(t, ExitFailure, res.code)
	assert.Empty(t, res.stderr)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			RunID  string `json:"run_id"`
			Passed int    `json:"passed"`
			Failed int    `json:"failed"`
			Cases  []struct {
				Case    string `json:"case"`
				Outcome string `json:"outcome"`
			} `json:"cases"`
		} `json:"data"`
		Error *CLIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp), res.stdout)

	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTestFailed, resp.Error.Code)
	assert.Equal(t, "run-1", resp.Data.RunID)
	assert.Equal(t, 2, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Cases, 3)
	assert.Equal(t, "failed", resp.Data.Cases[0].Outcome)
}

func TestRunSelectsPathsAndFilter(t *testing.T) {
	p := newProject(t)
	require.Equal(t, ExitSuccess, p.run(t, "discover").code)

	single := p.run(t, "run", p.path("arith/add.mq"))
	require.Equal(t, ExitSuccess, single.code, single.stderr)
	assert.Contains(t, single.stdout, "Passed 1 out of 1 (100%)\n")

	filtered := p.run(t, "run", "--filter", "arith/*")
	require.Equal(t, ExitSuccess, filtered.code, filtered.stderr)
	assert.Contains(t, filtered.stdout, "Passed 2 out of 2 (100%)\n")
	assert.NotContains(t, filtered.stdout, "notes")
}

func TestRunUnknownCaseIsReported(t *testing.T) {
	p := newProject(t)

	res := p.run(t, "run", p.path("notes/play.mq"))
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Cannot test suite notes")
	assert.Contains(t, res.stdout, "Use 'regress add' to add new test case\n")
	assert.Contains(t, res.stdout, "Passed 0 out of 0 (0%)\n")
}

func TestAddRejectsInvalidPath(t *testing.T) {
	p := newProject(t)

	res := p.run(t, "add", p.config)
	require.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "Error [E_PATH]")

	_, err := os.Stat(p.path("test_db.json"))
	assert.True(t, os.IsNotExist(err), "nothing is saved")
}

func TestAddThenAddAgain(t *testing.T) {
	p := newProject(t)

	first := p.run(t, "add", p.path("arith/add.mq"))
	require.Equal(t, ExitSuccess, first.code, first.stderr)
	assert.Contains(t, first.stdout, "Discovered new test suite: arith\n")
	assert.Contains(t, first.stdout, "Recording case add.mq\n")

	second := p.run(t, "add", p.path("arith/add.mq"))
	require.Equal(t, ExitSuccess, second.code, second.stderr)
	assert.Contains(t, second.stdout, "Test case add.mq in suite arith already exists\n")
	assert.NotContains(t, second.stdout, "Recording")

	assert.Equal(t, 1, p.database(t).Len())
}

func TestUpdate(t *testing.T) {
	p := newProject(t)
	require.Equal(t, ExitSuccess, p.run(t, "add", p.path("arith/add.mq")).code)

	missing := p.run(t, "update", p.path("arith/div.mq"))
	require.Equal(t, ExitSuccess, missing.code, missing.stderr)
	assert.Contains(t, missing.stdout, "Cannot update case div.mq in suite arith")

	p.write(t, "arith/add.mq", "echo 5\n")
	updated := p.run(t, "update", p.path("arith/add.mq"))
	require.Equal(t, ExitSuccess, updated.code, updated.stderr)
	assert.Contains(t, updated.stdout, "Recording case add.mq\n  changed: stdout\n")
	assert.Equal(t, []string{"5"}, p.database(t).Suite("arith").Case("add.mq").Stdout)
}

func TestUpdateAll(t *testing.T) {
	p := newProject(t)
	require.Equal(t, ExitSuccess, p.run(t, "discover").code)
	p.write(t, "arith/div.mq", "exit 0\n")

	res := p.run(t, "update", "--all")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Recording case div.mq\n  changed: exit code, stderr\n")

	assert.Equal(t, ExitSuccess, p.run(t, "run").code)
}

func TestUpdateNeedsPathsOrAll(t *testing.T) {
	p := newProject(t)

	assert.Equal(t, ExitCommandError, p.run(t, "update").code)
	assert.Equal(t, ExitCommandError, p.run(t, "update", "--all", p.path("arith/add.mq")).code)
}

func TestMissingInterpreter(t *testing.T) {
	p := newProject(t)
	require.Equal(t, ExitSuccess, p.run(t, "discover").code)

	res := p.run(t, "run", "--interpreter", filepath.Join(p.dir, "missing"))
	require.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "Error [E_INTERPRETER]")
	assert.Contains(t, res.stderr, "interpreter not found")
}

func TestBuildCommandBuildsInterpreter(t *testing.T) {
	p := newProject(t)
	require.NoError(t, os.WriteFile(p.config, []byte(`
tests_dir: tests
interpreter: build/mq.sh
build_command: [sh, -c, "mkdir -p build && cp interpreter.sh build/mq.sh"]
`), 0644))

	res := p.run(t, "discover")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	_, err := os.Stat(filepath.Join(p.dir, "build", "mq.sh"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"3"}, p.database(t).Suite("arith").Case("add.mq").Stdout)
}

func TestMalformedDatabase(t *testing.T) {
	p := newProject(t)
	p.write(t, "test_db.json", `[{"name": "arith", "cases": [{"name": "add.mq", "exit_code": "zero"}]}]`)

	res := p.run(t, "run")
	require.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "Error [E_DATABASE]")
	assert.Contains(t, res.stderr, "test_db.json")
}

func TestInvalidFormat(t *testing.T) {
	p := newProject(t)
	res := p.run(t, "run", "--format", "yaml")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "invalid format")
}

func noteOn(ch, key uint8) []byte {
	return gomidi.NoteOn(ch, key, 100)
}

func TestCaptureEventsRoundTrip(t *testing.T) {
	p := newProject(t)
	p.ports.Script = []testutil.ScriptedEvent{{After: 20 * time.Millisecond, Msg: noteOn(0, 60)}}

	res := p.run(t, "add", "--capture-events", p.path("notes/play.mq"))
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	play := p.database(t).Suite("notes").Case("play.mq")
	require.Len(t, play.Events, 1)
	assert.Equal(t, midi.KindNoteOn, play.Events[0].Kind)
	assert.Equal(t, []string{"0", "60"}, play.Events[0].Args)

	run := p.run(t, "run")
	require.Equal(t, ExitSuccess, run.code, run.stdout)
	assert.Contains(t, run.stdout, "Passed 1 out of 1 (100%)\n")

	skipped := p.run(t, "run", "--skip-events")
	require.Equal(t, ExitSuccess, skipped.code)
	assert.Contains(t, skipped.stdout, "  Testing case play.mq  skipped\n")
}

func TestEventPortUnavailable(t *testing.T) {
	p := newProject(t)
	p.ports.Err = fmt.Errorf("%w: input port %q: not found", midi.ErrPortUnavailable, "Midi Through")

	res := p.run(t, "add", "--capture-events", p.path("notes/play.mq"))
	require.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "Error [E_EVENT_PORT]")

	_, err := os.Stat(p.path("test_db.json"))
	assert.True(t, os.IsNotExist(err), "nothing is saved")

	plain := p.run(t, "add", p.path("arith/add.mq"))
	assert.Equal(t, ExitSuccess, plain.code, "the port is only needed for captures")
}

func TestHistoryCommand(t *testing.T) {
	p := newProject(t)
	require.Equal(t, ExitSuccess, p.run(t, "discover").code)
	require.Equal(t, ExitSuccess, p.run(t, "run").code)
	p.write(t, "arith/add.mq", "echo 4\n")
	require.Equal(t, ExitFailure, p.run(t, "run").code)

	runs := p.run(t, "history")
	require.Equal(t, ExitSuccess, runs.code, runs.stderr)
	assert.Contains(t, runs.stdout, "RUN")
	assert.Contains(t, runs.stdout, "run-1")
	assert.Contains(t, runs.stdout, "run-2")
	assert.Contains(t, runs.stdout, "66%")

	cases := p.run(t, "history", "run-2", "-v")
	require.Equal(t, ExitSuccess, cases.code, cases.stderr)
	assert.Contains(t, cases.stdout, "arith/add.mq")
	assert.Contains(t, cases.stdout, "failed")
	assert.Contains(t, cases.stdout, "  First difference at line 1 in standard output:\n")

	one := p.run(t, "history", "--case", "arith/add.mq", "--format", "json")
	require.Equal(t, ExitSuccess, one.code, one.stderr)
	var resp struct {
		Data []struct {
			RunID   string `json:"run_id"`
			Outcome string `json:"outcome"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(one.stdout), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "failed", resp.Data[0].Outcome)

	unknown := p.run(t, "history", "run-9")
	assert.Equal(t, ExitCommandError, unknown.code)
}

func TestHistoryNotConfigured(t *testing.T) {
	p := newProject(t)
	require.NoError(t, os.WriteFile(p.config, []byte("tests_dir: tests\ninterpreter: interpreter.sh\n"), 0644))

	res := p.run(t, "history")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "run history is not configured")
}
