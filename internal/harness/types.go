package harness

import (
	"strings"

	"github.com/roach88/regress/internal/midi"
)

// Result is the observable outcome of one interpreter execution.
//
// Events is nil when event capture was not requested for the run and
// non-nil (possibly empty) when it was. The JSON field names match the
// persisted test database.
type Result struct {
	ExitCode int          `json:"exit_code"`
	Stdout   []string     `json:"stdout_lines"`
	Stderr   []string     `json:"stderr_lines"`
	Events   []midi.Event `json:"midi_events"`
}

// NewResult returns the expectation of a case that was never recorded:
// exit code 0, no output, no event capture.
func NewResult() Result {
	return Result{
		Stdout: []string{},
		Stderr: []string{},
	}
}

// CapturesEvents reports whether the run that produced r had event capture
// enabled.
func (r Result) CapturesEvents() bool {
	return r.Events != nil
}

// Normalize replaces nil line slices with empty ones so that a Result
// serializes the same way whether it was decoded or produced by a run.
func (r *Result) Normalize() {
	if r.Stdout == nil {
		r.Stdout = []string{}
	}
	if r.Stderr == nil {
		r.Stderr = []string{}
	}
}

// SplitLines splits captured output on line boundaries (\n, \r\n and \r)
// and drops the terminators. An empty stream yields an empty slice.
// Invalid UTF-8 is replaced so the lines survive a JSON round trip.
func SplitLines(out []byte) []string {
	lines := []string{}
	s := strings.ToValidUTF8(string(out), "\uFFFD")
	for len(s) > 0 {
		i := strings.IndexAny(s, "\r\n")
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i])
		if s[i] == '\r' && i+1 < len(s) && s[i+1] == '\n' {
			i++
		}
		s = s[i+1:]
	}
	return lines
}
