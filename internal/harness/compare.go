package harness

import (
	"fmt"
	"math"
	"slices"

	"github.com/roach88/regress/internal/midi"
)

// EventTolerance is the largest offset difference, in seconds, at which two
// events with equal content are considered the same occurrence.
const EventTolerance = 0.005

// toleranceSlack absorbs float rounding of offsets that sit exactly on the
// tolerance boundary.
const toleranceSlack = 1e-9

// EventStrategy selects how expected events are paired with actual ones.
type EventStrategy int

const (
	// OneToOne pairs every expected event with a distinct actual event.
	OneToOne EventStrategy = iota

	// AnyMatch accepts an expected event if any actual event matches it,
	// even one already used by another expected event. This is how
	// expectations were compared before one-to-one matching existed.
	AnyMatch
)

// Comparator decides whether an actual Result satisfies an expected one.
type Comparator struct {
	Tolerance float64
	Strategy  EventStrategy
}

// DefaultComparator uses one-to-one event matching with EventTolerance.
var DefaultComparator = Comparator{Tolerance: EventTolerance, Strategy: OneToOne}

// Matches reports whether actual satisfies expected using DefaultComparator.
func Matches(expected, actual Result) bool {
	return DefaultComparator.Matches(expected, actual)
}

// Explain describes how actual diverges from expected using
// DefaultComparator.
func Explain(expected, actual Result) Diagnostic {
	return DefaultComparator.Explain(expected, actual)
}

// Matches reports whether exit code, stdout, stderr and events all agree.
func (c Comparator) Matches(expected, actual Result) bool {
	return expected.ExitCode == actual.ExitCode &&
		slices.Equal(expected.Stdout, actual.Stdout) &&
		slices.Equal(expected.Stderr, actual.Stderr) &&
		c.EventsMatch(expected.Events, actual.Events)
}

// EventsMatch compares two event sequences. A nil sequence means capture
// was disabled; both sides must agree on that before content is compared.
func (c Comparator) EventsMatch(expected, actual []midi.Event) bool {
	if expected == nil || actual == nil {
		return (expected == nil) == (actual == nil)
	}
	if len(expected) != len(actual) {
		return false
	}

	tol := c.Tolerance
	if tol <= 0 {
		tol = EventTolerance
	}

	if c.Strategy == AnyMatch {
		return anyMatch(expected, actual, tol)
	}
	return oneToOne(expected, actual, tol)
}

func within(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol+toleranceSlack
}

func sameContent(a, b midi.Event) bool {
	return a.Kind == b.Kind && slices.Equal(a.Args, b.Args)
}

// anyMatch checks that every expected event has some actual event with the
// same content inside the tolerance window.
func anyMatch(expected, actual []midi.Event, tol float64) bool {
	for _, e := range expected {
		found := false
		for _, a := range actual {
			if sameContent(e, a) && within(e.Offset, a.Offset, tol) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// oneToOne checks for a perfect pairing between expected and actual events.
//
// Events only pair with events of identical content, so each content group
// is matched on its own. Within a group every expected offset accepts an
// interval of the same width, and pairing both sides in sorted order finds a
// perfect matching whenever one exists. Equal offsets resolve to the earliest
// captured event.
func oneToOne(expected, actual []midi.Event, tol float64) bool {
	want := groupOffsets(expected)
	got := groupOffsets(actual)

	if len(want) != len(got) {
		return false
	}
	for key, w := range want {
		g, ok := got[key]
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !within(w[i], g[i], tol) {
				return false
			}
		}
	}
	return true
}

func groupOffsets(events []midi.Event) map[string][]float64 {
	groups := make(map[string][]float64)
	for _, e := range events {
		key := e.Key()
		groups[key] = append(groups[key], e.Offset)
	}
	for _, offsets := range groups {
		slices.Sort(offsets)
	}
	return groups
}

// Diagnostic pinpoints where an actual Result diverged from its
// expectation.
type Diagnostic struct {
	ExitCode     *ExitCodeMismatch `json:"exit_code,omitempty"`
	Streams      []StreamDiff      `json:"streams,omitempty"`
	EventsDiffer bool              `json:"events_differ,omitempty"`
}

// ExitCodeMismatch holds both exit codes.
type ExitCodeMismatch struct {
	Expected int `json:"expected"`
	Actual   int `json:"actual"`
}

// StreamDiff is the first divergence in one output stream.
//
// Line is 1-based. When one sequence is a prefix of the other Line is 0 and
// the lengths tell which side is longer.
type StreamDiff struct {
	Stream      string `json:"stream"`
	Line        int    `json:"line,omitempty"`
	Expected    string `json:"expected,omitempty"`
	Actual      string `json:"actual,omitempty"`
	ExpectedLen int    `json:"expected_len"`
	ActualLen   int    `json:"actual_len"`
}

// Stream names used in diagnostics.
const (
	StreamStdout = "standard output"
	StreamStderr = "standard error"
)

// Empty reports whether the diagnostic found nothing to report.
func (d Diagnostic) Empty() bool {
	return d.ExitCode == nil && len(d.Streams) == 0 && !d.EventsDiffer
}

// Explain compares each part of the two results independently.
func (c Comparator) Explain(expected, actual Result) Diagnostic {
	var d Diagnostic

	if expected.ExitCode != actual.ExitCode {
		d.ExitCode = &ExitCodeMismatch{Expected: expected.ExitCode, Actual: actual.ExitCode}
	}
	if diff, ok := firstDivergence(StreamStdout, expected.Stdout, actual.Stdout); ok {
		d.Streams = append(d.Streams, diff)
	}
	if diff, ok := firstDivergence(StreamStderr, expected.Stderr, actual.Stderr); ok {
		d.Streams = append(d.Streams, diff)
	}
	d.EventsDiffer = !c.EventsMatch(expected.Events, actual.Events)

	return d
}

func firstDivergence(stream string, expected, actual []string) (StreamDiff, bool) {
	if slices.Equal(expected, actual) {
		return StreamDiff{}, false
	}

	diff := StreamDiff{
		Stream:      stream,
		ExpectedLen: len(expected),
		ActualLen:   len(actual),
	}
	for i := 0; i < len(expected) && i < len(actual); i++ {
		if expected[i] != actual[i] {
			diff.Line = i + 1
			diff.Expected = expected[i]
			diff.Actual = actual[i]
			break
		}
	}
	return diff, true
}

// Lines renders the diagnostic for terminal output.
func (d Diagnostic) Lines() []string {
	var lines []string

	if d.ExitCode != nil {
		lines = append(lines, fmt.Sprintf("Different exit code - expected %d, got %d", d.ExitCode.Expected, d.ExitCode.Actual))
	}

	for _, s := range d.Streams {
		switch {
		case s.Line > 0:
			lines = append(lines,
				fmt.Sprintf("First difference at line %d in %s:", s.Line, s.Stream),
				fmt.Sprintf("  Expected: %s", s.Expected),
				fmt.Sprintf("       Got: %s", s.Actual),
			)
		case s.ExpectedLen > s.ActualLen:
			lines = append(lines, fmt.Sprintf("Expected %s is %d lines longer than actual", s.Stream, s.ExpectedLen-s.ActualLen))
		default:
			lines = append(lines, fmt.Sprintf("Actual %s is %d lines longer than expected", s.Stream, s.ActualLen-s.ExpectedLen))
		}
	}

	if d.EventsDiffer {
		lines = append(lines, "MIDI events differ")
	}

	return lines
}
