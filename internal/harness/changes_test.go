package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/regress/internal/midi"
)

func TestChangesNone(t *testing.T) {
	r := Result{ExitCode: 2, Stdout: []string{"a"}, Stderr: []string{}}
	assert.Empty(t, Changes(r, r))
}

func TestChangesNilAndEmptyLinesAreEqual(t *testing.T) {
	assert.Empty(t, Changes(Result{}, NewResult()))
}

func TestChangesEachPart(t *testing.T) {
	prev := NewResult()
	next := Result{
		ExitCode: 1,
		Stdout:   []string{"out"},
		Stderr:   []string{"err"},
		Events:   []midi.Event{},
	}
	assert.Equal(t, []string{PartExitCode, PartStdout, PartStderr, PartEvents}, Changes(prev, next))
}

func TestChangesEventOffsetsAreStrict(t *testing.T) {
	prev := withEvents(noteOn(0.100))
	next := withEvents(noteOn(0.101))
	assert.Equal(t, []string{PartEvents}, Changes(prev, next))
}

func TestChangesCaptureDisabled(t *testing.T) {
	assert.Equal(t, []string{PartEvents}, Changes(withEvents(), NewResult()))
}
