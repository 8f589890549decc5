package harness

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Names of the parts of a Result reported by Changes.
const (
	PartExitCode = "exit code"
	PartStdout   = "stdout"
	PartStderr   = "stderr"
	PartEvents   = "midi"
)

// Changes lists the parts of next that differ from prev, compared strictly.
// Event offsets must be identical, and an absent event list differs from an
// empty one.
func Changes(prev, next Result) []string {
	lines := cmpopts.EquateEmpty()

	var changed []string
	if prev.ExitCode != next.ExitCode {
		changed = append(changed, PartExitCode)
	}
	if !cmp.Equal(prev.Stdout, next.Stdout, lines) {
		changed = append(changed, PartStdout)
	}
	if !cmp.Equal(prev.Stderr, next.Stderr, lines) {
		changed = append(changed, PartStderr)
	}
	if (prev.Events == nil) != (next.Events == nil) || !cmp.Equal(prev.Events, next.Events, cmpopts.EquateEmpty()) {
		changed = append(changed, PartEvents)
	}
	return changed
}
