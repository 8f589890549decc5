// Package harness executes the interpreter under test and judges what it
// did.
//
// # Results
//
// A Result holds the exit code, the output split into lines and, when
// capture was requested, the MIDI events the interpreter sent:
//
//	{
//	  "exit_code": 0,
//	  "stdout_lines": ["3"],
//	  "stderr_lines": [],
//	  "midi_events": [{"type": "note_on", "args": ["0", "60"], "time": 0.1}]
//	}
//
// A nil event list means capture was off. An empty one means it was on and
// nothing arrived. The two never compare equal.
//
// # Comparison
//
// Exit code and both line sequences must be identical. Events must agree in
// count, and each expected event must pair with a distinct actual event of
// the same kind and arguments whose offset is within EventTolerance. The
// AnyMatch strategy drops the distinctness requirement.
//
// # Execution
//
// Driver runs "interpreter <source> -q" in the project root, feeds stdin
// and, for captures, listens on the event port while the process runs.
// Event offsets and the process start share one time origin.
package harness
