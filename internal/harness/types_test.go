package harness

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/regress/internal/midi"
)

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty stream", "", []string{}},
		{"single terminated line", "3\n", []string{"3"}},
		{"unterminated last line", "a\nb", []string{"a", "b"}},
		{"blank line kept", "a\n\nb\n", []string{"a", "", "b"}},
		{"lone newline", "\n", []string{""}},
		{"crlf", "a\r\nb\r\n", []string{"a", "b"}},
		{"bare cr", "a\rb", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitLines([]byte(tt.in)))
		})
	}
}

func TestSplitLinesEmptyIsNotNil(t *testing.T) {
	lines := SplitLines(nil)
	require.NotNil(t, lines)
	assert.Empty(t, lines)
}

func TestSplitLinesReplacesInvalidUTF8(t *testing.T) {
	lines := SplitLines([]byte{'o', 'k', 0xff, '\n'})
	assert.Equal(t, []string{"ok�"}, lines)
}

func TestNewResultDefaults(t *testing.T) {
	r := NewResult()
	assert.Equal(t, 0, r.ExitCode)
	assert.Empty(t, r.Stdout)
	assert.Empty(t, r.Stderr)
	assert.False(t, r.CapturesEvents())
}

func TestResultJSONDistinguishesAbsentEvents(t *testing.T) {
	absent := NewResult()
	data, err := json.Marshal(absent)
	require.NoError(t, err)
	assert.JSONEq(t, `{"exit_code":0,"stdout_lines":[],"stderr_lines":[],"midi_events":null}`, string(data))

	empty := NewResult()
	empty.Events = []midi.Event{}
	data, err = json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `{"exit_code":0,"stdout_lines":[],"stderr_lines":[],"midi_events":[]}`, string(data))

	var decoded Result
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.CapturesEvents())
}

func TestNormalizeFillsNilLines(t *testing.T) {
	r := Result{}
	r.Normalize()
	assert.NotNil(t, r.Stdout)
	assert.NotNil(t, r.Stderr)
	assert.Nil(t, r.Events, "normalize never enables capture")
}
