package midi

import (
	"fmt"
	"strconv"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Kind is the closed set of event tags a capture can produce.
type Kind string

const (
	KindNoteOn  Kind = "note_on"
	KindNoteOff Kind = "note_off"
)

// arity is the fixed number of args carried by each kind.
var arity = map[Kind]int{
	KindNoteOn:  2, // channel, note
	KindNoteOff: 2, // channel, note
}

// Valid reports whether k is a recognized kind.
func (k Kind) Valid() bool {
	_, ok := arity[k]
	return ok
}

// Arity returns the number of args events of this kind carry, or -1 for
// unknown kinds.
func (k Kind) Arity() int {
	n, ok := arity[k]
	if !ok {
		return -1
	}
	return n
}

// Event is one normalized, time-stamped occurrence.
//
// Offset is measured in seconds from the start of the capture. The JSON
// field names match the persisted test database.
type Event struct {
	Kind   Kind     `json:"type"`
	Args   []string `json:"args"`
	Offset float64  `json:"time"`
}

// String renders the event for diagnostics.
func (e Event) String() string {
	return fmt.Sprintf("%s%v@%.3fs", e.Kind, e.Args, e.Offset)
}

// Key identifies the event content without its time.
func (e Event) Key() string {
	key := string(e.Kind)
	for _, a := range e.Args {
		key += "\x1f" + a
	}
	return key
}

// UnknownEventError is returned when a port delivers a message that has no
// Kind.
type UnknownEventError struct {
	Type string
	Raw  []byte
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unrecognized MIDI event %s (% X)", e.Type, e.Raw)
}

// Normalize converts a raw MIDI message into an Event at the given offset.
func Normalize(msg []byte, offset float64) (Event, error) {
	m := gomidi.Message(msg)

	var channel, key, velocity uint8
	switch {
	case m.GetNoteOn(&channel, &key, &velocity):
		// TODO: record velocity once expectations carry a third arg.
		return noteEvent(KindNoteOn, channel, key, offset), nil
	case m.GetNoteOff(&channel, &key, &velocity):
		return noteEvent(KindNoteOff, channel, key, offset), nil
	default:
		return Event{}, &UnknownEventError{Type: m.Type().String(), Raw: append([]byte(nil), msg...)}
	}
}

func noteEvent(kind Kind, channel, key uint8, offset float64) Event {
	return Event{
		Kind:   kind,
		Args:   []string{strconv.Itoa(int(channel)), strconv.Itoa(int(key))},
		Offset: offset,
	}
}
