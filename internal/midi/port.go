package midi

import (
	"context"
	"errors"
	"time"
)

// ErrPortUnavailable is wrapped by every error that prevents a port from
// being opened.
var ErrPortUnavailable = errors.New("event port unavailable")

// ErrOverflow is returned by Next when the port had to discard messages
// because nobody was reading them.
var ErrOverflow = errors.New("event port buffer overflow")

// Raw is a message as delivered by a port, stamped on arrival.
type Raw struct {
	Msg []byte
	At  time.Time
}

// Port is an opened event source.
type Port interface {
	// Next blocks until a message arrives, timeout elapses or ctx is done.
	// ok is false when the wait timed out.
	Next(ctx context.Context, timeout time.Duration) (raw Raw, ok bool, err error)

	// Close releases the port.
	Close() error
}

// Opener acquires a Port for the duration of one capture.
type Opener interface {
	Open() (Port, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func() (Port, error)

// Open calls f.
func (f OpenerFunc) Open() (Port, error) {
	return f()
}
