package midi

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // registers the rtmidi driver
)

// DefaultPortName is the input port captures bind to unless configured.
const DefaultPortName = "Midi Through"

const rtBufferSize = 4096

// RTOpener opens system MIDI input ports through gomidi.
type RTOpener struct {
	// PortName is matched against the available input ports.
	PortName string
}

// Open finds the configured input port and starts listening on it.
func (o RTOpener) Open() (Port, error) {
	name := o.PortName
	if name == "" {
		name = DefaultPortName
	}

	in, err := gomidi.FindInPort(name)
	if err != nil {
		return nil, fmt.Errorf("%w: input port %q: %v", ErrPortUnavailable, name, err)
	}

	p := &rtPort{
		in:     in,
		events: make(chan Raw, rtBufferSize),
	}
	stop, err := gomidi.ListenTo(in, p.receive)
	if err != nil {
		return nil, fmt.Errorf("%w: listen on %q: %v", ErrPortUnavailable, name, err)
	}
	p.stop = stop
	return p, nil
}

// Shutdown releases the MIDI driver. Call once before the process exits.
func Shutdown() {
	gomidi.CloseDriver()
}

type rtPort struct {
	in      drivers.In
	stop    func()
	events  chan Raw
	dropped atomic.Int64
}

// receive runs on the driver's callback goroutine.
func (p *rtPort) receive(msg gomidi.Message, _ int32) {
	raw := Raw{Msg: append([]byte(nil), msg...), At: time.Now()}
	select {
	case p.events <- raw:
	default:
		p.dropped.Add(1)
	}
}

func (p *rtPort) Next(ctx context.Context, timeout time.Duration) (Raw, bool, error) {
	if n := p.dropped.Load(); n > 0 {
		return Raw{}, false, fmt.Errorf("%w: %d messages lost", ErrOverflow, n)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case raw := <-p.events:
		return raw, true, nil
	case <-timer.C:
		return Raw{}, false, nil
	case <-ctx.Done():
		return Raw{}, false, ctx.Err()
	}
}

func (p *rtPort) Close() error {
	if p.stop != nil {
		p.stop()
	}
	return p.in.Close()
}
