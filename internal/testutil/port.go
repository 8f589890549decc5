package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/regress/internal/midi"
)

// ScriptedEvent is a message a ScriptedPort delivers After its port was
// opened.
type ScriptedEvent struct {
	After time.Duration
	Msg   []byte
}

// ScriptedPort replays a fixed list of messages on a real-time schedule.
type ScriptedPort struct {
	mu     sync.Mutex
	opened time.Time
	script []ScriptedEvent
	closed bool
}

// Next waits for the next scripted message. A message scheduled further
// away than timeout ends the wait with ok=false, as a real port would.
func (p *ScriptedPort) Next(ctx context.Context, timeout time.Duration) (midi.Raw, bool, error) {
	p.mu.Lock()
	if len(p.script) == 0 {
		p.mu.Unlock()
		return p.idle(ctx, timeout)
	}
	next := p.script[0]
	due := p.opened.Add(next.After)
	p.mu.Unlock()

	wait := time.Until(due)
	if wait > timeout {
		return p.idle(ctx, timeout)
	}
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return midi.Raw{}, false, ctx.Err()
		}
	}

	p.mu.Lock()
	p.script = p.script[1:]
	p.mu.Unlock()
	return midi.Raw{Msg: next.Msg, At: time.Now()}, true, nil
}

func (p *ScriptedPort) idle(ctx context.Context, timeout time.Duration) (midi.Raw, bool, error) {
	select {
	case <-time.After(timeout):
		return midi.Raw{}, false, nil
	case <-ctx.Done():
		return midi.Raw{}, false, ctx.Err()
	}
}

// Close marks the port closed.
func (p *ScriptedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *ScriptedPort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// ScriptedOpener hands out a fresh ScriptedPort per Open, each replaying
// the same script.
type ScriptedOpener struct {
	mu     sync.Mutex
	Script []ScriptedEvent
	Err    error
	Ports  []*ScriptedPort
}

// Open returns Err if set, otherwise a new ScriptedPort.
func (o *ScriptedOpener) Open() (midi.Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return nil, o.Err
	}
	p := &ScriptedPort{
		opened: time.Now(),
		script: append([]ScriptedEvent(nil), o.Script...),
	}
	o.Ports = append(o.Ports, p)
	return p, nil
}

// Opens returns how many ports were opened.
func (o *ScriptedOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.Ports)
}
