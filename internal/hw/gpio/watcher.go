package gpio

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/snapgate/internal/debug"
)

// Edge is the direction of a level transition on an input pin.
type Edge int

const (
	RisingEdge Edge = iota + 1
	FallingEdge
)

func (e Edge) String() string {
	switch e {
	case RisingEdge:
		return "rising"
	case FallingEdge:
		return "falling"
	default:
		return "none"
	}
}

// Watcher samples an input pin and reports every transition as an edge.
// Both directions are reported; filtering is left to the consumer.
type Watcher struct {
	gpio     Driver
	pin      int
	interval time.Duration
}

// NewWatcher configures pin as an input with the given mode and returns a
// watcher sampling it every interval (defaults to 5ms when <= 0).
func NewWatcher(g Driver, pin int, mode PinMode, interval time.Duration) (*Watcher, error) {
	if mode == Output {
		return nil, fmt.Errorf("watch pin %d: output mode cannot be watched", pin)
	}
	if err := g.SetupPin(pin, mode); err != nil {
		return nil, fmt.Errorf("setup pin %d: %w", pin, err)
	}
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}
	return &Watcher{gpio: g, pin: pin, interval: interval}, nil
}

// Pin returns the watched pin number.
func (w *Watcher) Pin() int { return w.pin }

// Run samples the pin until ctx is cancelled, calling onEdge for each
// transition. onEdge runs on the watcher goroutine and must not block.
func (w *Watcher) Run(ctx context.Context, onEdge func(Edge, time.Time)) error {
	last, err := w.gpio.ReadPin(w.pin)
	if err != nil {
		return fmt.Errorf("read pin %d: %w", w.pin, err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	debug.Verbose("GPIO watcher: pin %d started (interval %v, level %v)", w.pin, w.interval, last)

	for {
		select {
		case <-ctx.Done():
			debug.Verbose("GPIO watcher: pin %d stopped", w.pin)
			return ctx.Err()
		case now := <-ticker.C:
			cur, err := w.gpio.ReadPin(w.pin)
			if err != nil {
				debug.Error(fmt.Errorf("read pin %d: %w", w.pin, err))
				continue
			}
			if cur == last {
				continue
			}
			edge := FallingEdge
			if cur == High {
				edge = RisingEdge
			}
			last = cur
			debug.Trace("GPIO watcher: pin %d %s edge", w.pin, edge)
			onEdge(edge, now)
		}
	}
}
