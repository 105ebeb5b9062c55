package status

import (
	"sync"
	"time"

	"github.com/cjeanneret/snapgate/internal/debug"
	"github.com/cjeanneret/snapgate/internal/hw/gpio"
)

// LED is a GPIO output used as a "trigger seen but ignored" indicator.
// Assert switches it on and arms a timer that switches it off again;
// asserting while lit only restarts the timer.
type LED struct {
	gpio gpio.Driver
	pin  int

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64 // bumped on every Assert and Close; stale timers compare against it
}

// NewLED configures pin as an output, initially off.
func NewLED(g gpio.Driver, pin int) (*LED, error) {
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return nil, err
	}
	if err := g.WritePin(pin, gpio.Low); err != nil {
		return nil, err
	}
	return &LED{gpio: g, pin: pin}, nil
}

// Assert lights the LED for d. It never blocks and GPIO errors are only logged.
func (l *LED) Assert(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if err := l.gpio.WritePin(l.pin, gpio.High); err != nil {
		debug.Trace("Status LED: pin %d write failed: %v", l.pin, err)
		return
	}
	gen := l.gen
	l.timer = time.AfterFunc(d, func() { l.off(gen) })
}

// off switches the LED off unless a later Assert or Close superseded gen.
func (l *LED) off(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return
	}
	if err := l.gpio.WritePin(l.pin, gpio.Low); err != nil {
		debug.Trace("Status LED: pin %d write failed: %v", l.pin, err)
	}
}

// Close stops any pending timer and switches the LED off.
func (l *LED) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	return l.gpio.WritePin(l.pin, gpio.Low)
}
