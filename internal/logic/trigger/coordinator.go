package trigger

import (
	"errors"
	"sync"
	"time"
)

// Reason tells why a trigger was not accepted.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonWrongEdge
	ReasonDebounced
	ReasonBusy
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "accepted"
	case ReasonWrongEdge:
		return "wrong_edge"
	case ReasonDebounced:
		return "debounced"
	case ReasonBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Decision is the outcome of evaluating one trigger. Rejections are normal
// control flow, not errors.
type Decision struct {
	Accepted bool
	Reason   Reason
}

var accepted = Decision{Accepted: true}

func rejected(r Reason) Decision { return Decision{Reason: r} }

func (d Decision) String() string { return d.Reason.String() }

// Indicator is an optional "trigger seen but ignored" signal (e.g. an LED).
// Assert must not block; failures are the indicator's own business.
type Indicator interface {
	Assert(d time.Duration)
}

// Policy is the coordinator configuration.
type Policy struct {
	// Debounce is the minimum time between two accepted triggers. Zero disables it.
	Debounce time.Duration
	// Edge is the edge direction that counts for edge events.
	Edge Edge
	// CommandDebounce applies Debounce to remote commands as well.
	CommandDebounce bool
	// IndicatorDuration is how long the indicator is asserted on rejection.
	IndicatorDuration time.Duration
}

// DefaultIndicatorDuration matches a brief, visible LED flash.
const DefaultIndicatorDuration = 10 * time.Millisecond

// ErrNegativeDebounce is returned by NewCoordinator for a negative debounce interval.
var ErrNegativeDebounce = errors.New("debounce interval must be >= 0")

// Coordinator gates trigger events through the edge filter, the debounce
// window and the busy flag. At most one accepted trigger is unreleased at
// any time; every accepted Evaluate must be paired with one Release.
type Coordinator struct {
	policy    Policy
	indicator Indicator

	mu          sync.Mutex
	busy        bool
	captured    bool
	lastCapture time.Time
}

// NewCoordinator creates a coordinator. indicator may be nil.
func NewCoordinator(p Policy, indicator Indicator) (*Coordinator, error) {
	if p.Debounce < 0 {
		return nil, ErrNegativeDebounce
	}
	if p.Edge != RisingEdge && p.Edge != FallingEdge {
		return nil, errors.New("trigger edge must be rising or falling")
	}
	if p.IndicatorDuration <= 0 {
		p.IndicatorDuration = DefaultIndicatorDuration
	}
	return &Coordinator{policy: p, indicator: indicator}, nil
}

// Policy returns the coordinator configuration.
func (c *Coordinator) Policy() Policy { return c.policy }

// Evaluate decides whether ev observed at now should start a capture.
// On acceptance the coordinator is marked busy and now becomes the last
// capture time; the caller must call Release once the capture ends.
func (c *Coordinator) Evaluate(ev Event, now time.Time) Decision {
	if ev.Kind == KindEdge && ev.Edge != c.policy.Edge {
		return rejected(ReasonWrongEdge)
	}

	c.mu.Lock()
	d := c.evaluateLocked(ev, now)
	c.mu.Unlock()

	if !d.Accepted && c.indicator != nil {
		c.indicator.Assert(c.policy.IndicatorDuration)
	}
	return d
}

func (c *Coordinator) evaluateLocked(ev Event, now time.Time) Decision {
	debounced := c.policy.Debounce > 0 && (ev.Kind != KindCommand || c.policy.CommandDebounce)
	if debounced && c.captured && now.Sub(c.lastCapture) < c.policy.Debounce {
		return rejected(ReasonDebounced)
	}
	if c.busy {
		return rejected(ReasonBusy)
	}
	c.lastCapture = now
	c.captured = true
	c.busy = true
	return accepted
}

// Release clears the busy flag. It is safe to call when not busy.
func (c *Coordinator) Release() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// Snapshot is a point-in-time copy of the coordinator state.
type Snapshot struct {
	Busy        bool
	LastCapture time.Time // zero if nothing was ever accepted
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{Busy: c.busy}
	if c.captured {
		s.LastCapture = c.lastCapture
	}
	return s
}
