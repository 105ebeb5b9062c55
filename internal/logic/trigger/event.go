package trigger

import (
	"fmt"
	"strings"

	"github.com/cjeanneret/snapgate/internal/hw/gpio"
)

// Kind identifies which trigger source produced an event.
type Kind int

const (
	KindEdge Kind = iota + 1
	KindTimer
	KindCommand
)

func (k Kind) String() string {
	switch k {
	case KindEdge:
		return "edge"
	case KindTimer:
		return "timer"
	case KindCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Edge is the electrical transition direction carried by edge events.
type Edge = gpio.Edge

const (
	RisingEdge  = gpio.RisingEdge
	FallingEdge = gpio.FallingEdge
)

// ParseEdge converts "rising"/"falling" (case-insensitive) to an Edge.
func ParseEdge(s string) (Edge, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rising", "risingedge":
		return RisingEdge, nil
	case "falling", "fallingedge":
		return FallingEdge, nil
	default:
		return 0, fmt.Errorf("unknown trigger edge %q (want rising or falling)", s)
	}
}

// Event is a single trigger notification. Only the field matching Kind is meaningful.
type Event struct {
	Kind    Kind
	Edge    Edge   // KindEdge
	Payload string // KindCommand
}

// EdgeEvent returns an edge-interrupt event.
func EdgeEvent(e Edge) Event { return Event{Kind: KindEdge, Edge: e} }

// TimerEvent returns a timer-tick event.
func TimerEvent() Event { return Event{Kind: KindTimer} }

// CommandEvent returns a remote-command event.
func CommandEvent(payload string) Event { return Event{Kind: KindCommand, Payload: payload} }

func (e Event) String() string {
	switch e.Kind {
	case KindEdge:
		return "edge(" + e.Edge.String() + ")"
	case KindCommand:
		if e.Payload == "" {
			return "command"
		}
		return "command(" + e.Payload + ")"
	default:
		return e.Kind.String()
	}
}
