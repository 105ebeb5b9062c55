package metrics

import (
	"errors"
	"testing"
	"time"
)

func TestNoopSink_ImplementsSink(t *testing.T) {
	var s Sink = NewNoopSink()
	s.TriggerEvaluated("edge", "accepted")
	s.TriggerDropped("edge")
	s.QueueDepthUpdate(3)
	s.CaptureStarted()
	s.CaptureCompleted(time.Second, errors.New("x"))
	s.PublishCompleted("local", time.Second, nil)
}

func TestOutcome(t *testing.T) {
	if got := Outcome(nil); got != OutcomeSuccess {
		t.Errorf("Outcome(nil) = %q, want %q", got, OutcomeSuccess)
	}
	if got := Outcome(errors.New("x")); got != OutcomeFailed {
		t.Errorf("Outcome(err) = %q, want %q", got, OutcomeFailed)
	}
}

var _ Sink = (*PrometheusSink)(nil)
