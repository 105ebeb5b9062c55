package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TriggerEvaluated(source, decision string)                       {}
func (n *NoopSink) TriggerDropped(source string)                                   {}
func (n *NoopSink) QueueDepthUpdate(depth int)                                     {}
func (n *NoopSink) CaptureStarted()                                                {}
func (n *NoopSink) CaptureCompleted(duration time.Duration, err error)             {}
func (n *NoopSink) PublishCompleted(publisher string, d time.Duration, err error) {}
