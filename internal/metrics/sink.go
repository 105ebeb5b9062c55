package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
type Sink interface {
	// Trigger metrics
	TriggerEvaluated(source, decision string)
	TriggerDropped(source string)
	QueueDepthUpdate(depth int)

	// Capture metrics
	CaptureStarted()
	CaptureCompleted(duration time.Duration, err error)

	// Publisher metrics
	PublishCompleted(publisher string, duration time.Duration, err error)
}

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Outcome maps an error to its outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailed
	}
	return OutcomeSuccess
}
