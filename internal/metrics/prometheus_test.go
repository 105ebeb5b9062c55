package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newTestSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)
	return sink, reg
}

func getGaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetGauge() != nil {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}

func getCounterVecValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if matchLabels(m.GetLabel(), labels) {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func getHistogramCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	var total uint64
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				total += m.GetHistogram().GetSampleCount()
			}
		}
	}
	return total
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

func TestPrometheusSink_TriggerEvaluated(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.TriggerEvaluated("edge", "accepted")
	sink.TriggerEvaluated("edge", "debounced")
	sink.TriggerEvaluated("edge", "debounced")
	sink.TriggerEvaluated("command", "busy")

	if got := getCounterVecValue(t, reg, "snapgate_triggers_total", map[string]string{"source": "edge", "decision": "debounced"}); got != 2 {
		t.Errorf("edge/debounced = %v, want 2", got)
	}
	if got := getCounterVecValue(t, reg, "snapgate_triggers_total", map[string]string{"source": "command", "decision": "busy"}); got != 1 {
		t.Errorf("command/busy = %v, want 1", got)
	}
}

func TestPrometheusSink_TriggerDroppedAndQueueDepth(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.TriggerDropped("timer")
	sink.QueueDepthUpdate(7)

	if got := getCounterVecValue(t, reg, "snapgate_triggers_dropped_total", map[string]string{"source": "timer"}); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
	if got := getGaugeValue(t, reg, "snapgate_trigger_queue_depth"); got != 7 {
		t.Errorf("queue depth = %v, want 7", got)
	}
}

func TestPrometheusSink_CaptureLifecycle(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.CaptureStarted()
	if got := getGaugeValue(t, reg, "snapgate_captures_in_flight"); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
	sink.CaptureCompleted(250*time.Millisecond, nil)
	sink.CaptureStarted()
	sink.CaptureCompleted(time.Second, errors.New("camera offline"))

	if got := getGaugeValue(t, reg, "snapgate_captures_in_flight"); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
	if got := getCounterVecValue(t, reg, "snapgate_captures_total", map[string]string{"outcome": OutcomeSuccess}); got != 1 {
		t.Errorf("success = %v, want 1", got)
	}
	if got := getCounterVecValue(t, reg, "snapgate_captures_total", map[string]string{"outcome": OutcomeFailed}); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
	if got := getHistogramCount(t, reg, "snapgate_capture_duration_seconds"); got != 2 {
		t.Errorf("duration samples = %d, want 2", got)
	}
}

func TestPrometheusSink_PublishCompleted(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.PublishCompleted("local", 10*time.Millisecond, nil)
	sink.PublishCompleted("webhook", 10*time.Millisecond, errors.New("502"))

	if got := getCounterVecValue(t, reg, "snapgate_publish_total", map[string]string{"publisher": "webhook", "outcome": OutcomeFailed}); got != 1 {
		t.Errorf("webhook failed = %v, want 1", got)
	}
	if got := getHistogramCount(t, reg, "snapgate_publish_duration_seconds"); got != 2 {
		t.Errorf("publish duration samples = %d, want 2", got)
	}
}

func TestPrometheusSink_DoubleRegistrationDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusSink(reg)
	sink := NewPrometheusSink(reg)
	// Collectors failed to register but must still be usable.
	sink.TriggerEvaluated("edge", "accepted")
	sink.CaptureCompleted(time.Millisecond, nil)
}

func TestPrometheusSink_NilRegisterer(t *testing.T) {
	sink := NewPrometheusSink(nil)
	sink.TriggerDropped("edge")
}
