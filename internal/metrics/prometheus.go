package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Trigger metrics
	triggersTotal *prometheus.CounterVec
	droppedTotal  *prometheus.CounterVec
	queueDepth    prometheus.Gauge

	// Capture metrics
	capturesTotal    *prometheus.CounterVec
	captureDuration  prometheus.Histogram
	capturesInFlight prometheus.Gauge

	// Publisher metrics
	publishTotal    *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initTriggerMetrics(reg)
	s.initCaptureMetrics(reg)
	s.initPublisherMetrics(reg)
	return s
}

func (s *PrometheusSink) initTriggerMetrics(reg prometheus.Registerer) {
	s.triggersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snapgate_triggers_total",
		Help: "Total number of trigger evaluations by source and decision.",
	}, []string{"source", "decision"})
	s.droppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snapgate_triggers_dropped_total",
		Help: "Total number of trigger notifications dropped because the queue was full.",
	}, []string{"source"})
	s.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "snapgate_trigger_queue_depth",
		Help: "Number of trigger notifications waiting for evaluation.",
	})

	s.register(reg, s.triggersTotal, "snapgate_triggers_total")
	s.register(reg, s.droppedTotal, "snapgate_triggers_dropped_total")
	s.register(reg, s.queueDepth, "snapgate_trigger_queue_depth")
}

func (s *PrometheusSink) initCaptureMetrics(reg prometheus.Registerer) {
	s.capturesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snapgate_captures_total",
		Help: "Total number of capture pipeline runs by outcome.",
	}, []string{"outcome"})
	s.captureDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "snapgate_capture_duration_seconds",
		Help:    "Duration of capture pipeline runs in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
	s.capturesInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "snapgate_captures_in_flight",
		Help: "Number of capture pipeline runs in progress (0 or 1).",
	})

	s.register(reg, s.capturesTotal, "snapgate_captures_total")
	s.register(reg, s.captureDuration, "snapgate_capture_duration_seconds")
	s.register(reg, s.capturesInFlight, "snapgate_captures_in_flight")
}

func (s *PrometheusSink) initPublisherMetrics(reg prometheus.Registerer) {
	s.publishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snapgate_publish_total",
		Help: "Total number of publish attempts by publisher and outcome.",
	}, []string{"publisher", "outcome"})
	s.publishDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snapgate_publish_duration_seconds",
		Help:    "Duration of publish attempts in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
	}, []string{"publisher"})

	s.register(reg, s.publishTotal, "snapgate_publish_total")
	s.register(reg, s.publishDuration, "snapgate_publish_duration_seconds")
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if reg == nil {
		return
	}
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Trigger metrics implementation

func (s *PrometheusSink) TriggerEvaluated(source, decision string) {
	s.triggersTotal.WithLabelValues(source, decision).Inc()
}

func (s *PrometheusSink) TriggerDropped(source string) {
	s.droppedTotal.WithLabelValues(source).Inc()
}

func (s *PrometheusSink) QueueDepthUpdate(depth int) {
	s.queueDepth.Set(float64(depth))
}

// Capture metrics implementation

func (s *PrometheusSink) CaptureStarted() {
	s.capturesInFlight.Inc()
}

func (s *PrometheusSink) CaptureCompleted(duration time.Duration, err error) {
	s.capturesInFlight.Dec()
	s.captureDuration.Observe(duration.Seconds())
	s.capturesTotal.WithLabelValues(Outcome(err)).Inc()
}

// Publisher metrics implementation

func (s *PrometheusSink) PublishCompleted(publisher string, duration time.Duration, err error) {
	s.publishDuration.WithLabelValues(publisher).Observe(duration.Seconds())
	s.publishTotal.WithLabelValues(publisher, Outcome(err)).Inc()
}
