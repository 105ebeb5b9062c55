package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/snapgate/internal/debug"
	"github.com/cjeanneret/snapgate/internal/metrics"
)

// ErrQueueFull is returned when a notification cannot be queued without blocking.
var ErrQueueFull = errors.New("trigger queue full")

// Request describes one accepted trigger handed to the pipeline.
type Request struct {
	ID    string
	Event Event
	At    time.Time
}

// Artifact is the metadata of what a pipeline run produced.
type Artifact struct {
	ID        string
	TakenAt   time.Time
	Size      int
	Locations []string
	Tags      map[string]int
}

// Pipeline performs capture, optional classification and publishing.
type Pipeline interface {
	Invoke(ctx context.Context, req Request) (Artifact, error)
}

// PipelineFunc adapts a function to Pipeline.
type PipelineFunc func(ctx context.Context, req Request) (Artifact, error)

func (f PipelineFunc) Invoke(ctx context.Context, req Request) (Artifact, error) {
	return f(ctx, req)
}

// Outcome reports a finished pipeline run.
type Outcome struct {
	Request  Request
	Artifact Artifact
	Err      error
	Duration time.Duration
}

// RunnerConfig controls the runner loop.
type RunnerConfig struct {
	// QueueSize bounds pending notifications (defaults to 16).
	QueueSize int
	// PipelineTimeout bounds each pipeline run. Zero means no limit.
	PipelineTimeout time.Duration
}

type notification struct {
	ev    Event
	at    time.Time
	reply chan Decision
}

// Runner serializes trigger notifications from any goroutine through a single
// evaluation loop and runs each accepted capture on its own goroutine.
type Runner struct {
	coord    *Coordinator
	pipeline Pipeline
	cfg      RunnerConfig
	sink     metrics.Sink
	clock    func() time.Time
	queue    chan notification
	wg       sync.WaitGroup

	mu        sync.Mutex
	onOutcome func(Outcome)
}

// NewRunner creates a runner. sink may be nil.
func NewRunner(coord *Coordinator, pipeline Pipeline, cfg RunnerConfig, sink metrics.Sink) *Runner {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Runner{
		coord:    coord,
		pipeline: pipeline,
		cfg:      cfg,
		sink:     sink,
		clock:    time.Now,
		queue:    make(chan notification, cfg.QueueSize),
	}
}

// Coordinator returns the coordinator gating this runner.
func (r *Runner) Coordinator() *Coordinator { return r.coord }

// OnOutcome registers a hook called after every pipeline run.
func (r *Runner) OnOutcome(fn func(Outcome)) {
	r.mu.Lock()
	r.onOutcome = fn
	r.mu.Unlock()
}

// Notify queues ev observed at the given time. It never blocks; when the
// queue is full the notification is dropped and ErrQueueFull returned.
func (r *Runner) Notify(ev Event, at time.Time) error {
	return r.enqueue(notification{ev: ev, at: at})
}

// Submit queues ev stamped with the current time and waits for its decision.
func (r *Runner) Submit(ctx context.Context, ev Event) (Decision, error) {
	reply := make(chan Decision, 1)
	if err := r.enqueue(notification{ev: ev, at: r.clock(), reply: reply}); err != nil {
		return Decision{}, err
	}
	select {
	case d := <-reply:
		return d, nil
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}

func (r *Runner) enqueue(n notification) error {
	select {
	case r.queue <- n:
		r.sink.QueueDepthUpdate(len(r.queue))
		return nil
	default:
		r.sink.TriggerDropped(n.ev.Kind.String())
		debug.Live("Trigger %s dropped: queue full", n.ev)
		return ErrQueueFull
	}
}

// Run evaluates queued notifications until ctx is cancelled. Captures in
// flight are not cancelled; Run waits for them before returning.
func (r *Runner) Run(ctx context.Context) error {
	debug.Verbose("Runner: started (queue=%d, pipeline timeout=%v)", r.cfg.QueueSize, r.cfg.PipelineTimeout)
	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			debug.Verbose("Runner: stopped")
			return ctx.Err()
		case n := <-r.queue:
			r.sink.QueueDepthUpdate(len(r.queue))
			r.handle(ctx, n)
		}
	}
}

func (r *Runner) handle(ctx context.Context, n notification) {
	d := r.coord.Evaluate(n.ev, n.at)
	r.sink.TriggerEvaluated(n.ev.Kind.String(), d.String())
	debug.Decision(n.ev.String(), d.String())

	if d.Accepted {
		req := Request{ID: uuid.NewString(), Event: n.ev, At: n.at}
		r.wg.Add(1)
		go r.capture(ctx, req)
	}
	if n.reply != nil {
		n.reply <- d
	}
}

func (r *Runner) capture(parent context.Context, req Request) {
	defer r.wg.Done()

	ctx := context.WithoutCancel(parent)
	if r.cfg.PipelineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.PipelineTimeout)
		defer cancel()
	}

	r.sink.CaptureStarted()
	start := time.Now()
	art, err := r.runPipeline(ctx, req)
	elapsed := time.Since(start)
	r.sink.CaptureCompleted(elapsed, err)

	if err != nil {
		debug.Error(fmt.Errorf("capture %s (%s) failed after %v: %w", req.ID, req.Event, elapsed, err))
	} else {
		debug.Live("Capture %s (%s) completed in %v", req.ID, req.Event, elapsed)
	}

	r.mu.Lock()
	hook := r.onOutcome
	r.mu.Unlock()
	if hook != nil {
		hook(Outcome{Request: req, Artifact: art, Err: err, Duration: elapsed})
	}
}

// runPipeline owns the busy flag acquired by the accepting Evaluate and
// releases it on every exit path, panics included.
func (r *Runner) runPipeline(ctx context.Context, req Request) (art Artifact, err error) {
	defer r.coord.Release()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("pipeline panic: %v", p)
		}
	}()
	return r.pipeline.Invoke(ctx, req)
}
