package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/snapgate/internal/debug"
	"github.com/cjeanneret/snapgate/internal/hw/camera"
	"github.com/cjeanneret/snapgate/internal/logic/classify"
	"github.com/cjeanneret/snapgate/internal/logic/trigger"
	"github.com/cjeanneret/snapgate/internal/metrics"
	"github.com/cjeanneret/snapgate/internal/publish"
)

// Options configure a Pipeline. Only Camera is required.
type Options struct {
	Camera     camera.Camera
	Classifier classify.Classifier
	// Threshold is the minimum probability (exclusive) for a tag to be counted.
	Threshold  float64
	Publishers []publish.Publisher
	Host       string
	Sink       metrics.Sink
}

// Pipeline takes a picture, optionally classifies it, then hands it to
// every publisher. It implements trigger.Pipeline.
type Pipeline struct {
	camera     camera.Camera
	classifier classify.Classifier
	threshold  float64
	publishers []publish.Publisher
	host       string
	sink       metrics.Sink
}

func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Camera == nil {
		return nil, errors.New("capture pipeline: camera is required")
	}
	sink := opts.Sink
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Pipeline{
		camera:     opts.Camera,
		classifier: opts.Classifier,
		threshold:  opts.Threshold,
		publishers: opts.Publishers,
		host:       opts.Host,
		sink:       sink,
	}, nil
}

// Invoke runs one capture. A classification failure is logged and the
// capture is published untagged. Publisher failures do not stop the other
// publishers; they are joined into the returned error.
func (p *Pipeline) Invoke(ctx context.Context, req trigger.Request) (trigger.Artifact, error) {
	art := trigger.Artifact{ID: req.ID}

	debug.Step(1, "Capture")
	photo, err := p.camera.Capture(ctx)
	if err != nil {
		return art, fmt.Errorf("camera: %w", err)
	}
	if photo.TakenAt.IsZero() {
		photo.TakenAt = time.Now()
	}
	art.TakenAt = photo.TakenAt
	art.Size = len(photo.Data)

	debug.Step(2, "Classify")
	art.Tags = p.classify(ctx, req.ID, photo)

	debug.Step(3, "Publish")
	rec := publish.Record{
		ID:      req.ID,
		Source:  req.Event.Kind.String(),
		Host:    p.host,
		TakenAt: photo.TakenAt,
		Photo:   photo,
		Tags:    art.Tags,
	}

	var errs []error
	for _, pub := range p.publishers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		start := time.Now()
		loc, err := pub.Publish(ctx, rec)
		p.sink.PublishCompleted(pub.Name(), time.Since(start), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", pub.Name(), err))
			continue
		}
		if loc != "" {
			art.Locations = append(art.Locations, loc)
			debug.Captured(req.ID, rec.Source, loc)
		}
	}
	return art, errors.Join(errs...)
}

func (p *Pipeline) classify(ctx context.Context, id string, photo camera.Photo) map[string]int {
	if p.classifier == nil {
		return nil
	}
	if !photo.HasData() {
		debug.Verbose("Classifier: capture %s has no image data, skipped", id)
		return nil
	}
	preds, err := p.classifier.Classify(ctx, photo.Data)
	if err != nil {
		debug.Error(fmt.Errorf("classify %s: %w", id, err))
		return nil
	}
	tags := classify.Tally(preds, p.threshold)
	for _, t := range classify.Tags(tags) {
		debug.Live("Capture %s: %d x %s", id, tags[t], t)
	}
	return tags
}
