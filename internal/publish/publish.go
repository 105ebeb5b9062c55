package publish

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cjeanneret/snapgate/internal/hw/camera"
)

// Record is everything known about one capture when it is published.
type Record struct {
	ID      string
	Source  string
	Host    string
	TakenAt time.Time
	Photo   camera.Photo
	Tags    map[string]int
}

// Publisher stores or forwards a capture. Publish returns where the
// capture ended up (path, URL, key), or "" if there was nothing to do.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, rec Record) (string, error)
}

// Telemetry is the JSON document sent by the network publishers.
type Telemetry struct {
	ID      string         `json:"id"`
	Source  string         `json:"source"`
	Host    string         `json:"host,omitempty"`
	TakenAt time.Time      `json:"taken_at"`
	Size    int            `json:"size"`
	Tags    map[string]int `json:"tags,omitempty"`
	Image   []byte         `json:"image,omitempty"`
}

// NewTelemetry builds the telemetry document; the image is embedded
// (base64) only when includeImage is set.
func NewTelemetry(rec Record, includeImage bool) Telemetry {
	t := Telemetry{
		ID:      rec.ID,
		Source:  rec.Source,
		Host:    rec.Host,
		TakenAt: rec.TakenAt.UTC(),
		Size:    len(rec.Photo.Data),
		Tags:    rec.Tags,
	}
	if includeImage {
		t.Image = rec.Photo.Data
	}
	return t
}

func marshalTelemetry(rec Record, includeImage bool) ([]byte, error) {
	return json.Marshal(NewTelemetry(rec, includeImage))
}
