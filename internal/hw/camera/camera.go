package camera

import (
	"context"
	"time"
)

// Camera is the high-level interface used by the rest of the application.
// It represents an abstract "camera", regardless of how it's controlled
// (GPIO, USB, external program, etc.).
type Camera interface {
	// Capture takes a single still picture.
	Capture(ctx context.Context) (Photo, error)
}

// Photo is the result of a single capture.
// Data is empty for cameras that keep the image on their own storage
// (e.g. a DSLR fired through its remote connector).
type Photo struct {
	Data        []byte
	ContentType string
	TakenAt     time.Time
}

// HasData reports whether the image bytes are available to the host.
func (p Photo) HasData() bool { return len(p.Data) > 0 }
