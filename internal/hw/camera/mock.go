package camera

import (
	"context"
	"time"

	"github.com/cjeanneret/snapgate/internal/debug"
)

// placeholderJPEG is the smallest byte sequence most tools accept as a JPEG
// container (SOI + EOI markers). It is not a decodable picture.
var placeholderJPEG = []byte{0xFF, 0xD8, 0xFF, 0xD9}

// Mock is a development camera returning a fixed payload after an optional delay.
type Mock struct {
	delay time.Duration
}

func NewMock(delay time.Duration) *Mock {
	return &Mock{delay: delay}
}

func (m *Mock) Capture(ctx context.Context) (Photo, error) {
	debug.Verbose("Camera: mock capture (%v)", m.delay)
	if m.delay > 0 {
		if err := sleep(ctx, m.delay); err != nil {
			return Photo{}, err
		}
	}
	data := append([]byte(nil), placeholderJPEG...)
	return Photo{Data: data, ContentType: "image/jpeg", TakenAt: time.Now().UTC()}, nil
}
