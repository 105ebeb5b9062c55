package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cjeanneret/snapgate/internal/debug"
)

// ErrEmptyImage is returned when the capture program exits cleanly but
// writes nothing to stdout.
var ErrEmptyImage = errors.New("camera produced an empty image")

// ErrImageTooLarge is returned when the capture program writes more than
// the command's output limit.
var ErrImageTooLarge = errors.New("camera image exceeds output limit")

// MaxImageBytes bounds the stdout read from a capture program.
const MaxImageBytes = 32 << 20

// Command captures stills by running an external program that writes a
// JPEG to stdout (e.g. "libcamera-still -n -o -" or "fswebcam -").
type Command struct {
	argv     []string
	timeout  time.Duration
	maxBytes int
}

// NewCommand creates a command camera. timeout <= 0 means no limit
// beyond the caller's context.
func NewCommand(argv []string, timeout time.Duration) (*Command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("camera command is empty")
	}
	return &Command{argv: append([]string(nil), argv...), timeout: timeout, maxBytes: MaxImageBytes}, nil
}

func (c *Command) Capture(ctx context.Context) (Photo, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	debug.Verbose("Camera: running %s", strings.Join(c.argv, " "))
	takenAt := time.Now().UTC()

	stdout := &limitedBuffer{max: c.maxBytes}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return Photo{}, fmt.Errorf("run %s: %w: %s", c.argv[0], err, msg)
		}
		return Photo{}, fmt.Errorf("run %s: %w", c.argv[0], err)
	}
	if stdout.overflow {
		return Photo{}, fmt.Errorf("run %s: %w (%d bytes)", c.argv[0], ErrImageTooLarge, c.maxBytes)
	}
	if stdout.buf.Len() == 0 {
		return Photo{}, ErrEmptyImage
	}

	return Photo{Data: stdout.buf.Bytes(), ContentType: "image/jpeg", TakenAt: takenAt}, nil
}

// limitedBuffer keeps at most max bytes. Output past the limit is drained
// and dropped so the child never blocks on a full pipe.
type limitedBuffer struct {
	buf      bytes.Buffer
	max      int
	overflow bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.overflow {
		return len(p), nil
	}
	if b.max > 0 && b.buf.Len()+len(p) > b.max {
		b.overflow = true
		b.buf.Reset()
		return len(p), nil
	}
	return b.buf.Write(p)
}
