package camera

import (
	"context"
	"time"

	"github.com/cjeanneret/snapgate/internal/debug"
	"github.com/cjeanneret/snapgate/internal/hw/gpio"
)

// NikonD90GPIO is a Camera implementation for a Nikon D90
// controlled via the 3-pin remote connector:
// - GND: connected to Raspberry Pi ground
// - FOCUS: autofocus (activate by setting to LOW)
// - SHUTTER: trigger (activate by setting to LOW)
//
// The image stays on the camera card, so Capture returns a Photo without data.
type NikonD90GPIO struct {
	gpio         gpio.Driver
	focusPin     int
	shutterPin   int
	focusDelay   time.Duration // time for autofocus
	shutterDelay time.Duration // shutter hold time
}

// NewNikonD90GPIO creates a GPIO-controlled Nikon D90 trigger.
func NewNikonD90GPIO(g gpio.Driver, focusPin, shutterPin int, focusDelay, shutterDelay time.Duration) *NikonD90GPIO {
	_ = g.SetupPin(focusPin, gpio.Output)
	_ = g.SetupPin(shutterPin, gpio.Output)

	// By default, lines are HIGH (inactive)
	_ = g.WritePin(focusPin, gpio.High)
	_ = g.WritePin(shutterPin, gpio.High)

	return &NikonD90GPIO{
		gpio:         g,
		focusPin:     focusPin,
		shutterPin:   shutterPin,
		focusDelay:   focusDelay,
		shutterDelay: shutterDelay,
	}
}

// Capture fires the D90.
// Sequence: FOCUS -> wait for AF -> SHUTTER -> hold -> release
func (n *NikonD90GPIO) Capture(ctx context.Context) (Photo, error) {
	debug.Printf("Camera: triggering shot (focus=%d, shutter=%d)", n.focusPin, n.shutterPin)
	takenAt := time.Now().UTC()

	if err := n.gpio.WritePin(n.focusPin, gpio.Low); err != nil {
		return Photo{}, err
	}

	if err := sleep(ctx, n.focusDelay); err != nil {
		_ = n.gpio.WritePin(n.focusPin, gpio.High)
		return Photo{}, err
	}

	if err := n.gpio.WritePin(n.shutterPin, gpio.Low); err != nil {
		// Release FOCUS on error
		_ = n.gpio.WritePin(n.focusPin, gpio.High)
		return Photo{}, err
	}

	// The shutter is already pressed; hold it for the full duration.
	time.Sleep(n.shutterDelay)

	if err := n.gpio.WritePin(n.shutterPin, gpio.High); err != nil {
		return Photo{}, err
	}
	if err := n.gpio.WritePin(n.focusPin, gpio.High); err != nil {
		return Photo{}, err
	}

	debug.Verbose("Camera: shot triggered successfully")
	return Photo{TakenAt: takenAt}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
