package debug

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func captureOutput(t *testing.T, lvl int) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(lvl)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		Init(LevelOff)
	})
	return &buf
}

func TestLevelOff_NoOutput(t *testing.T) {
	buf := captureOutput(t, LevelOff)
	Info("hidden %d", 1)
	Error(errors.New("boom"))
	if buf.Len() != 0 {
		t.Errorf("expected no output at level 0, got %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t, LevelLive)

	Info("info line")
	Decision("edge", "accepted")
	Verbose("verbose line")
	GPIO("WritePin", 18, true)

	got := buf.String()
	if !strings.Contains(got, "[INFO] info line") {
		t.Errorf("missing info line in %q", got)
	}
	if !strings.Contains(got, "[LIVE] Trigger edge: accepted") {
		t.Errorf("missing decision line in %q", got)
	}
	if strings.Contains(got, "verbose line") {
		t.Errorf("verbose line should be filtered at level 2: %q", got)
	}
	if strings.Contains(got, "[GPIO]") {
		t.Errorf("gpio line should be filtered at level 2: %q", got)
	}
}

func TestIsEnabled(t *testing.T) {
	captureOutput(t, LevelVerbose)
	if !IsEnabled(LevelInfo) || !IsEnabled(LevelVerbose) {
		t.Error("levels <= 3 should be enabled")
	}
	if IsEnabled(LevelTrace) {
		t.Error("trace should not be enabled at level 3")
	}
}

func TestFmt(t *testing.T) {
	captureOutput(t, LevelOff)
	if got := Fmt("x=%d", 1); got != "" {
		t.Errorf("Fmt at level 0 = %q, want empty", got)
	}
	Init(LevelInfo)
	if got := Fmt("x=%d", 1); got != "x=1" {
		t.Errorf("Fmt = %q, want x=1", got)
	}
}

func TestSetOutputAfterInit(t *testing.T) {
	captureOutput(t, LevelInfo)
	var second bytes.Buffer
	SetOutput(&second)
	Info("redirected")
	if !strings.Contains(second.String(), "redirected") {
		t.Errorf("expected redirected output, got %q", second.String())
	}
}
