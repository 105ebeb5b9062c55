package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var start = time.Date(2019, 8, 1, 10, 0, 0, 0, time.UTC)

func TestNew_Disabled(t *testing.T) {
	if _, err := New(Config{}, start); !errors.Is(err, ErrDisabled) {
		t.Errorf("New(empty) err = %v, want ErrDisabled", err)
	}
}

func TestNew_Negative(t *testing.T) {
	if _, err := New(Config{Due: -time.Second, Period: time.Second}, start); err == nil {
		t.Error("expected error for negative due")
	}
}

func TestInterval_DueThenPeriod(t *testing.T) {
	s, err := New(Config{Due: 10 * time.Second, Period: time.Minute}, start)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	first := s.Next(start)
	if want := start.Add(10 * time.Second); !first.Equal(want) {
		t.Fatalf("first = %v, want %v", first, want)
	}
	second := s.Next(first)
	if want := first.Add(time.Minute); !second.Equal(want) {
		t.Errorf("second = %v, want %v", second, want)
	}
	// Missed ticks are skipped rather than replayed.
	late := s.Next(first.Add(150 * time.Second))
	if want := first.Add(3 * time.Minute); !late.Equal(want) {
		t.Errorf("after a long gap = %v, want %v", late, want)
	}
}

func TestInterval_ZeroPeriodFiresOnce(t *testing.T) {
	s, _ := New(Config{Due: time.Second}, start)
	first := s.Next(start)
	if first.IsZero() {
		t.Fatal("expected one firing")
	}
	if next := s.Next(first); !next.IsZero() {
		t.Errorf("Next after single shot = %v, want zero", next)
	}
}

func TestInterval_ZeroDueFiresImmediately(t *testing.T) {
	s, _ := New(Config{Period: time.Minute}, start)
	if got := s.Next(start.Add(-time.Nanosecond)); !got.Equal(start) {
		t.Errorf("Next = %v, want %v", got, start)
	}
}

func TestParseCron(t *testing.T) {
	s, err := ParseCron("*/5 * * * *", "")
	if err != nil {
		t.Fatalf("ParseCron: %v", err)
	}
	got := s.Next(start.Add(time.Minute))
	if want := start.Add(5 * time.Minute); !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
}

func TestParseCron_SecondsAndDescriptor(t *testing.T) {
	s, err := ParseCron("30 * * * * *", "UTC")
	if err != nil {
		t.Fatalf("ParseCron with seconds: %v", err)
	}
	if got, want := s.Next(start), start.Add(30*time.Second); !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
	if _, err := ParseCron("@every 15s", ""); err != nil {
		t.Errorf("ParseCron(@every): %v", err)
	}
}

func TestParseCron_Invalid(t *testing.T) {
	if _, err := ParseCron("not a cron", ""); err == nil {
		t.Error("expected parse error")
	}
	if _, err := ParseCron("* * * * *", "Mars/Olympus"); err == nil {
		t.Error("expected timezone error")
	}
}

func TestNew_ExpressionWins(t *testing.T) {
	s, err := New(Config{Due: time.Hour, Expression: "@every 1m"}, start)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := s.(*Interval); ok {
		t.Error("expression should take precedence over due/period")
	}
}

func TestRun_FiresAndStops(t *testing.T) {
	s, _ := New(Config{Due: time.Millisecond, Period: 5 * time.Millisecond}, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	var fired atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, s, func(time.Time) {
			if fired.Add(1) == 3 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	if n := fired.Load(); n < 3 {
		t.Errorf("fired %d times, want >= 3", n)
	}
}

func TestRun_SingleShotReturns(t *testing.T) {
	s, _ := New(Config{Due: 50 * time.Millisecond}, time.Now())
	var fired atomic.Int32
	if err := Run(context.Background(), s, func(time.Time) { fired.Add(1) }); err != nil {
		t.Errorf("Run = %v, want nil once exhausted", err)
	}
	if n := fired.Load(); n != 1 {
		t.Errorf("fired %d times, want 1", n)
	}
}

func TestRun_SlowFireSkipsMissedTicks(t *testing.T) {
	s, _ := New(Config{Period: 10 * time.Millisecond}, time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	var fires []time.Time
	_ = Run(ctx, s, func(time.Time) {
		fires = append(fires, time.Now())
		if len(fires) == 1 {
			time.Sleep(60 * time.Millisecond) // stall for several periods
		}
	})

	if len(fires) < 3 {
		t.Fatalf("fired %d times, want >= 3", len(fires))
	}
	for i := 2; i < len(fires); i++ {
		if gap := fires[i].Sub(fires[i-1]); gap < 2*time.Millisecond {
			t.Errorf("fires %d and %d only %v apart: missed ticks were replayed", i-1, i, gap)
		}
	}
	// The first fire after the stall must not be immediate either.
	if gap := fires[1].Sub(fires[0]); gap < 60*time.Millisecond+2*time.Millisecond {
		t.Errorf("first fire after stall came %v after the stalled one, want a fresh tick", gap)
	}
}
