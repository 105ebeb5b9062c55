package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cjeanneret/snapgate/internal/debug"
)

// Schedule yields the next firing time strictly after the given instant.
// A zero time means the schedule is exhausted.
type Schedule interface {
	Next(after time.Time) time.Time
}

// Config describes a capture cadence: either an initial delay followed by a
// repeat period, or a cron expression (which takes precedence).
type Config struct {
	Due        time.Duration
	Period     time.Duration
	Expression string
	Timezone   string
}

// Enabled reports whether the config describes any cadence at all.
func (c Config) Enabled() bool {
	return c.Expression != "" || c.Due > 0 || c.Period > 0
}

// ErrDisabled is returned by New when no cadence is configured.
var ErrDisabled = errors.New("schedule disabled")

// New builds a schedule anchored at start.
func New(cfg Config, start time.Time) (Schedule, error) {
	if cfg.Expression != "" {
		return ParseCron(cfg.Expression, cfg.Timezone)
	}
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	if cfg.Due < 0 || cfg.Period < 0 {
		return nil, fmt.Errorf("due and period must be >= 0 (due=%v, period=%v)", cfg.Due, cfg.Period)
	}
	return &Interval{first: start.Add(cfg.Due), period: cfg.Period}, nil
}

// Interval fires once at start+due and then every period. A zero period
// fires only once.
type Interval struct {
	first  time.Time
	period time.Duration
}

func (i *Interval) Next(after time.Time) time.Time {
	if after.Before(i.first) {
		return i.first
	}
	if i.period <= 0 {
		return time.Time{}
	}
	n := after.Sub(i.first)/i.period + 1
	return i.first.Add(n * i.period)
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron parses a cron expression ("*/5 * * * *", "0 */10 * * * *",
// "@every 30s") evaluated in timezone (UTC when empty).
func ParseCron(expression, timezone string) (Schedule, error) {
	sched, err := cronParser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse cron: %w", err)
	}
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	return &cronSchedule{sched: sched, loc: loc}, nil
}

type cronSchedule struct {
	sched cron.Schedule
	loc   *time.Location
}

func (s *cronSchedule) Next(after time.Time) time.Time {
	return s.sched.Next(after.In(s.loc))
}

// Run waits for each firing time of s and calls fire with the wall-clock
// time of the tick. It returns when ctx is cancelled or s is exhausted.
func Run(ctx context.Context, s Schedule, fire func(time.Time)) error {
	next := s.Next(time.Now())
	for !next.IsZero() {
		debug.Verbose("Timer: next capture at %s", next.Format(time.RFC3339))

		t := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case now := <-t.C:
			fire(now)
		}
		// Ticks missed while fire ran are skipped, not replayed.
		next = s.Next(time.Now())
	}
	debug.Verbose("Timer: schedule exhausted")
	return nil
}
