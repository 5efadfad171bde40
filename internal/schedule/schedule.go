// Package schedule triggers syncs at a configured time of day on a
// configured set of weekdays. There is at most one pending job; updating
// the config replaces it.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Config describes the schedule.
type Config struct {
	Enabled bool     `json:"enabled"`
	Kind    string   `json:"sync_type"` // "full" or "incremental"
	Time    string   `json:"time"`      // "HH:MM", local time
	Days    []string `json:"days"`      // "mon".."sun"
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// Runner executes one scheduled sync of the given kind.
type Runner func(ctx context.Context, kind string)

// Scheduler owns the single pending job.
type Scheduler struct {
	run Runner

	mu    sync.Mutex
	cfg   Config
	timer *time.Timer
	next  time.Time
}

func New(run Runner) *Scheduler {
	return &Scheduler{run: run}
}

// Update replaces the schedule. Disabling cancels any pending job.
func (s *Scheduler) Update(ctx context.Context, cfg Config) error {
	if cfg.Enabled {
		if _, _, err := parseClock(cfg.Time); err != nil {
			return err
		}
		if len(cfg.Days) == 0 {
			return fmt.Errorf("schedule enabled with no days")
		}
		for _, d := range cfg.Days {
			if _, ok := weekdays[strings.ToLower(d)]; !ok {
				return fmt.Errorf("unknown day %q", d)
			}
		}
		if cfg.Kind != "full" && cfg.Kind != "incremental" {
			return fmt.Errorf("unknown sync type %q", cfg.Kind)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.cfg = cfg
	s.next = time.Time{}
	if cfg.Enabled {
		s.armLocked(ctx, time.Now())
	}
	return nil
}

// armLocked computes the next run time and sets the timer. Caller holds
// the mutex.
func (s *Scheduler) armLocked(ctx context.Context, now time.Time) {
	next, ok := NextRun(s.cfg, now)
	if !ok {
		return
	}
	s.next = next
	kind := s.cfg.Kind
	s.timer = time.AfterFunc(next.Sub(now), func() {
		slog.Info("scheduled sync firing", "type", kind)
		s.run(ctx, kind)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.cfg.Enabled {
			s.armLocked(ctx, time.Now())
		}
	})
	slog.Info("scheduled sync armed", "type", kind, "at", next.Format(time.RFC1123))
}

// RunNow fires the configured sync immediately without disturbing the
// pending job.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.mu.Lock()
	kind := s.cfg.Kind
	s.mu.Unlock()
	if kind == "" {
		kind = "incremental"
	}
	go s.run(ctx, kind)
}

// Status reports the schedule and the next fire time.
type Status struct {
	Config  Config `json:"config"`
	NextRun string `json:"next_run,omitempty"`
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Config: s.cfg}
	if !s.next.IsZero() {
		st.NextRun = s.next.Format(time.RFC3339)
	}
	return st
}

// Stop cancels any pending job.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.next = time.Time{}
}

// NextRun computes the first instant after now matching the schedule.
func NextRun(cfg Config, now time.Time) (time.Time, bool) {
	hour, minute, err := parseClock(cfg.Time)
	if err != nil || len(cfg.Days) == 0 {
		return time.Time{}, false
	}
	allowed := make(map[time.Weekday]bool)
	for _, d := range cfg.Days {
		if wd, ok := weekdays[strings.ToLower(d)]; ok {
			allowed[wd] = true
		}
	}
	for offset := 0; offset <= 7; offset++ {
		day := now.AddDate(0, 0, offset)
		candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
		if !candidate.After(now) {
			continue
		}
		if allowed[candidate.Weekday()] {
			return candidate, true
		}
	}
	return time.Time{}, false
}

func parseClock(v string) (hour, minute int, err error) {
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", v)
	}
	if _, err := fmt.Sscanf(v, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", v)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", v)
	}
	return hour, minute, nil
}

// Normalize lowercases and validates a day list for storage.
func Normalize(days []string) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		d = strings.ToLower(strings.TrimSpace(d))
		if _, ok := weekdays[d]; ok {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return weekdays[out[i]] < weekdays[out[j]] })
	return out
}
