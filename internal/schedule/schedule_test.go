package schedule

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNextRun(t *testing.T) {
	// Monday 2026-08-24 10:00 local.
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.Local)

	tests := []struct {
		name string
		cfg  Config
		want time.Time
		ok   bool
	}{
		{
			name: "later today",
			cfg:  Config{Time: "18:30", Days: []string{"mon"}},
			want: time.Date(2026, 8, 24, 18, 30, 0, 0, time.Local),
			ok:   true,
		},
		{
			name: "earlier today rolls to next week",
			cfg:  Config{Time: "06:00", Days: []string{"mon"}},
			want: time.Date(2026, 8, 31, 6, 0, 0, 0, time.Local),
			ok:   true,
		},
		{
			name: "next allowed weekday",
			cfg:  Config{Time: "06:00", Days: []string{"wed", "fri"}},
			want: time.Date(2026, 8, 26, 6, 0, 0, 0, time.Local),
			ok:   true,
		},
		{
			name: "case insensitive days",
			cfg:  Config{Time: "12:00", Days: []string{"MON"}},
			want: time.Date(2026, 8, 24, 12, 0, 0, 0, time.Local),
			ok:   true,
		},
		{
			name: "no days",
			cfg:  Config{Time: "06:00"},
			ok:   false,
		},
		{
			name: "bad clock",
			cfg:  Config{Time: "25:00", Days: []string{"mon"}},
			ok:   false,
		},
	}
	for _, tt := range tests {
		got, ok := NextRun(tt.cfg, now)
		if ok != tt.ok {
			t.Errorf("%s: ok = %v, want %v", tt.name, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("%s: next = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestUpdateValidation(t *testing.T) {
	s := New(func(ctx context.Context, kind string) {})
	defer s.Stop()

	bad := []Config{
		{Enabled: true, Kind: "incremental", Time: "6", Days: []string{"mon"}},
		{Enabled: true, Kind: "incremental", Time: "24:00", Days: []string{"mon"}},
		{Enabled: true, Kind: "incremental", Time: "06:00"},
		{Enabled: true, Kind: "incremental", Time: "06:00", Days: []string{"monday?"}},
		{Enabled: true, Kind: "weekly", Time: "06:00", Days: []string{"mon"}},
	}
	for i, cfg := range bad {
		if err := s.Update(context.Background(), cfg); err == nil {
			t.Errorf("case %d: config %+v accepted", i, cfg)
		}
	}

	// A disabled config skips validation entirely.
	if err := s.Update(context.Background(), Config{Enabled: false}); err != nil {
		t.Errorf("disabled config rejected: %v", err)
	}

	ok := Config{Enabled: true, Kind: "full", Time: "23:45", Days: []string{"sun"}}
	if err := s.Update(context.Background(), ok); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	st := s.Status()
	if st.NextRun == "" {
		t.Error("enabled schedule should report a next run")
	}
	if !strings.HasPrefix(st.NextRun, "2") {
		t.Errorf("next run = %q", st.NextRun)
	}
}

func TestUpdateDisableClearsPending(t *testing.T) {
	s := New(func(ctx context.Context, kind string) {})
	if err := s.Update(context.Background(), Config{
		Enabled: true, Kind: "incremental", Time: "06:00", Days: []string{"mon"},
	}); err != nil {
		t.Fatal(err)
	}
	if s.Status().NextRun == "" {
		t.Fatal("expected a pending job")
	}
	if err := s.Update(context.Background(), Config{Enabled: false}); err != nil {
		t.Fatal(err)
	}
	if s.Status().NextRun != "" {
		t.Error("disabling should drop the pending job")
	}
}

func TestRunNow(t *testing.T) {
	var fired atomic.Int32
	var gotKind atomic.Value
	s := New(func(ctx context.Context, kind string) {
		gotKind.Store(kind)
		fired.Add(1)
	})
	defer s.Stop()

	if err := s.Update(context.Background(), Config{
		Enabled: true, Kind: "full", Time: "06:00", Days: []string{"mon"},
	}); err != nil {
		t.Fatal(err)
	}

	s.RunNow(context.Background())
	deadline := time.Now().Add(time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fired.Load() != 1 {
		t.Fatalf("fired = %d, want 1", fired.Load())
	}
	if gotKind.Load() != "full" {
		t.Errorf("kind = %v, want full", gotKind.Load())
	}
	// The pending job survives a manual run.
	if s.Status().NextRun == "" {
		t.Error("pending job lost after RunNow")
	}
}

func TestRunNowDefaultsToIncremental(t *testing.T) {
	var gotKind atomic.Value
	done := make(chan struct{})
	s := New(func(ctx context.Context, kind string) {
		gotKind.Store(kind)
		close(done)
	})
	s.RunNow(context.Background())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner never fired")
	}
	if gotKind.Load() != "incremental" {
		t.Errorf("kind = %v, want incremental", gotKind.Load())
	}
}

func TestStop(t *testing.T) {
	s := New(func(ctx context.Context, kind string) {})
	if err := s.Update(context.Background(), Config{
		Enabled: true, Kind: "incremental", Time: "06:00", Days: []string{"mon"},
	}); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	if s.Status().NextRun != "" {
		t.Error("stopped scheduler still reports a pending job")
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]string{" FRI ", "mon", "bogus", "Sun", "mon"})
	want := []string{"sun", "mon", "mon", "fri"}
	if len(got) != len(want) {
		t.Fatalf("normalize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("normalize = %v, want %v", got, want)
		}
	}
}
