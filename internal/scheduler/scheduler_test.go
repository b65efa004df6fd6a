package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingRefresher struct {
	calls atomic.Int32
}

func (r *countingRefresher) Refresh(ctx context.Context) error {
	r.calls.Add(1)
	return nil
}

func TestSchedulerRunsRefresh(t *testing.T) {
	r := &countingRefresher{}
	s := New(100*time.Millisecond, r, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if r.calls.Load() >= 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected at least 2 refreshes, got %d", r.calls.Load())
}

func TestSchedulerDisabled(t *testing.T) {
	r := &countingRefresher{}
	s := New(0, r, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	time.Sleep(50 * time.Millisecond)
	if got := r.calls.Load(); got != 0 {
		t.Fatalf("expected no refreshes, got %d", got)
	}
}
