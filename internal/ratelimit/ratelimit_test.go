package ratelimit

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"findit/internal/apperrors"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{MaxRequestsPerWindow: 0, WindowDuration: time.Second}); err == nil {
		t.Fatalf("expected error for zero max requests")
	}
	if _, err := New(Config{MaxRequestsPerWindow: 5, WindowDuration: 0}); err == nil {
		t.Fatalf("expected error for zero window duration")
	}
}

func TestAcquireAdmitsWithinWindow(t *testing.T) {
	rl, err := New(DefaultConfig(5, time.Second))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < 5; i++ {
		if err := rl.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
}

// TestAcquireReleasesInFixedWindowBatches exercises §8 scenario 5's worked
// example at a scaled-down window: concurrent acquires beyond the window's
// cap release in batches at each window boundary rather than trickling in
// one at a time.
func TestAcquireReleasesInFixedWindowBatches(t *testing.T) {
	cfg := DefaultConfig(2, 100*time.Millisecond)
	rl, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	const n = 5
	start := time.Now()
	elapsed := make([]time.Duration, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			if err := rl.Acquire(context.Background()); err != nil {
				t.Errorf("acquire %d: %v", i, err)
				return
			}
			elapsed[i] = time.Since(start)
		}()
	}
	wg.Wait()

	sort.Slice(elapsed, func(a, b int) bool { return elapsed[a] < elapsed[b] })

	for i := 0; i < 2; i++ {
		if elapsed[i] >= cfg.WindowDuration {
			t.Fatalf("expected call %d admitted in the first window, took %s", i, elapsed[i])
		}
	}
	for i := 2; i < 4; i++ {
		if elapsed[i] < cfg.WindowDuration {
			t.Fatalf("expected call %d to wait for the second window, took %s", i, elapsed[i])
		}
	}
	if elapsed[4] < 2*cfg.WindowDuration {
		t.Fatalf("expected the final call to wait for the third window, took %s", elapsed[4])
	}
}

func TestReportRateLimitForcesBackoffThenDoubles(t *testing.T) {
	cfg := DefaultConfig(100, time.Second)
	cfg.InitialBackoff = 20 * time.Millisecond
	cfg.MaxBackoff = 200 * time.Millisecond
	cfg.BackoffMultiplier = 2
	rl, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	rl.ReportRateLimit()
	start := time.Now()
	if err := rl.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed < cfg.InitialBackoff {
		t.Fatalf("expected acquire to wait at least %s, waited %s", cfg.InitialBackoff, elapsed)
	}

	if rl.backoff != 40*time.Millisecond {
		t.Fatalf("expected backoff to double to 40ms, got %s", rl.backoff)
	}
}

func TestReportSuccessResetsBackoff(t *testing.T) {
	cfg := DefaultConfig(100, time.Second)
	cfg.InitialBackoff = 20 * time.Millisecond
	rl, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	rl.ReportRateLimit()
	rl.ReportSuccess()
	if rl.backoff != cfg.InitialBackoff {
		t.Fatalf("expected backoff reset to initial, got %s", rl.backoff)
	}
}

func TestNetworkMonitorWaitReturnsImmediatelyWhenNotDisconnected(t *testing.T) {
	m := NewNetworkMonitor()
	if err := m.WaitForConnection(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("expected no wait in unknown state, got %v", err)
	}
	m.SetStatus(StatusConnected)
	if err := m.WaitForConnection(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("expected no wait when connected, got %v", err)
	}
}

func TestNetworkMonitorWaitTimesOutWhenDisconnected(t *testing.T) {
	m := NewNetworkMonitor()
	m.SetStatus(StatusDisconnected)
	err := m.WaitForConnection(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, apperrors.ErrNetworkTimeout) {
		t.Fatalf("expected ErrNetworkTimeout, got %v", err)
	}
}

func TestNetworkMonitorReleasesAllWaitersOnReconnect(t *testing.T) {
	m := NewNetworkMonitor()
	m.SetStatus(StatusDisconnected)

	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			results <- m.WaitForConnection(context.Background(), 2*time.Second)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	m.SetStatus(StatusConnected)

	for i := 0; i < 3; i++ {
		select {
		case err := <-results:
			if err != nil {
				t.Fatalf("waiter %d: unexpected error %v", i, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("waiter %d never released", i)
		}
	}
}

func TestNetworkMonitorCancellation(t *testing.T) {
	m := NewNetworkMonitor()
	m.SetStatus(StatusDisconnected)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.WaitForConnection(ctx, time.Second)
	if !errors.Is(err, apperrors.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}
