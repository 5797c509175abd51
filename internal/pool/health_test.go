package pool_test

import (
	"context"
	"testing"
	"time"

	"foreman/internal/config"
	"foreman/internal/pool"
	"foreman/internal/protocol"
	"foreman/internal/router"
	"foreman/internal/testsupport"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSweepReplacesDeadWorker(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(2))
	launcher := &testsupport.FakeLauncher{}
	p := startPool(t, cfg, launcher, pool.WithHealthInterval(20*time.Millisecond))

	launcher.Procs()[0].Exit()

	waitFor(t, "dead worker replacement", func() bool { return launcher.LaunchCount() == 3 })
	waitFor(t, "replacement to be ready", func() bool {
		for _, ws := range p.Status() {
			if ws.State != "ready" {
				return false
			}
		}
		return true
	})

	resp, err := p.Submit(context.Background(), protocol.NewCommand("ping", nil), router.PriorityImmediate)
	if err != nil {
		t.Fatalf("submit after replacement: %v", err)
	}
	if !resp.Success() {
		t.Fatalf("unexpected status %q", resp.Status)
	}
}

func TestSweepReplacesInactiveWorker(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(1), func(cfg *config.Config) {
		cfg.Pool.HeartbeatOnHealthSweep = false
	})
	launcher := &testsupport.FakeLauncher{}
	startPool(t, cfg, launcher,
		pool.WithHealthInterval(20*time.Millisecond),
		pool.WithInactivityLimit(50*time.Millisecond))

	waitFor(t, "inactive worker replacement", func() bool { return launcher.LaunchCount() > 1 })
}

func TestSweepReplacesWorkerFailingHeartbeat(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(1))
	launcher := &testsupport.FakeLauncher{
		OnCommand: func(proc *testsupport.FakeProcess, cmd map[string]any) {
			if cmd["action"] == "ping" {
				proc.WriteLine(`{"status":"error","message":"internal fault"}`)
				return
			}
			proc.WriteLine(`{"status":"complete"}`)
		},
	}
	startPool(t, cfg, launcher, pool.WithHealthInterval(20*time.Millisecond))

	waitFor(t, "heartbeat failure replacement", func() bool { return launcher.LaunchCount() > 1 })
}

func TestSweepLeavesBusyWorkersAlone(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(1))
	release := make(chan struct{})
	defer close(release)
	launcher := blockingLauncher(release)
	p := startPool(t, cfg, launcher, pool.WithHealthInterval(20*time.Millisecond))

	occupyAll(t, p, 1)
	time.Sleep(120 * time.Millisecond) // several sweeps

	if got := launcher.LaunchCount(); got != 1 {
		t.Fatalf("busy worker was replaced: %d launches", got)
	}
}

func TestSweepRetriesReplacementAfterStartFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(2))
	inner := &testsupport.FakeLauncher{}
	launcher := &flakyLauncher{inner: inner, failOn: map[int]bool{3: true}}
	p := startPool(t, cfg, launcher, pool.WithHealthInterval(20*time.Millisecond))

	inner.Procs()[0].Exit()

	// Attempt 3 fails, the next sweep retries with attempt 4.
	waitFor(t, "retried replacement", func() bool { return inner.LaunchCount() == 3 })
	waitFor(t, "all workers ready", func() bool {
		for _, ws := range p.Status() {
			if ws.State != "ready" {
				return false
			}
		}
		return true
	})
}
