package daemon_test

import (
	"context"
	"testing"
	"time"

	"foreman/internal/daemon"
	"foreman/internal/logging"
	"foreman/internal/pool"
	"foreman/internal/protocol"
	"foreman/internal/router"
	"foreman/internal/testsupport"
)

func newDaemon(t *testing.T, opts ...testsupport.ConfigOption) *daemon.Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	d, err := daemon.New(cfg, logging.NewNop(), daemon.WithPoolOptions(
		pool.WithLauncher(&testsupport.FakeLauncher{}),
		pool.WithWorkerTimeouts(time.Second, 2*time.Second, 100*time.Millisecond),
	))
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDaemonLifecycle(t *testing.T) {
	d := newDaemon(t, testsupport.WithWorkerCount(2))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !d.Running() {
		t.Fatal("daemon should report running")
	}

	status := d.Status(context.Background())
	if !status.Running || len(status.Workers) != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}

	d.Stop()
	if d.Running() {
		t.Fatal("daemon should report stopped")
	}
}

func TestDaemonSubmitRecordsStats(t *testing.T) {
	d := newDaemon(t, testsupport.WithWorkerCount(1))
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	resp, err := d.Submit(context.Background(), protocol.NewCommand("probe_media", nil), router.PriorityHigh)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !resp.Final() {
		t.Fatal("expected terminal response")
	}

	summaries, err := d.StatsSummaries(context.Background())
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Action != "probe_media" {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}

	recent, err := d.RecentExecutions(context.Background(), 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Outcome != "success" {
		t.Fatalf("unexpected recent executions: %+v", recent)
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(1))
	opts := daemon.WithPoolOptions(
		pool.WithLauncher(&testsupport.FakeLauncher{}),
		pool.WithWorkerTimeouts(time.Second, time.Second, 100*time.Millisecond),
	)

	first, err := daemon.New(cfg, logging.NewNop(), opts)
	if err != nil {
		t.Fatalf("new first daemon: %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("start first: %v", err)
	}

	second, err := daemon.New(cfg, logging.NewNop(), opts)
	if err != nil {
		t.Fatalf("new second daemon: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("second instance should fail to acquire the lock")
	}
}

func TestDaemonSubmitBeforeStart(t *testing.T) {
	d := newDaemon(t)
	if _, err := d.Submit(context.Background(), protocol.NewCommand("ping", nil), router.PriorityNormal); err == nil {
		t.Fatal("submit before start should fail")
	}
}
