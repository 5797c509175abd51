package pool_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"foreman/internal/config"
	"foreman/internal/logging"
	"foreman/internal/pool"
	"foreman/internal/protocol"
	"foreman/internal/router"
	"foreman/internal/testsupport"
	"foreman/internal/worker"
)

// memRecorder captures execution records in memory.
type memRecorder struct {
	mu   sync.Mutex
	recs []pool.ExecutionRecord
}

func (r *memRecorder) RecordExecution(_ context.Context, rec pool.ExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

func (r *memRecorder) records() []pool.ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pool.ExecutionRecord(nil), r.recs...)
}

func startPool(t *testing.T, cfg *config.Config, launcher worker.Launcher, opts ...pool.Option) *pool.Pool {
	t.Helper()
	base := []pool.Option{
		pool.WithLauncher(launcher),
		pool.WithWorkerTimeouts(time.Second, 2*time.Second, 100*time.Millisecond),
		pool.WithRetryWait(50 * time.Millisecond),
	}
	p := pool.New(cfg, logging.NewNop(), append(base, opts...)...)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start pool: %v", err)
	}
	t.Cleanup(func() { p.Stop(context.Background()) })
	return p
}

func TestStartLaunchesAllWorkers(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(5))
	launcher := &testsupport.FakeLauncher{}
	p := startPool(t, cfg, launcher)

	if got := launcher.LaunchCount(); got != 5 {
		t.Fatalf("launched %d workers, want 5", got)
	}
	status := p.Status()
	if len(status) != 5 {
		t.Fatalf("status reports %d workers, want 5", len(status))
	}
	for _, ws := range status {
		if ws.State != "ready" {
			t.Errorf("worker %s state %q, want ready", ws.ID, ws.State)
		}
	}
}

// delayLauncher holds back each handshake so startup latency is observable.
type delayLauncher struct {
	inner *testsupport.FakeLauncher
	delay time.Duration
}

func (l delayLauncher) Launch(ctx context.Context, spec worker.Spec) (worker.Process, error) {
	proc, err := l.inner.Launch(ctx, spec)
	if err != nil {
		return nil, err
	}
	fake := proc.(*testsupport.FakeProcess)
	go func() {
		time.Sleep(l.delay)
		fake.WriteLine(`{"status":"ready"}`)
	}()
	return proc, nil
}

func TestStartRunsHandshakesConcurrently(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(4))
	launcher := delayLauncher{
		inner: &testsupport.FakeLauncher{NoHandshake: true},
		delay: 150 * time.Millisecond,
	}
	started := time.Now()
	startPool(t, cfg, launcher)
	elapsed := time.Since(started)

	// Serial startup would take 4x the handshake delay.
	if elapsed > 450*time.Millisecond {
		t.Fatalf("pool start took %s, want roughly one handshake delay", elapsed)
	}
}

// flakyLauncher fails specific launch attempts by ordinal.
type flakyLauncher struct {
	inner  *testsupport.FakeLauncher
	failOn map[int]bool

	mu    sync.Mutex
	calls int
}

func (l *flakyLauncher) Launch(ctx context.Context, spec worker.Spec) (worker.Process, error) {
	l.mu.Lock()
	l.calls++
	fail := l.failOn[l.calls]
	l.mu.Unlock()
	if fail {
		return nil, errors.New("spawn refused")
	}
	return l.inner.Launch(ctx, spec)
}

func TestStartFailureTearsDownStartedWorkers(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(4))
	inner := &testsupport.FakeLauncher{}
	launcher := &flakyLauncher{inner: inner, failOn: map[int]bool{3: true}}

	p := pool.New(cfg, logging.NewNop(),
		pool.WithLauncher(launcher),
		pool.WithWorkerTimeouts(time.Second, time.Second, 100*time.Millisecond))
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("expected start to fail")
	}

	deadline := time.Now().Add(time.Second)
	for _, proc := range inner.Procs() {
		for proc.Alive() {
			if time.Now().After(deadline) {
				t.Fatal("worker still alive after failed pool start")
			}
			time.Sleep(time.Millisecond)
		}
	}
}

func TestSubmitRoundTripRecordsExecution(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(2))
	launcher := &testsupport.FakeLauncher{}
	recorder := &memRecorder{}
	p := startPool(t, cfg, launcher, pool.WithRecorder(recorder))

	resp, err := p.Submit(context.Background(), protocol.NewCommand("probe_media", map[string]any{"path": "/x.mkv"}), router.PriorityNormal)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !resp.Final() {
		t.Fatal("expected a terminal response")
	}

	recs := recorder.records()
	if len(recs) != 1 {
		t.Fatalf("recorded %d executions, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Action != "probe_media" || rec.Category != "file_inspection" || rec.Outcome != "success" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.SubmissionID == "" {
		t.Fatal("submission id missing")
	}
}

func TestSubmitNotStarted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p := pool.New(cfg, logging.NewNop(), pool.WithLauncher(&testsupport.FakeLauncher{}))
	if _, err := p.Submit(context.Background(), protocol.NewCommand("ping", nil), router.PriorityNormal); !errors.Is(err, pool.ErrNotStarted) {
		t.Fatalf("err = %v, want ErrNotStarted", err)
	}
}

func blockingLauncher(release chan struct{}) *testsupport.FakeLauncher {
	return &testsupport.FakeLauncher{
		OnCommand: func(proc *testsupport.FakeProcess, cmd map[string]any) {
			if cmd["action"] == "block" {
				<-release
			}
			proc.WriteLine(`{"status":"complete"}`)
		},
	}
}

// occupyAll blocks every worker in the pool on a pinned command.
func occupyAll(t *testing.T, p *pool.Pool, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		go func() {
			_, _ = p.Submit(context.Background(), protocol.NewCommand("block", nil), router.PriorityNormal)
		}()
	}
	deadline := time.Now().Add(time.Second)
	for {
		busy := 0
		for _, ws := range p.Status() {
			if ws.Busy {
				busy++
			}
		}
		if busy == n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d workers became busy", busy, n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSubmitReturnsErrNoWorkerAfterRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(1))
	release := make(chan struct{})
	defer close(release)
	p := startPool(t, cfg, blockingLauncher(release), pool.WithRetryWait(30*time.Millisecond))

	occupyAll(t, p, 1)

	_, err := p.Submit(context.Background(), protocol.NewCommand("mystery_op", nil), router.PriorityNormal)
	if !errors.Is(err, pool.ErrNoWorker) {
		t.Fatalf("err = %v, want ErrNoWorker", err)
	}
}

func TestSubmitRetrySucceedsAfterBriefWait(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(1))
	release := make(chan struct{})
	p := startPool(t, cfg, blockingLauncher(release), pool.WithRetryWait(200*time.Millisecond))

	occupyAll(t, p, 1)
	time.AfterFunc(30*time.Millisecond, func() { close(release) })

	resp, err := p.Submit(context.Background(), protocol.NewCommand("mystery_op", nil), router.PriorityNormal)
	if err != nil {
		t.Fatalf("submit should succeed after the retry wait: %v", err)
	}
	if !resp.Final() {
		t.Fatal("expected a terminal response")
	}
}

func TestSubmitStreamingNoWorkerDeliversSyntheticError(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(1))
	release := make(chan struct{})
	defer close(release)
	p := startPool(t, cfg, blockingLauncher(release), pool.WithRetryWait(20*time.Millisecond))

	occupyAll(t, p, 1)

	var got []*protocol.Response
	err := p.SubmitStreaming(context.Background(), protocol.NewCommand("encode", nil), router.PriorityLow, func(resp *protocol.Response) {
		got = append(got, resp)
	})
	if err != nil {
		t.Fatalf("streaming with no worker should not error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("callback fired %d times, want 1", len(got))
	}
	if got[0].Status != protocol.StatusError || !got[0].Final() {
		t.Fatalf("synthetic response = %+v, want terminal error", got[0])
	}
}

func TestSubmitStreamingDeliversProgressInOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(1))
	launcher := &testsupport.FakeLauncher{
		OnCommand: func(proc *testsupport.FakeProcess, cmd map[string]any) {
			proc.WriteLine(`{"status":"working","progress":25}`)
			proc.WriteLine(`{"status":"working","progress":75}`)
			proc.WriteLine(`{"status":"complete","results":{"frames":9000}}`)
		},
	}
	p := startPool(t, cfg, launcher)

	var statuses []string
	err := p.SubmitStreaming(context.Background(), protocol.NewCommand("encode", nil), router.PriorityNormal, func(resp *protocol.Response) {
		statuses = append(statuses, resp.Status)
	})
	if err != nil {
		t.Fatalf("streaming submit: %v", err)
	}
	want := []string{"working", "working", "complete"}
	if len(statuses) != len(want) {
		t.Fatalf("got %d responses, want %d", len(statuses), len(want))
	}
	for i, status := range want {
		if statuses[i] != status {
			t.Fatalf("response %d status %q, want %q", i, statuses[i], status)
		}
	}
}

func TestBroadcastReturnsFirstSuccess(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(3))
	var launcher *testsupport.FakeLauncher
	launcher = &testsupport.FakeLauncher{
		OnCommand: func(proc *testsupport.FakeProcess, cmd map[string]any) {
			for i, candidate := range launcher.Procs() {
				if candidate == proc && i == 1 {
					proc.WriteLine(`{"status":"success","version":"2.1"}`)
					return
				}
			}
			proc.WriteLine(`{"status":"error","message":"unsupported"}`)
		},
	}
	p := startPool(t, cfg, launcher)

	resp, err := p.Broadcast(context.Background(), protocol.NewCommand("version", nil))
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if resp.Status != protocol.StatusSuccess {
		t.Fatalf("broadcast returned status %q, want the successful reply", resp.Status)
	}
}

func TestBroadcastAllFailuresReturnsFirstResponse(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(2))
	launcher := &testsupport.FakeLauncher{
		OnCommand: func(proc *testsupport.FakeProcess, cmd map[string]any) {
			proc.WriteLine(`{"status":"error","message":"unsupported"}`)
		},
	}
	p := startPool(t, cfg, launcher)

	resp, err := p.Broadcast(context.Background(), protocol.NewCommand("capabilities", nil))
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if resp == nil || resp.Status != protocol.StatusError {
		t.Fatalf("broadcast = %+v, want the first error response", resp)
	}
}

func TestConcurrentSubmissionsRunInParallel(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(5))
	launcher := &testsupport.FakeLauncher{
		OnCommand: func(proc *testsupport.FakeProcess, cmd map[string]any) {
			time.Sleep(150 * time.Millisecond)
			proc.WriteLine(`{"status":"complete"}`)
		},
	}
	p := startPool(t, cfg, launcher)

	started := time.Now()
	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Submit(context.Background(), protocol.NewCommand("encode", nil), router.PriorityLow)
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(started)

	for i, err := range errs {
		if err != nil {
			t.Fatalf("submission %d: %v", i, err)
		}
	}
	// Serialized onto one worker the batch would take 5x the task duration.
	if elapsed > 500*time.Millisecond {
		t.Fatalf("5 concurrent submissions took %s, want parallel execution", elapsed)
	}
}
