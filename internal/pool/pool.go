package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"foreman/internal/config"
	"foreman/internal/logging"
	"foreman/internal/protocol"
	"foreman/internal/router"
	"foreman/internal/worker"
)

var (
	// ErrNoWorker means no idle, healthy worker could be found even after
	// the single retry.
	ErrNoWorker = errors.New("no worker available")
	// ErrNotStarted marks submissions against a pool that is not running.
	ErrNotStarted = errors.New("pool not started")
)

// ExecutionRecorder persists finished executions for observability. The
// sqlite store in internal/taskstats implements it.
type ExecutionRecorder interface {
	RecordExecution(ctx context.Context, rec ExecutionRecord) error
}

// ExecutionRecord describes one finished submission.
type ExecutionRecord struct {
	SubmissionID string
	Action       string
	Category     string
	Priority     string
	WorkerID     string
	Streaming    bool
	Outcome      string
	Duration     time.Duration
	StartedAt    time.Time
}

// Option adjusts pool construction, mostly for tests.
type Option func(*Pool)

// WithLauncher injects a custom subprocess launcher.
func WithLauncher(launcher worker.Launcher) Option {
	return func(p *Pool) {
		if launcher != nil {
			p.launcher = launcher
		}
	}
}

// WithRecorder attaches an execution recorder.
func WithRecorder(recorder ExecutionRecorder) Option {
	return func(p *Pool) { p.recorder = recorder }
}

// WithWorkerTimeouts overrides the per-worker startup, request, and shutdown
// bounds.
func WithWorkerTimeouts(startup, request, shutdown time.Duration) Option {
	return func(p *Pool) {
		p.spec.StartupTimeout = startup
		p.spec.RequestTimeout = request
		p.spec.ShutdownTimeout = shutdown
	}
}

// WithStartTimeout overrides the overall pool start bound.
func WithStartTimeout(d time.Duration) Option {
	return func(p *Pool) { p.startTimeout = d }
}

// WithHealthInterval overrides the health sweep interval.
func WithHealthInterval(d time.Duration) Option {
	return func(p *Pool) { p.healthInterval = d }
}

// WithInactivityLimit overrides the inactivity ceiling.
func WithInactivityLimit(d time.Duration) Option {
	return func(p *Pool) { p.inactivityLimit = d }
}

// WithRetryWait overrides the single-retry pause used when no worker is
// immediately available.
func WithRetryWait(d time.Duration) Option {
	return func(p *Pool) { p.retryWait = d }
}

// WithHeartbeatTimeout overrides the bound on health sweep heartbeats.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(p *Pool) { p.heartbeatTimeout = d }
}

// Pool owns the full worker set, starts it at boot, replaces unhealthy
// workers, and routes submissions through the router. It exposes the same
// request primitives as a single worker.
type Pool struct {
	cfg      *config.Config
	logger   *slog.Logger
	launcher worker.Launcher
	router   *router.Router
	recorder ExecutionRecorder

	spec             worker.Spec
	count            int
	startTimeout     time.Duration
	healthInterval   time.Duration
	inactivityLimit  time.Duration
	retryWait        time.Duration
	heartbeatTimeout time.Duration
	probeHeartbeat   bool

	mu      sync.Mutex
	workers []*worker.Worker
	started bool

	healthCancel context.CancelFunc
	healthDone   chan struct{}
}

// New constructs a pool from configuration. Nothing is launched until Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Pool {
	p := &Pool{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "pool"),
		launcher: worker.ExecLauncher{},
		router:   router.New(logger, cfg.Pool.StrictRoleIsolation),
		spec: worker.Spec{
			Command:         cfg.Worker.Command,
			Args:            append([]string(nil), cfg.Worker.Args...),
			Dir:             cfg.Paths.RuntimeDir,
			ToolPath:        cfg.Worker.ToolPath,
			LibraryPath:     cfg.Worker.LibraryPath,
			StartupTimeout:  time.Duration(cfg.Worker.StartupTimeoutSeconds) * time.Second,
			RequestTimeout:  time.Duration(cfg.Worker.RequestTimeoutSeconds) * time.Second,
			ShutdownTimeout: time.Duration(cfg.Worker.ShutdownTimeoutSeconds) * time.Second,
		},
		count:            cfg.Worker.Count,
		startTimeout:     time.Duration(cfg.Pool.StartTimeoutSeconds) * time.Second,
		healthInterval:   time.Duration(cfg.Pool.HealthIntervalSeconds) * time.Second,
		inactivityLimit:  time.Duration(cfg.Pool.InactivityLimitSeconds) * time.Second,
		retryWait:        time.Duration(cfg.Pool.RetryWaitMillis) * time.Millisecond,
		heartbeatTimeout: 5 * time.Second,
		probeHeartbeat:   cfg.Pool.HeartbeatOnHealthSweep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Router exposes the router, primarily for status reporting.
func (p *Pool) Router() *router.Router { return p.router }

// Start launches all workers concurrently and awaits every handshake within
// the overall start bound. A single failure aborts the whole start and tears
// down whatever already came up. After the workers are ready, roles are
// assigned and the health sweep begins.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("pool already started")
	}
	p.mu.Unlock()

	startCtx, cancel := context.WithTimeout(ctx, p.startTimeout)
	defer cancel()

	workers := make([]*worker.Worker, p.count)
	errs := make([]error, p.count)
	var wg sync.WaitGroup
	for i := 0; i < p.count; i++ {
		w := worker.New(fmt.Sprintf("worker-%d", i), p.spec, p.launcher, p.logger)
		workers[i] = w
		wg.Add(1)
		go func(i int, w *worker.Worker) {
			defer wg.Done()
			errs[i] = w.Start(startCtx)
		}(i, w)
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		for _, w := range workers {
			_ = w.Stop(context.Background())
		}
		return fmt.Errorf("start worker %d: %w", i, err)
	}

	p.mu.Lock()
	p.workers = workers
	p.started = true
	p.mu.Unlock()
	p.router.SetWorkers(workers)

	healthCtx, healthCancel := context.WithCancel(context.Background())
	p.healthCancel = healthCancel
	p.healthDone = make(chan struct{})
	go p.healthLoop(healthCtx)

	p.logger.Info("worker pool started", logging.Int("workers", p.count))
	return nil
}

// Stop halts the health sweep and shuts every worker down.
func (p *Pool) Stop(ctx context.Context) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	workers := append([]*worker.Worker(nil), p.workers...)
	p.mu.Unlock()

	if p.healthCancel != nil {
		p.healthCancel()
		<-p.healthDone
	}

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			_ = w.Stop(ctx)
		}(w)
	}
	wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) isStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// selectWithRetry asks the router once, and on a miss waits briefly and
// retries exactly once. The pause bridges the narrow race where every worker
// finishes a task just before the new request arrives.
func (p *Pool) selectWithRetry(ctx context.Context, cmd protocol.Command, priority router.Priority) *worker.Worker {
	if w := p.router.Select(cmd, priority); w != nil {
		return w
	}
	timer := time.NewTimer(p.retryWait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil
	}
	return p.router.Select(cmd, priority)
}

// Submit routes the command to a worker and performs a blocking round trip.
func (p *Pool) Submit(ctx context.Context, cmd protocol.Command, priority router.Priority) (*protocol.Response, error) {
	if !p.isStarted() {
		return nil, ErrNotStarted
	}
	w := p.selectWithRetry(ctx, cmd, priority)
	if w == nil {
		return nil, fmt.Errorf("%w: action %q", ErrNoWorker, cmd.Action)
	}

	started := time.Now()
	resp, err := w.SendCommand(ctx, cmd)
	p.record(ctx, cmd, priority, w, false, started, err)
	return resp, err
}

// SubmitStreaming routes the command and streams every response to the
// callback. Streaming callers are not expecting errors mid-stream, so when
// no worker is available the callback receives a single synthetic terminal
// error response instead.
func (p *Pool) SubmitStreaming(ctx context.Context, cmd protocol.Command, priority router.Priority, callback func(*protocol.Response)) error {
	if !p.isStarted() {
		return ErrNotStarted
	}
	w := p.selectWithRetry(ctx, cmd, priority)
	if w == nil {
		p.logger.Warn("no worker for streaming submission",
			logging.String(logging.FieldAction, cmd.Action))
		if callback != nil {
			callback(protocol.ErrorResponse("no worker available for " + cmd.Action))
		}
		return nil
	}

	started := time.Now()
	err := w.SendStreaming(ctx, cmd, callback)
	p.record(ctx, cmd, priority, w, true, started, err)
	return err
}

// Broadcast sends the command to every worker concurrently and returns the
// first response reporting success, or the first response received when none
// succeed, once all workers have replied or failed.
func (p *Pool) Broadcast(ctx context.Context, cmd protocol.Command) (*protocol.Response, error) {
	if !p.isStarted() {
		return nil, ErrNotStarted
	}
	workers := p.router.Workers()

	type result struct {
		resp *protocol.Response
		err  error
	}
	results := make(chan result, len(workers))
	for _, w := range workers {
		go func(w *worker.Worker) {
			resp, err := w.SendCommand(ctx, cmd)
			results <- result{resp: resp, err: err}
		}(w)
	}

	var firstResp *protocol.Response
	var firstErr error
	for range workers {
		res := <-results
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		if res.resp.Success() {
			return res.resp, nil
		}
		if firstResp == nil {
			firstResp = res.resp
		}
	}
	if firstResp != nil {
		return firstResp, nil
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, ErrNoWorker
}

func (p *Pool) record(ctx context.Context, cmd protocol.Command, priority router.Priority, w *worker.Worker, streaming bool, started time.Time, callErr error) {
	duration := time.Since(started)
	p.router.Metrics().Record(cmd.Action, duration)
	if p.recorder == nil {
		return
	}
	outcome := "success"
	if callErr != nil {
		outcome = "error"
		if errors.Is(callErr, worker.ErrTimeout) {
			outcome = "timeout"
		}
	}
	rec := ExecutionRecord{
		SubmissionID: uuid.NewString(),
		Action:       cmd.Action,
		Category:     router.Classify(cmd.Action).String(),
		Priority:     priority.String(),
		WorkerID:     w.ID(),
		Streaming:    streaming,
		Outcome:      outcome,
		Duration:     duration,
		StartedAt:    started,
	}
	if err := p.recorder.RecordExecution(ctx, rec); err != nil {
		p.logger.Warn("record execution failed", logging.Error(err))
	}
}

// WorkerStatus is a point-in-time view of one worker for status reporting.
type WorkerStatus struct {
	ID           string
	State        string
	Busy         bool
	Roles        []string
	LastActivity time.Time
}

// Status reports the pool's workers in registry order.
func (p *Pool) Status() []WorkerStatus {
	workers := p.router.Workers()
	out := make([]WorkerStatus, 0, len(workers))
	for _, w := range workers {
		roles := p.router.RolesOf(w.ID())
		names := make([]string, 0, len(roles))
		for _, role := range roles {
			names = append(names, role.String())
		}
		out = append(out, WorkerStatus{
			ID:           w.ID(),
			State:        w.State().String(),
			Busy:         w.Busy(),
			Roles:        names,
			LastActivity: w.LastActivity(),
		})
	}
	return out
}
