package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"foreman/internal/config"
	"foreman/internal/logging"
	"foreman/internal/pool"
	"foreman/internal/protocol"
	"foreman/internal/router"
	"foreman/internal/taskstats"
)

// Daemon owns the worker pool, the stats store, and the single-instance
// lock, and exposes the operations the IPC layer serves.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	pool    *pool.Pool
	stats   *taskstats.Store
	logPath string

	lockPath string
	lock     *flock.Flock

	poolOpts []pool.Option

	running   atomic.Bool
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running     bool
	PID         int
	StartedAt   time.Time
	LockPath    string
	StatsDBPath string
	Workers     []pool.WorkerStatus
	Metrics     []router.ActionStats
}

// Option adjusts daemon construction.
type Option func(*Daemon)

// WithPoolOptions forwards options to the pool the daemon builds at start.
func WithPoolOptions(opts ...pool.Option) Option {
	return func(d *Daemon) { d.poolOpts = append(d.poolOpts, opts...) }
}

// New wires a daemon from configuration. Nothing runs until Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		logPath:  cfg.LogPath(),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the single-instance lock, opens the stats store, and boots
// the worker pool.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another foreman daemon instance is already running")
	}

	poolOpts := append([]pool.Option(nil), d.poolOpts...)
	if d.cfg.Stats.Enabled {
		store, serr := taskstats.Open(d.cfg)
		if serr != nil {
			_ = d.lock.Unlock()
			return fmt.Errorf("open stats store: %w", serr)
		}
		d.stats = store
		poolOpts = append(poolOpts, pool.WithRecorder(store))
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.pool = pool.New(d.cfg, d.logger, poolOpts...)
	if err := d.pool.Start(d.ctx); err != nil {
		d.teardown()
		return fmt.Errorf("start pool: %w", err)
	}

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("foreman daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("workers", d.cfg.Worker.Count))
	return nil
}

// Stop shuts the pool down and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.pool != nil {
		d.pool.Stop(context.Background())
	}
	d.teardown()
	d.running.Store(false)
	d.logger.Info("foreman daemon stopped")
}

func (d *Daemon) teardown() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	if d.stats != nil {
		_ = d.stats.Close()
		d.stats = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Close releases every resource held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Running reports whether the daemon has started.
func (d *Daemon) Running() bool { return d.running.Load() }

// LogPath returns the daemon log file location.
func (d *Daemon) LogPath() string { return d.logPath }

// Status aggregates runtime information for status reporting.
func (d *Daemon) Status(context.Context) Status {
	status := Status{
		Running:     d.running.Load(),
		PID:         os.Getpid(),
		LockPath:    d.lockPath,
		StatsDBPath: d.cfg.StatsDBPath(),
	}
	if !status.Running {
		return status
	}
	status.StartedAt = d.startedAt
	status.Workers = d.pool.Status()
	status.Metrics = d.pool.Router().Metrics().Snapshot()
	return status
}

// Submit routes one command through the pool and waits for its terminal
// response.
func (d *Daemon) Submit(ctx context.Context, cmd protocol.Command, priority router.Priority) (*protocol.Response, error) {
	if !d.running.Load() {
		return nil, pool.ErrNotStarted
	}
	return d.pool.Submit(ctx, cmd, priority)
}

// SubmitStreaming routes one streaming command through the pool.
func (d *Daemon) SubmitStreaming(ctx context.Context, cmd protocol.Command, priority router.Priority, callback func(*protocol.Response)) error {
	if !d.running.Load() {
		return pool.ErrNotStarted
	}
	return d.pool.SubmitStreaming(ctx, cmd, priority, callback)
}

// Broadcast sends one command to every worker.
func (d *Daemon) Broadcast(ctx context.Context, cmd protocol.Command) (*protocol.Response, error) {
	if !d.running.Load() {
		return nil, pool.ErrNotStarted
	}
	return d.pool.Broadcast(ctx, cmd)
}

// StatsSummaries returns per-action execution history.
func (d *Daemon) StatsSummaries(ctx context.Context) ([]taskstats.ActionSummary, error) {
	if d.stats == nil {
		return nil, errors.New("stats store unavailable")
	}
	return d.stats.Summaries(ctx)
}

// RecentExecutions returns the newest recorded executions.
func (d *Daemon) RecentExecutions(ctx context.Context, limit int) ([]pool.ExecutionRecord, error) {
	if d.stats == nil {
		return nil, errors.New("stats store unavailable")
	}
	return d.stats.Recent(ctx, limit)
}
