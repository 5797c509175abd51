// Package bridge runs a single worker subprocess without pooling or routing.
// It offers the same handshake, round-trip, and streaming contract as the
// pool, for deployments that only need one worker.
package bridge

import (
	"context"
	"log/slog"
	"time"

	"foreman/internal/config"
	"foreman/internal/logging"
	"foreman/internal/protocol"
	"foreman/internal/worker"
)

// Option adjusts bridge construction.
type Option func(*Bridge)

// WithLauncher injects a custom subprocess launcher.
func WithLauncher(launcher worker.Launcher) Option {
	return func(b *Bridge) {
		if launcher != nil {
			b.launcher = launcher
		}
	}
}

// WithWorkerTimeouts overrides the startup, request, and shutdown bounds.
func WithWorkerTimeouts(startup, request, shutdown time.Duration) Option {
	return func(b *Bridge) {
		b.spec.StartupTimeout = startup
		b.spec.RequestTimeout = request
		b.spec.ShutdownTimeout = shutdown
	}
}

// Bridge owns exactly one worker. Round-trip and streaming calls are
// serialized by the worker itself; the bridge adds no scheduling of its own.
type Bridge struct {
	logger   *slog.Logger
	launcher worker.Launcher
	spec     worker.Spec
	worker   *worker.Worker
}

// New constructs a bridge from configuration. Nothing is launched until
// Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Bridge {
	b := &Bridge{
		logger:   logging.NewComponentLogger(logger, "bridge"),
		launcher: worker.ExecLauncher{},
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
	}
	for _, opt := range opts {
		opt(b)
	}
	b.worker = worker.New("worker-0", b.spec, b.launcher, b.logger)
	return b
}

// Start launches the worker and performs the ready handshake.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.worker.Start(ctx); err != nil {
		return err
	}
	b.logger.Info("bridge started")
	return nil
}

// Stop shuts the worker down.
func (b *Bridge) Stop(ctx context.Context) {
	_ = b.worker.Stop(ctx)
	b.logger.Info("bridge stopped")
}

// Submit performs one blocking round trip against the worker.
func (b *Bridge) Submit(ctx context.Context, cmd protocol.Command) (*protocol.Response, error) {
	return b.worker.SendCommand(ctx, cmd)
}

// SubmitStreaming streams every response line to the callback until a final
// response arrives.
func (b *Bridge) SubmitStreaming(ctx context.Context, cmd protocol.Command, callback func(*protocol.Response)) error {
	return b.worker.SendStreaming(ctx, cmd, callback)
}

// Heartbeat probes the worker with a ping round trip.
func (b *Bridge) Heartbeat(ctx context.Context) error {
	return b.worker.Heartbeat(ctx)
}

// Healthy reports whether the worker can accept work.
func (b *Bridge) Healthy() bool { return b.worker.Healthy() }
