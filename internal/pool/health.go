package pool

import (
	"context"
	"errors"
	"time"

	"foreman/internal/logging"
	"foreman/internal/worker"
)

// healthLoop sweeps the pool on a fixed interval until the context is
// cancelled.
func (p *Pool) healthLoop(ctx context.Context) {
	defer close(p.healthDone)
	ticker := time.NewTicker(p.healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// sweep checks every worker and replaces the ones found unhealthy. A worker
// is unhealthy when its process died, when it reported a transport fault,
// when it has been silent past the inactivity limit, or when an idle worker
// fails its heartbeat probe.
func (p *Pool) sweep(ctx context.Context) {
	p.mu.Lock()
	workers := append([]*worker.Worker(nil), p.workers...)
	p.mu.Unlock()

	for index, w := range workers {
		reason := p.diagnose(ctx, w)
		if reason == "" {
			continue
		}
		p.logger.Warn("replacing unhealthy worker",
			logging.String(logging.FieldWorkerID, w.ID()),
			logging.String("reason", reason))
		p.replace(ctx, index, w)
	}
}

func (p *Pool) diagnose(ctx context.Context, w *worker.Worker) string {
	if !w.Alive() {
		return "process exited"
	}
	if state := w.State(); state == worker.StateUnhealthy {
		return "transport fault"
	}
	if last := w.LastActivity(); !last.IsZero() && time.Since(last) > p.inactivityLimit {
		return "inactive past limit"
	}
	if p.probeHeartbeat && !w.Busy() {
		hbCtx, cancel := context.WithTimeout(ctx, p.heartbeatTimeout)
		err := w.Heartbeat(hbCtx)
		cancel()
		if err != nil {
			// A timeout against a worker that picked up a task between the
			// Busy check and the ping is not a health signal. A wedged
			// worker is caught by the inactivity limit instead.
			if errors.Is(err, worker.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) || w.Busy() {
				return ""
			}
			return "heartbeat failed: " + err.Error()
		}
	}
	return ""
}

// replace stops the unhealthy worker and starts a fresh one in the same
// registry slot with the same id, so role assignments carry over. A startup
// failure leaves the dead worker in place for the next sweep to retry.
func (p *Pool) replace(ctx context.Context, index int, old *worker.Worker) {
	stopCtx, cancel := context.WithTimeout(context.Background(), p.spec.ShutdownTimeout+time.Second)
	_ = old.Stop(stopCtx)
	cancel()

	fresh := worker.New(old.ID(), p.spec, p.launcher, p.logger)
	if err := fresh.Start(ctx); err != nil {
		p.logger.Error("replacement worker failed to start",
			logging.String(logging.FieldWorkerID, old.ID()),
			logging.Error(err))
		return
	}

	p.mu.Lock()
	if index < len(p.workers) && p.workers[index] == old {
		p.workers[index] = fresh
	}
	p.mu.Unlock()
	p.router.ReplaceAt(index, fresh)

	p.logger.Info("worker replaced", logging.String(logging.FieldWorkerID, fresh.ID()))
}
