package worker

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"foreman/internal/logging"
	"foreman/internal/protocol"
)

// State tracks the worker lifecycle.
type State int32

const (
	StateNotStarted State = iota
	StateReady
	StateBusy
	StateUnhealthy
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateUnhealthy:
		return "unhealthy"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const maxLineBytes = 1 << 20

type readResult struct {
	line []byte
	at   time.Time
	err  error
}

// Worker owns exactly one subprocess and both of its streams. All calls
// against one worker are serialized: the protocol has no request ids, so two
// interleaved exchanges on the same pipe would corrupt responses between
// unrelated callers.
type Worker struct {
	id       string
	spec     Spec
	launcher Launcher
	logger   *slog.Logger

	// io guards the full write+read window of every call.
	io sync.Mutex

	mu    sync.Mutex
	state State
	proc  Process
	lines chan readResult

	lastActivity atomic.Int64
	busy         atomic.Bool
}

// New builds a worker for the given id and launch spec. The worker is not
// started; call Start before submitting commands.
func New(id string, spec Spec, launcher Launcher, logger *slog.Logger) *Worker {
	if launcher == nil {
		launcher = ExecLauncher{}
	}
	spec.ID = id
	w := &Worker{
		id:       id,
		spec:     spec,
		launcher: launcher,
		logger:   logging.NewComponentLogger(logger, "worker").With(logging.String(logging.FieldWorkerID, id)),
	}
	return w
}

// ID returns the worker's stable identity.
func (w *Worker) ID() string { return w.id }

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Busy reports whether a call currently holds the worker's I/O section.
func (w *Worker) Busy() bool { return w.busy.Load() }

// Reserve atomically claims an idle worker ahead of a call, so two
// simultaneous selections cannot pick the same worker and serialize behind
// its pipe. SendCommand and SendStreaming clear the claim when the call
// returns.
func (w *Worker) Reserve() bool {
	return w.busy.CompareAndSwap(false, true)
}

// LastActivity returns the time of the last successful read or write.
func (w *Worker) LastActivity() time.Time {
	nanos := w.lastActivity.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// Alive reports whether the subprocess is still running.
func (w *Worker) Alive() bool {
	w.mu.Lock()
	proc := w.proc
	w.mu.Unlock()
	return proc != nil && proc.Alive()
}

// Healthy reports whether the worker can accept or is performing work.
func (w *Worker) Healthy() bool {
	w.mu.Lock()
	state := w.state
	proc := w.proc
	w.mu.Unlock()
	if state != StateReady && state != StateBusy {
		return false
	}
	return proc != nil && proc.Alive()
}

// Start launches the subprocess and performs the ready handshake: the first
// output line must decode to a response with status "ready" within the
// startup timeout. Anything else is fatal and the worker stays unstartable.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateNotStarted {
		state := w.state
		w.mu.Unlock()
		return fmt.Errorf("%w: start from state %s", ErrStartup, state)
	}
	w.mu.Unlock()

	proc, err := w.launcher.Launch(ctx, w.spec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStartup, err)
	}

	lines := make(chan readResult, 16)
	go readLines(proc, lines)

	timeout := w.spec.StartupTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res, ok := <-lines:
		if !ok || res.err != nil {
			_ = proc.Kill()
			return fmt.Errorf("%w: output closed before handshake", ErrStartup)
		}
		resp, perr := protocol.DecodeResponse(res.line)
		if perr != nil {
			_ = proc.Kill()
			return fmt.Errorf("%w: malformed handshake line: %v", ErrStartup, perr)
		}
		if !resp.Ready() {
			_ = proc.Kill()
			return fmt.Errorf("%w: handshake status %q, want %q", ErrStartup, resp.Status, protocol.StatusReady)
		}
	case <-timer.C:
		_ = proc.Kill()
		return fmt.Errorf("%w: no handshake within %s", ErrStartup, timeout)
	case <-ctx.Done():
		_ = proc.Kill()
		return fmt.Errorf("%w: %v", ErrStartup, ctx.Err())
	}

	w.mu.Lock()
	w.proc = proc
	w.lines = lines
	w.state = StateReady
	w.mu.Unlock()
	w.touch()

	w.logger.Debug("worker ready", logging.Int("pid", proc.PID()))
	return nil
}

func readLines(proc Process, out chan<- readResult) {
	scanner := bufio.NewScanner(proc.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		out <- readResult{line: line, at: time.Now()}
	}
	if err := scanner.Err(); err != nil {
		out <- readResult{err: err, at: time.Now()}
	}
	close(out)
}

func (w *Worker) touch() {
	w.lastActivity.Store(time.Now().UnixNano())
}

func (w *Worker) markUnhealthy(reason string) {
	w.mu.Lock()
	if w.state == StateReady || w.state == StateBusy {
		w.state = StateUnhealthy
	}
	w.mu.Unlock()
	w.logger.Warn("worker unhealthy", logging.String("reason", reason))
}

func (w *Worker) beginCall() (Process, chan readResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case StateStopped:
		return nil, nil, ErrStopped
	case StateReady:
	default:
		return nil, nil, fmt.Errorf("%w: worker state %s", ErrTransport, w.state)
	}
	w.state = StateBusy
	return w.proc, w.lines, nil
}

func (w *Worker) endCall() {
	w.mu.Lock()
	if w.state == StateBusy {
		w.state = StateReady
	}
	w.mu.Unlock()
}

// SendCommand performs one blocking round trip: write the command as a
// single line, then read exactly one response line within the request
// timeout. Responses written before this call's command line are stale
// leftovers of a timed-out exchange and are discarded.
func (w *Worker) SendCommand(ctx context.Context, cmd protocol.Command) (*protocol.Response, error) {
	w.io.Lock()
	defer w.io.Unlock()
	w.busy.Store(true)
	defer w.busy.Store(false)

	proc, lines, err := w.beginCall()
	if err != nil {
		return nil, err
	}
	defer w.endCall()

	writeTime, err := w.writeCommand(proc, cmd)
	if err != nil {
		return nil, err
	}

	timeout := w.requestTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case res, ok := <-lines:
			resp, rerr := w.decodeResult(res, ok, writeTime)
			if rerr != nil {
				return nil, rerr
			}
			if resp == nil {
				continue // stale line from an earlier timed-out call
			}
			return resp, nil
		case <-timer.C:
			return nil, fmt.Errorf("%w: no response to %q within %s", ErrTimeout, cmd.Action, timeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// SendStreaming writes the command and delivers every parsed response line
// to callback, in order, until a final response arrives. Malformed lines are
// skipped so one garbled progress line cannot abort a multi-minute
// operation. An output stream that ends mid-exchange is logged as a warning
// rather than returned as an error: the caller already received whatever
// progress arrived.
func (w *Worker) SendStreaming(ctx context.Context, cmd protocol.Command, callback func(*protocol.Response)) error {
	w.io.Lock()
	defer w.io.Unlock()
	w.busy.Store(true)
	defer w.busy.Store(false)

	proc, lines, err := w.beginCall()
	if err != nil {
		return err
	}
	defer w.endCall()

	writeTime, err := w.writeCommand(proc, cmd)
	if err != nil {
		return err
	}

	timeout := w.requestTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case res, ok := <-lines:
			if !ok || res.err != nil {
				w.markUnhealthy("output stream closed during streaming call")
				w.logger.Warn("stream ended before final response",
					logging.String(logging.FieldAction, cmd.Action))
				return nil
			}
			if res.at.Before(writeTime) {
				w.logger.Debug("discarding stale response line")
				continue
			}
			w.touch()
			resp, perr := protocol.DecodeResponse(res.line)
			if perr != nil {
				w.logger.Debug("skipping malformed stream line", logging.Error(perr))
				continue
			}
			if callback != nil {
				callback(resp)
			}
			if resp.Final() {
				return nil
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(timeout)
		case <-timer.C:
			return fmt.Errorf("%w: no stream output for %q within %s", ErrTimeout, cmd.Action, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Worker) writeCommand(proc Process, cmd protocol.Command) (time.Time, error) {
	line, err := protocol.EncodeLine(cmd)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	writeTime := time.Now()
	if _, err := proc.Stdin().Write(line); err != nil {
		w.markUnhealthy("write failed: " + err.Error())
		return time.Time{}, fmt.Errorf("%w: write %q: %v", ErrTransport, cmd.Action, err)
	}
	w.touch()
	return writeTime, nil
}

func (w *Worker) decodeResult(res readResult, ok bool, writeTime time.Time) (*protocol.Response, error) {
	if !ok || res.err != nil {
		w.markUnhealthy("output stream closed")
		return nil, fmt.Errorf("%w: worker closed its output stream", ErrTransport)
	}
	if res.at.Before(writeTime) {
		w.logger.Debug("discarding stale response line")
		return nil, nil
	}
	w.touch()
	resp, perr := protocol.DecodeResponse(res.line)
	if perr != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, perr)
	}
	return resp, nil
}

func (w *Worker) requestTimeout() time.Duration {
	if w.spec.RequestTimeout > 0 {
		return w.spec.RequestTimeout
	}
	return 300 * time.Second
}

// Heartbeat performs the lightweight ping round trip used by the health
// monitor. Any failure or non-success status is a negative signal.
func (w *Worker) Heartbeat(ctx context.Context) error {
	resp, err := w.SendCommand(ctx, protocol.NewCommand(protocol.ActionPing, nil))
	if err != nil {
		return err
	}
	if !resp.Success() {
		return fmt.Errorf("heartbeat returned status %q", resp.Status)
	}
	return nil
}

// Stop shuts the worker down: best-effort shutdown command, close the input
// stream, wait for the subprocess to exit, then kill it if it lingers.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.state == StateStopped {
		w.mu.Unlock()
		return nil
	}
	proc := w.proc
	w.state = StateStopped
	w.mu.Unlock()

	if proc == nil {
		return nil
	}

	// Only send the shutdown command if no call holds the pipe; interleaving
	// a write into an in-flight exchange would corrupt it.
	if w.io.TryLock() {
		if line, err := protocol.EncodeLine(protocol.NewCommand(protocol.ActionShutdown, nil)); err == nil {
			_, _ = proc.Stdin().Write(line)
		}
		w.io.Unlock()
	}
	_ = proc.CloseStdin()

	timeout := w.spec.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-proc.Done():
	case <-timer.C:
		w.logger.Warn("worker did not exit, killing")
		_ = proc.Kill()
	case <-ctx.Done():
		_ = proc.Kill()
	}

	w.logger.Debug("worker stopped")
	return nil
}
