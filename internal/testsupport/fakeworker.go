package testsupport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"foreman/internal/worker"
)

// FakeProcess is an in-process stand-in for a worker subprocess, wired with
// pipes so the Worker under test exercises its real read and write paths.
type FakeProcess struct {
	Spec worker.Spec

	stdinReader  *io.PipeReader
	stdinWriter  *io.PipeWriter
	stdoutReader *io.PipeReader
	stdoutWriter *io.PipeWriter

	done     chan struct{}
	exitOnce sync.Once
	writeMu  sync.Mutex
}

func newFakeProcess(spec worker.Spec) *FakeProcess {
	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()
	return &FakeProcess{
		Spec:         spec,
		stdinReader:  stdinReader,
		stdinWriter:  stdinWriter,
		stdoutReader: stdoutReader,
		stdoutWriter: stdoutWriter,
		done:         make(chan struct{}),
	}
}

func (p *FakeProcess) Stdin() io.Writer { return p.stdinWriter }

func (p *FakeProcess) Stdout() io.Reader { return p.stdoutReader }

func (p *FakeProcess) CloseStdin() error { return p.stdinWriter.Close() }

func (p *FakeProcess) Done() <-chan struct{} { return p.done }

func (p *FakeProcess) PID() int { return 0 }

func (p *FakeProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *FakeProcess) Kill() error {
	p.Exit()
	return nil
}

// Exit simulates subprocess death: the output stream closes and Alive turns
// false.
func (p *FakeProcess) Exit() {
	p.exitOnce.Do(func() {
		_ = p.stdoutWriter.Close()
		_ = p.stdinReader.Close()
		close(p.done)
	})
}

// WriteLine emits one protocol line on the fake's output stream.
func (p *FakeProcess) WriteLine(line string) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	select {
	case <-p.done:
		return
	default:
	}
	_, _ = p.stdoutWriter.Write([]byte(line + "\n"))
}

// FakeLauncher launches FakeProcesses and serves their command loops. The
// zero value responds to every command with a terminal echo response.
type FakeLauncher struct {
	// LaunchErr fails Launch outright.
	LaunchErr error
	// HandshakeLine overrides the ready line; set NoHandshake to suppress it.
	HandshakeLine string
	NoHandshake   bool
	// Mute drops all commands after the handshake (for timeout tests).
	Mute bool
	// OnCommand, when set, fully controls responses. Shutdown is handled
	// before it is consulted.
	OnCommand func(proc *FakeProcess, cmd map[string]any)

	mu    sync.Mutex
	procs []*FakeProcess
}

// Launch implements worker.Launcher.
func (l *FakeLauncher) Launch(_ context.Context, spec worker.Spec) (worker.Process, error) {
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	proc := newFakeProcess(spec)
	l.mu.Lock()
	l.procs = append(l.procs, proc)
	l.mu.Unlock()
	go l.serve(proc)
	return proc, nil
}

// Procs returns every process launched so far.
func (l *FakeLauncher) Procs() []*FakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*FakeProcess(nil), l.procs...)
}

// LaunchCount returns how many processes have been launched.
func (l *FakeLauncher) LaunchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}

func (l *FakeLauncher) serve(proc *FakeProcess) {
	if !l.NoHandshake {
		line := l.HandshakeLine
		if line == "" {
			line = `{"status":"ready"}`
		}
		proc.WriteLine(line)
	}

	scanner := bufio.NewScanner(proc.stdinReader)
	for scanner.Scan() {
		var cmd map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			continue
		}
		if cmd["action"] == "shutdown" {
			proc.Exit()
			return
		}
		if l.Mute {
			continue
		}
		if l.OnCommand != nil {
			l.OnCommand(proc, cmd)
			continue
		}
		echoCommand(proc, cmd)
	}
	proc.Exit()
}

func echoCommand(proc *FakeProcess, cmd map[string]any) {
	payload, err := json.Marshal(map[string]any{"status": "complete", "echo": cmd})
	if err != nil {
		return
	}
	proc.WriteLine(string(payload))
}
