package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"
)

// Environment variables handed to every worker subprocess.
const (
	EnvUnbuffered  = "PYTHONUNBUFFERED"
	EnvWorkerID    = "FOREMAN_WORKER_ID"
	EnvToolPath    = "FOREMAN_TOOL_PATH"
	EnvLibraryPath = "FOREMAN_LIBRARY_PATH"
)

// Spec describes how to launch one worker subprocess.
type Spec struct {
	ID          string
	Command     string
	Args        []string
	Dir         string
	ToolPath    string
	LibraryPath string

	StartupTimeout  time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Process abstracts a running worker subprocess so tests can substitute an
// in-process fake for the real thing.
type Process interface {
	// Stdin is the worker's input stream.
	Stdin() io.Writer
	// Stdout is the worker's output stream, with stderr merged in.
	Stdout() io.Reader
	// CloseStdin closes the input stream, signalling end of commands.
	CloseStdin() error
	// Alive reports whether the subprocess is still running.
	Alive() bool
	// Done is closed once the subprocess has exited.
	Done() <-chan struct{}
	// Kill forcibly terminates the subprocess.
	Kill() error
	// PID returns the operating system process id, or 0 for fakes.
	PID() int
}

// Launcher spawns worker subprocesses. The default implementation execs the
// configured runtime; tests inject fakes.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Process, error)
}

// ExecLauncher launches real subprocesses via os/exec.
type ExecLauncher struct{}

// Launch starts the worker runtime with unbuffered I/O, identity and tool
// path environment, workdir set to the runtime location, and stderr merged
// into stdout so a single reader serves both streams.
func (ExecLauncher) Launch(ctx context.Context, spec Spec) (Process, error) {
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...) //nolint:gosec
	cmd.Dir = spec.Dir

	env := append(os.Environ(),
		EnvUnbuffered+"=1",
		EnvWorkerID+"="+spec.ID,
	)
	if spec.ToolPath != "" {
		env = append(env, EnvToolPath+"="+spec.ToolPath)
	}
	if spec.LibraryPath != "" {
		env = append(env, EnvLibraryPath+"="+spec.LibraryPath)
	}
	cmd.Env = env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker runtime: %w", err)
	}

	proc := &execProcess{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		done:   make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(proc.done)
	}()
	return proc, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	done   chan struct{}
}

func (p *execProcess) Stdin() io.Writer { return p.stdin }

func (p *execProcess) Stdout() io.Reader { return p.stdout }

func (p *execProcess) CloseStdin() error { return p.stdin.Close() }

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
	}
	if p.cmd.Process == nil {
		return false
	}
	// Signal 0 probes the process without delivering anything.
	return unix.Kill(p.cmd.Process.Pid, 0) == nil
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
