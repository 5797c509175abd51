package worker

import "errors"

var (
	// ErrStartup marks a failed spawn or handshake.
	ErrStartup = errors.New("worker startup failed")
	// ErrTransport marks a closed stream or failed write; the subprocess is
	// presumed dead.
	ErrTransport = errors.New("worker transport failure")
	// ErrTimeout marks a call that exceeded its response deadline.
	ErrTimeout = errors.New("worker timeout")
	// ErrProtocol marks a response line that could not be parsed.
	ErrProtocol = errors.New("worker protocol error")
	// ErrStopped marks a call against a worker that has been shut down.
	ErrStopped = errors.New("worker stopped")
)
