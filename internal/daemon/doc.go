// Package daemon coordinates the long-running foreman process.
//
// It wires configuration, the worker pool, and the task statistics store
// into a single lifecycle with flock-based locking to prevent multiple
// instances. Individual concerns live in their own packages; the daemon
// focuses on startup, shutdown, and high level coordination for the IPC
// layer.
package daemon
