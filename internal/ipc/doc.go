// Package ipc provides the JSON-RPC control channel between the foreman CLI
// and the daemon.
//
// The server listens on a Unix domain socket and exposes status, submission,
// ping, stats, and stop operations backed by the daemon. The client wraps
// the same operations for the CLI.
package ipc
