// Package protocol defines the newline-delimited JSON messages exchanged
// with worker subprocesses.
//
// Each line is one message. Commands carry a required action name plus opaque
// parameters; responses expose the reserved status, complete, progress,
// results, and message fields while keeping the raw payload available. The
// final-response rules live here so the worker's streaming reader and every
// test agree on when an exchange terminates.
//
// The protocol has no request ids: correctness depends on the per-worker
// exclusivity enforced by internal/worker.
package protocol
