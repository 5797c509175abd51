// Package pool manages the fleet of worker subprocesses as one unit. It
// starts all workers concurrently at boot, keeps them healthy through a
// periodic sweep that replaces dead or wedged workers in place, and exposes
// the same request primitives as a single worker: blocking submission,
// streaming submission, and broadcast.
package pool
