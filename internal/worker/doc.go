// Package worker manages one external subprocess and its two byte streams.
//
// A Worker launches the configured runtime with unbuffered I/O and identity
// environment, requires a ready handshake on the first output line, and then
// exposes blocking round-trip and streaming request operations over the
// shared pipe. A single mutex covers the full write+read window of every
// call: the wire protocol has no request ids, so exclusivity is the
// correctness invariant.
//
// The Launcher seam substitutes in-process fakes for real subprocesses in
// tests.
package worker
