// Command foreman is the control CLI for the foreman daemon. It talks to
// foremand over the Unix domain control socket: status and stats reporting,
// one-off command submission, pool-wide pings, shutdown, and configuration
// management.
package main
