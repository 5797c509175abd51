// Package config loads, normalizes, and validates Foreman's TOML
// configuration.
//
// It owns the default values, tilde expansion for path fields, and the
// derived locations for the IPC socket, lock file, and stats database. Load
// falls back to built-in defaults when no config file exists so the daemon
// can start with zero configuration.
package config
