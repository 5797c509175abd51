// Package router classifies actions into task categories and selects a
// worker for each command.
//
// Classification is a fixed exact-match table from action name to category;
// categories map to preferred worker roles. Selection prefers a worker whose
// assigned role matches, then falls back to round-robin over the
// general-purpose pool, with quick operations skipping the wait entirely so
// status probes are never starved behind conversions. Role assignments are
// rebuilt wholesale whenever the registry changes.
package router
