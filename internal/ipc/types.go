package ipc

import "time"

// WorkerInfo describes one worker in a status response.
type WorkerInfo struct {
	ID           string    `json:"id"`
	State        string    `json:"state"`
	Busy         bool      `json:"busy"`
	Roles        []string  `json:"roles"`
	LastActivity time.Time `json:"last_activity"`
}

// ActionMetric carries one per-action counter pair.
type ActionMetric struct {
	Action        string `json:"action"`
	Count         int64  `json:"count"`
	TotalDuration string `json:"total_duration"`
}

// StatusRequest asks for daemon status.
type StatusRequest struct{}

// StatusResponse reports daemon and worker state.
type StatusResponse struct {
	Running     bool           `json:"running"`
	PID         int            `json:"pid"`
	StartedAt   time.Time      `json:"started_at"`
	LockPath    string         `json:"lock_path"`
	StatsDBPath string         `json:"stats_db_path"`
	Workers     []WorkerInfo   `json:"workers"`
	Metrics     []ActionMetric `json:"metrics"`
}

// SubmitRequest carries one command for the pool.
type SubmitRequest struct {
	Action   string         `json:"action"`
	Params   map[string]any `json:"params,omitempty"`
	Priority string         `json:"priority,omitempty"`
}

// SubmitResponse returns the worker's terminal response.
type SubmitResponse struct {
	Status   string         `json:"status"`
	Complete bool           `json:"complete"`
	Message  string         `json:"message,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// PingRequest asks for a pool-wide ping broadcast.
type PingRequest struct{}

// PingResponse reports the broadcast outcome.
type PingResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StatsRequest asks for recorded execution history.
type StatsRequest struct {
	RecentLimit int `json:"recent_limit,omitempty"`
}

// ActionHistory aggregates the recorded history of one action.
type ActionHistory struct {
	Action     string    `json:"action"`
	Category   string    `json:"category"`
	Executions int64     `json:"executions"`
	Failures   int64     `json:"failures"`
	Timeouts   int64     `json:"timeouts"`
	AverageMS  int64     `json:"average_ms"`
	LastRun    time.Time `json:"last_run"`
}

// ExecutionInfo describes one recorded execution.
type ExecutionInfo struct {
	SubmissionID string    `json:"submission_id"`
	Action       string    `json:"action"`
	Category     string    `json:"category"`
	WorkerID     string    `json:"worker_id"`
	Outcome      string    `json:"outcome"`
	DurationMS   int64     `json:"duration_ms"`
	StartedAt    time.Time `json:"started_at"`
}

// StatsResponse carries execution history.
type StatsResponse struct {
	Actions []ActionHistory `json:"actions"`
	Recent  []ExecutionInfo `json:"recent"`
}

// StopRequest asks the daemon to shut down.
type StopRequest struct{}

// StopResponse acknowledges shutdown.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}
