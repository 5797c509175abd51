package config

const (
	defaultRuntimeDir             = "~/.local/share/foreman/runtime"
	defaultDataDir                = "~/.local/share/foreman"
	defaultLogDir                 = "~/.local/share/foreman/logs"
	defaultWorkerCommand          = "python3"
	defaultWorkerCount            = 4
	defaultStartupTimeoutSeconds  = 10
	defaultRequestTimeoutSeconds  = 300
	defaultShutdownTimeoutSeconds = 5
	defaultStartTimeoutSeconds    = 30
	defaultHealthIntervalSeconds  = 30
	defaultInactivityLimitSeconds = 600
	defaultRetryWaitMillis        = 100
	defaultLogLevel               = "info"
	defaultLogFormat              = "console"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RuntimeDir: defaultRuntimeDir,
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
		},
		Worker: Worker{
			Command:                defaultWorkerCommand,
			Args:                   []string{"-u", "worker.py"},
			Count:                  defaultWorkerCount,
			StartupTimeoutSeconds:  defaultStartupTimeoutSeconds,
			RequestTimeoutSeconds:  defaultRequestTimeoutSeconds,
			ShutdownTimeoutSeconds: defaultShutdownTimeoutSeconds,
		},
		Pool: Pool{
			StartTimeoutSeconds:    defaultStartTimeoutSeconds,
			HealthIntervalSeconds:  defaultHealthIntervalSeconds,
			InactivityLimitSeconds: defaultInactivityLimitSeconds,
			RetryWaitMillis:        defaultRetryWaitMillis,
			HeartbeatOnHealthSweep: true,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Stats: Stats{
			Enabled: true,
		},
	}
}
