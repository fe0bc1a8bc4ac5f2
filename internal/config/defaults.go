package config

const (
	defaultConfigPath           = "~/.config/craefto/config.toml"
	defaultDataDir              = "~/.local/share/craefto"
	defaultLogDir               = "~/.local/share/craefto/logs"
	defaultLogRetentionDays     = 30
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultAPIBind              = "127.0.0.1:7580"
	defaultGenerationBaseURL    = "http://127.0.0.1:8000"
	defaultGenerationTimeout    = 120
	defaultGenerationRetries    = 3
	defaultGenerationBackoff    = 2
	defaultSimulatedDelayMS     = 800
	defaultLogCapacity          = 2000
	defaultEventBuffer          = 64
	defaultHistoryLimit         = 200
	defaultNotifyRequestTimeout = 10
	maxSimulatedDelayMS         = 60_000
	defaultNtfyTopicEnv         = "NTFY_TOPIC"
	generationAPIKeyEnv         = "CRAEFTO_API_KEY"
	generationBaseURLEnv        = "CRAEFTO_BACKEND_URL"
	apiTokenEnv                 = "CRAEFTO_API_TOKEN"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Generation: Generation{
			TimeoutSeconds:      defaultGenerationTimeout,
			RetryAttempts:       defaultGenerationRetries,
			RetryBackoffSeconds: defaultGenerationBackoff,
		},
		Pipeline: Pipeline{
			SimulatedDelayMS: defaultSimulatedDelayMS,
			LogCapacity:      defaultLogCapacity,
			EventBuffer:      defaultEventBuffer,
			HistoryLimit:     defaultHistoryLimit,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			RunStarted:     false,
			RunCompleted:   true,
			RunFailed:      true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
