package cfg

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvPort             = "PORT"
	EnvMetricsPort      = "METRICS_PORT"
	EnvBundlePath       = "MODEL_BUNDLE_PATH"
	EnvBundleURL        = "MODEL_BUNDLE_URL"
	EnvDataPath         = "DATA_PATH"
	EnvResultsPath      = "RESULTS_PATH"
	EnvAnomalyThreshold = "ANOMALY_THRESHOLD"
	EnvStreamEnabled    = "STREAM_ENABLED"
	EnvRESTTimeout      = "REST_TIMEOUT"
	EnvLogLevel         = "LOG_LVL"
)

// Default artifact locations
const (
	DefaultBundlePath  = "models/latest/model_bundle.json"
	DefaultResultsPath = "./results"
)
