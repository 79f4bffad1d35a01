package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	Port             int
	MetricsPort      int
	BundlePath       string
	BundleURL        string
	DataPath         string
	ResultsPath      string
	AnomalyThreshold float64
	StreamEnabled    bool
	RESTTimeout      time.Duration
}

type ConfigFile struct {
	Server struct {
		Port        int    `yaml:"port"`
		MetricsPort int    `yaml:"metricsPort"`
		RESTTimeout string `yaml:"restTimeout"`
	} `yaml:"server"`

	Model struct {
		BundlePath       string  `yaml:"bundlePath"`
		BundleURL        string  `yaml:"bundleURL"`
		AnomalyThreshold float64 `yaml:"anomalyThreshold"`
	} `yaml:"model"`

	System struct {
		DataPath    string `yaml:"dataPath"`
		ResultsPath string `yaml:"resultsPath"`
	} `yaml:"system"`

	Stream struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"stream"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	restTimeout, err := time.ParseDuration(config.Server.RESTTimeout)
	if err != nil {
		restTimeout = 15 * time.Second
	}

	settings := Settings{
		Port:             getIntFromEnvOrConfig(EnvPort, config.Server.Port, 5001),
		MetricsPort:      getIntFromEnvOrConfig(EnvMetricsPort, config.Server.MetricsPort, 9090),
		BundlePath:       getEnvOrDefault(EnvBundlePath, orDefault(config.Model.BundlePath, DefaultBundlePath)),
		BundleURL:        getEnvOrDefault(EnvBundleURL, config.Model.BundleURL),
		DataPath:         getEnvOrDefault(EnvDataPath, config.System.DataPath),
		ResultsPath:      getEnvOrDefault(EnvResultsPath, orDefault(config.System.ResultsPath, DefaultResultsPath)),
		AnomalyThreshold: getFloatFromEnvOrConfig(EnvAnomalyThreshold, config.Model.AnomalyThreshold, 0.65),
		StreamEnabled:    getBoolFromEnvOrConfig(EnvStreamEnabled, config.Stream.Enabled),
		RESTTimeout:      restTimeout,
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		Port:             getIntOrDefault(EnvPort, 5001),
		MetricsPort:      getIntOrDefault(EnvMetricsPort, 9090),
		BundlePath:       getEnvOrDefault(EnvBundlePath, DefaultBundlePath),
		BundleURL:        os.Getenv(EnvBundleURL), // optional
		DataPath:         os.Getenv(EnvDataPath),  // optional, empty disables the audit store
		ResultsPath:      getEnvOrDefault(EnvResultsPath, DefaultResultsPath),
		AnomalyThreshold: getFloatOrDefault(EnvAnomalyThreshold, 0.65),
		StreamEnabled:    getBoolOrDefault(EnvStreamEnabled, true),
		RESTTimeout:      getDurationOrDefault(EnvRESTTimeout, 15*time.Second),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// validateSettings performs validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.Port < 1 || settings.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", settings.Port)
	}
	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if settings.Port == settings.MetricsPort {
		return fmt.Errorf("port and metrics port must differ, both are %d", settings.Port)
	}

	if settings.BundlePath == "" {
		return fmt.Errorf("model bundle path cannot be empty")
	}
	if settings.ResultsPath == "" {
		return fmt.Errorf("results path cannot be empty")
	}

	if settings.AnomalyThreshold < 0 || settings.AnomalyThreshold > 1 {
		return fmt.Errorf("anomaly threshold must be between 0 and 1, got %f", settings.AnomalyThreshold)
	}

	if settings.RESTTimeout < time.Second || settings.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", settings.RESTTimeout)
	}

	return nil
}
