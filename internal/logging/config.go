package logging

import (
	"strings"

	"kvs/internal/config"
)

// DevelopmentLoggingConfig logs everything as text.
func DevelopmentLoggingConfig() config.LoggingConfig {
	return config.LoggingConfig{Level: "debug", Format: "console", Output: "stderr"}
}

// ProductionLoggingConfig logs info and above as JSON.
func ProductionLoggingConfig() config.LoggingConfig {
	return config.LoggingConfig{Level: "info", Format: "json", Output: "stderr"}
}

// TestLoggingConfig keeps test output to errors.
func TestLoggingConfig() config.LoggingConfig {
	return config.LoggingConfig{Level: "error", Format: "json", Output: "stderr"}
}

// Preset returns the logging preset named by environment.
func Preset(environment string) (config.LoggingConfig, bool) {
	switch strings.ToLower(environment) {
	case "development", "dev":
		return DevelopmentLoggingConfig(), true
	case "production", "prod":
		return ProductionLoggingConfig(), true
	case "test", "testing":
		return TestLoggingConfig(), true
	}
	return config.LoggingConfig{}, false
}

// SetupEnvironmentLogging replaces cfg.Logging with the preset for
// environment. Unknown or empty names leave it unchanged.
func SetupEnvironmentLogging(cfg *config.Config, environment string) {
	if preset, ok := Preset(environment); ok {
		cfg.Logging = preset
	}
}
