// Package config provides configuration for the CLI.
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config holds CLI configuration.
type Config struct {
	// ServerAddr is the gRPC address of a perftrace server, used by "remote".
	ServerAddr string

	// HistoryPath is the SQLite database holding recorded analyses.
	HistoryPath string

	// DefinitionsFile is the default interval definitions file.
	DefinitionsFile string

	// S3 trace sources and export sinks
	S3Region   string
	S3Endpoint string

	// Output format
	Format string // json, table, yaml

	// Verbosity
	Verbose bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ServerAddr:      getEnv("PERFTRACE_SERVER_ADDR", "localhost:9000"),
		HistoryPath:     getEnv("PERFTRACE_HISTORY_DB", defaultHistoryPath()),
		DefinitionsFile: getEnv("PERFTRACE_DEFINITIONS", ""),
		S3Region:        getEnv("PERFTRACE_S3_REGION", ""),
		S3Endpoint:      getEnv("PERFTRACE_S3_ENDPOINT", ""),
		Format:          getEnv("PERFTRACE_FORMAT", "table"),
		Verbose:         getEnvBool("PERFTRACE_VERBOSE", false),
	}
}

func defaultHistoryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "perftrace-history.db"
	}
	return filepath.Join(dir, "perftrace", "history.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}
