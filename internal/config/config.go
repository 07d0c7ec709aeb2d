// Package config provides unified configuration loading for simdash.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/simdash/internal/constants"
	"gopkg.in/yaml.v3"
)

// SimdashConfig contains all simdash configuration settings.
type SimdashConfig struct {
	// Server contains settings for the dashboard HTTP server.
	Server ServerConfig `json:"server" yaml:"server"`

	// Cache contains settings for the simulation result cache.
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Simulation configures the external simulator process.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Series names the well-known series of the result tree.
	Series SeriesConfig `json:"series" yaml:"series"`

	// Export contains settings for table export.
	Export ExportConfig `json:"export" yaml:"export"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ServerConfig configures the dashboard server.
type ServerConfig struct {
	// Addr is the listen address. Port 0 picks a free port.
	Addr string `json:"addr" yaml:"addr"`

	// OpenBrowser opens the dashboard in the default browser on start.
	OpenBrowser bool `json:"open_browser" yaml:"open_browser"`

	// SessionIdle removes sessions untouched for this long. Zero keeps them.
	SessionIdle time.Duration `json:"session_idle,omitempty" yaml:"session_idle,omitempty"`
}

// CacheConfig configures the fingerprint cache.
type CacheConfig struct {
	// TTL is how long a result stays reusable after it was computed.
	TTL time.Duration `json:"ttl" yaml:"ttl"`
}

// SimulationConfig configures the simulator process. The fingerprint is
// written to its stdin as JSON; it prints the result JSON on stdout.
type SimulationConfig struct {
	// Command is the executable. Supports ${VAR} syntax for env vars.
	Command string `json:"command" yaml:"command"`

	// Args are passed to Command. Supports ${VAR} syntax for env vars.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Timeout bounds one run. Zero means no limit.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// SeriesConfig names the well-known series of the local result tree.
type SeriesConfig struct {
	AxisKey    string `json:"axis_key" yaml:"axis_key"`
	CellsKey   string `json:"cells_key" yaml:"cells_key"`
	DefaultKey string `json:"default_key" yaml:"default_key"`

	// ExcludedKeys are never offered in the series dropdowns.
	ExcludedKeys []string `json:"excluded_keys" yaml:"excluded_keys"`
}

// ExportConfig configures table export.
type ExportConfig struct {
	// Dir is where server-side exports are written. Relative export paths
	// are resolved against it and may not escape it.
	Dir string `json:"dir" yaml:"dir"`
}

// LoggingConfig configures simdash's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "error", "warn", "info" (default),
	// "debug", or "trace". "debug" enables event logging to
	// <Dir>/events.jsonl; "trace" additionally logs raw restyle payloads.
	Level string `json:"level" yaml:"level"`

	// Dir holds events.jsonl and the MCP audit log.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// Default returns a SimdashConfig with sensible defaults.
func Default() *SimdashConfig {
	return &SimdashConfig{
		Server: ServerConfig{
			Addr:        constants.DefaultServerAddr,
			OpenBrowser: true,
		},
		Cache: CacheConfig{
			TTL: constants.DefaultCacheTTL,
		},
		Simulation: SimulationConfig{
			Timeout: constants.DefaultSimulationTimeout,
		},
		Series: SeriesConfig{
			AxisKey:      constants.DefaultAxisKey,
			CellsKey:     constants.DefaultCellsKey,
			DefaultKey:   constants.DefaultSeriesKey,
			ExcludedKeys: constants.DefaultExcludedKeys(),
		},
		Export: ExportConfig{
			Dir: ".",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultDir returns ~/.simdash, or "" when the home directory is unknown.
func DefaultDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".simdash")
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.simdash/config.yaml -> environment variables
func Load() (*SimdashConfig, error) {
	config := Default()

	if dir := DefaultDir(); dir != "" {
		configPath := filepath.Join(dir, "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)
	if config.Logging.Dir == "" {
		config.Logging.Dir = DefaultDir()
	}

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*SimdashConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Simulation.Command = expandEnvVars(config.Simulation.Command)
	for i, a := range config.Simulation.Args {
		config.Simulation.Args[i] = expandEnvVars(a)
	}

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *SimdashConfig) Validate() error {
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %v", c.Cache.TTL)
	}

	if c.Simulation.Timeout < 0 {
		return fmt.Errorf("simulation.timeout must be non-negative, got %v", c.Simulation.Timeout)
	}

	if c.Server.SessionIdle < 0 {
		return fmt.Errorf("server.session_idle must be non-negative, got %v", c.Server.SessionIdle)
	}

	if strings.TrimSpace(c.Series.AxisKey) == "" {
		return fmt.Errorf("series.axis_key must not be empty")
	}

	if strings.TrimSpace(c.Series.CellsKey) == "" {
		return fmt.Errorf("series.cells_key must not be empty")
	}

	validLevels := map[string]bool{"error": true, "warn": true, "info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: error, warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *SimdashConfig) {
	if v := os.Getenv("SIMDASH_ADDR"); v != "" {
		config.Server.Addr = v
	}

	if v := os.Getenv("SIMDASH_OPEN_BROWSER"); v != "" {
		config.Server.OpenBrowser = v == "true" || v == "1"
	}

	if v := os.Getenv("SIMDASH_CACHE_TTL"); v != "" {
		if d, err := parseDuration(v); err == nil {
			config.Cache.TTL = d
		}
	}

	if v := os.Getenv("SIMDASH_SIM_COMMAND"); v != "" {
		config.Simulation.Command = v
	}

	if v := os.Getenv("SIMDASH_SIM_TIMEOUT"); v != "" {
		if d, err := parseDuration(v); err == nil {
			config.Simulation.Timeout = d
		}
	}

	if v := os.Getenv("SIMDASH_DEFAULT_SERIES"); v != "" {
		config.Series.DefaultKey = v
	}

	if v := os.Getenv("SIMDASH_EXPORT_DIR"); v != "" {
		config.Export.Dir = v
	}

	if v := os.Getenv("SIMDASH_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("SIMDASH_LOG_DIR"); v != "" {
		config.Logging.Dir = v
	}
}

// parseDuration accepts Go durations ("90s") and bare seconds ("300").
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
