// Package config loads the daemon's YAML configuration, with environment
// variable overrides layered on top for container-friendly deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of knobs the supervisord daemon needs at startup.
type Config struct {
	DataDir    string        `yaml:"dataDir"`
	ListenAddr string        `yaml:"listenAddr"`
	MetricsAddr string       `yaml:"metricsAddr"`

	ShutdownGrace time.Duration `yaml:"shutdownGrace"`

	JobConcurrency int           `yaml:"jobConcurrency"`
	JobRetention   time.Duration `yaml:"jobRetention"`

	DefaultHealthIntervalSec int `yaml:"defaultHealthIntervalSec"`
	DefaultHealthTimeoutSec  int `yaml:"defaultHealthTimeoutSec"`
	DefaultMaxRestarts       int `yaml:"defaultMaxRestarts"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() Config {
	return Config{
		DataDir:                  "/var/lib/mcp-supervisor",
		ListenAddr:               ":7070",
		MetricsAddr:              ":9090",
		ShutdownGrace:            20 * time.Second,
		JobConcurrency:           5,
		JobRetention:             24 * time.Hour,
		DefaultHealthIntervalSec: 30,
		DefaultHealthTimeoutSec:  10,
		DefaultMaxRestarts:       3,
	}
}

// Load reads path (if non-empty and present) into Default(), then applies
// MCP_SUPERVISOR_* environment overrides, mirroring the teacher's
// loadLoopConfig pattern of "defaults, then file, then env wins".
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if v := envStr("MCP_SUPERVISOR_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := envStr("MCP_SUPERVISOR_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := envStr("MCP_SUPERVISOR_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v, err := envDuration("MCP_SUPERVISOR_SHUTDOWN_GRACE"); err != nil {
		return Config{}, err
	} else if v > 0 {
		cfg.ShutdownGrace = v
	}
	if v, err := envInt("MCP_SUPERVISOR_JOB_CONCURRENCY"); err != nil {
		return Config{}, err
	} else if v > 0 {
		cfg.JobConcurrency = v
	}
	if v, err := envDuration("MCP_SUPERVISOR_JOB_RETENTION"); err != nil {
		return Config{}, err
	} else if v > 0 {
		cfg.JobRetention = v
	}

	if cfg.DataDir == "" {
		return Config{}, fmt.Errorf("config: dataDir is required")
	}
	if cfg.JobConcurrency <= 0 {
		return Config{}, fmt.Errorf("config: jobConcurrency must be positive")
	}

	return cfg, nil
}

func envStr(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt(key string) (int, error) {
	v := envStr(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string) (time.Duration, error) {
	v := envStr(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
