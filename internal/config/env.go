package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays SLUICE_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("SLUICE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SLUICE_QUEUE_NAME"); v != "" {
		cfg.Queue.Name = v
	}
	if v := os.Getenv("SLUICE_QUEUE_FSYNC"); v != "" {
		cfg.Queue.Fsync = v
	}
	if v := os.Getenv("SLUICE_QUEUE_FSYNC_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.FsyncIntervalMS = n
		}
	}
	if v := os.Getenv("SLUICE_QUEUE_MAX_INLINE_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.MaxInlineBytes = n
		}
	}
	if v := os.Getenv("SLUICE_QUEUE_DEFAULT_WAIT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.DefaultWaitMS = n
		}
	}
	if v := os.Getenv("SLUICE_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SLUICE_SERVER_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimitRPS = f
		}
	}
	if v := os.Getenv("SLUICE_SERVER_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimitBurst = n
		}
	}
	if v := os.Getenv("SLUICE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SLUICE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SLUICE_LOG_REDACT_FIELDS"); v != "" {
		cfg.Log.RedactFields = strings.Split(v, ",")
	}
	if v := os.Getenv("SLUICE_LOG_SAMPLE_INITIAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Log.SampleInitial = n
		}
	}
	if v := os.Getenv("SLUICE_LOG_SAMPLE_THEREAFTER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Log.SampleThereafter = n
		}
	}
}
