package config

import (
	"fmt"

	"github.com/imdario/mergo"
	"github.com/spf13/viper"
)

// Config is sluice's top-level configuration: where the journal lives,
// how durable writes to it are, and how the wire front end exposes it.
type Config struct {
	DataDir string       `mapstructure:"dataDir"`
	Queue   QueueConfig  `mapstructure:"queue"`
	Server  ServerConfig `mapstructure:"server"`
	Log     LogConfig    `mapstructure:"log"`
}

// QueueConfig mirrors internal/queue.Options plus operator-tunable
// defaults for the wire front end.
type QueueConfig struct {
	// Fsync is one of "always", "interval", "never".
	Fsync string `mapstructure:"fsync"`
	// FsyncIntervalMS is the group-commit window when Fsync == "interval".
	FsyncIntervalMS int `mapstructure:"fsyncIntervalMs"`
	// MaxInlineBytes bounds the single-chunk inline optimization in
	// OutputStream.Close; see queue.Options.MaxInlineBytes.
	MaxInlineBytes int `mapstructure:"maxInlineBytes"`
	// DefaultWaitMS is loaded from file and environment, but nothing reads
	// it: a WebSocket "wait" frame without wait_ms uses internal/frontend's
	// own fixed 30-second default instead.
	DefaultWaitMS int `mapstructure:"defaultWaitMs"`
	// Name labels this queue's stats lines (STAT queue.<name>.*).
	Name string `mapstructure:"name"`
}

// ServerConfig configures the HTTP/WebSocket front end in internal/frontend.
type ServerConfig struct {
	// Addr is the listen address for both the JSON HTTP API and the
	// WebSocket endpoint.
	Addr string `mapstructure:"addr"`
	// RateLimitRPS and RateLimitBurst bound how many push/pop requests a
	// single connection may issue per second.
	RateLimitRPS   float64 `mapstructure:"rateLimitRps"`
	RateLimitBurst int     `mapstructure:"rateLimitBurst"`
}

// LogConfig configures pkg/log's ApplyConfig.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// RedactFields lists structured-log field keys to mask with
	// "[REDACTED]"; defaults to hiding a failed push's raw item payload
	// (see internal/frontend's handlePush and pkg/log.WithRedactedFields).
	RedactFields []string `mapstructure:"redactFields"`
	// SampleInitial/SampleThereafter throttle the frontend's per-request
	// access log line once it fires often enough to flood output; see
	// pkg/log.WithSampling. SampleThereafter <= 0 disables sampling.
	SampleInitial    int `mapstructure:"sampleInitial"`
	SampleThereafter int `mapstructure:"sampleThereafter"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir: DefaultDataDir(),
		Queue: QueueConfig{
			Fsync:           "always",
			FsyncIntervalMS: 5,
			MaxInlineBytes:  4096,
			DefaultWaitMS:   30_000,
			Name:            "default",
		},
		Server: ServerConfig{
			Addr:           ":7777",
			RateLimitRPS:   200,
			RateLimitBurst: 400,
		},
		Log: LogConfig{
			Level:            "info",
			Format:           "text",
			RedactFields:     []string{"payload"},
			SampleInitial:    10,
			SampleThereafter: 100,
		},
	}
}

// JournalDir returns where this Config's queue journal lives on disk,
// namespacing non-default queue names under DataDir; see JournalDir (the
// package function) for the layout.
func (c Config) JournalDir() string {
	return JournalDir(c.DataDir, c.Queue.Name)
}

// Load reads configuration from path (any format Viper recognizes by
// extension: yaml, json, toml, ...) and merges it over Default(). If path
// is empty, Load returns the defaults untouched; call FromEnv separately to
// overlay SLUICE_* environment variables in a separate, explicit step.
//
// Only fields actually present in the file override the baseline: Viper
// reads into a scratch struct, and mergo.Merge fills the defaults' zero
// fields from it (WithOverride lets any value the scratch struct actually
// set win), rather than a file's zero values clobbering sensible defaults
// the operator never mentioned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var loaded Config
	if err := v.Unmarshal(&loaded); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := mergo.Merge(&cfg, loaded, mergo.WithOverride); err != nil {
		return Config{}, fmt.Errorf("config: merge: %w", err)
	}
	return cfg, nil
}
