package log

import (
	"fmt"
	stdlog "log"
	"strings"
)

// Config is the process-level logging configuration, populated from
// internal/config and applied once at startup via ApplyConfig.
type Config struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string
	// Format selects the wire format: "text" (default) or "json".
	Format string
	// RedactFields lists field keys to mask before any output; see
	// WithRedactedFields.
	RedactFields []string
	// SampleInitial/SampleThereafter throttle repeated (level, message)
	// lines once they occur often enough to flood output; see
	// WithSampling. SampleThereafter <= 0 disables sampling.
	SampleInitial    int
	SampleThereafter int
}

// ParseLevel parses a case-insensitive level name. Unrecognized names fall
// back to InfoLevel with an error, so callers can decide whether to treat a
// bad config value as fatal.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("log: unknown level %q", s)
	}
}

// ApplyConfig builds a Logger from a Config, defaulting unset fields.
func ApplyConfig(cfg Config) (Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := []LoggerOption{WithLevel(level)}
	switch strings.ToLower(cfg.Format) {
	case "json":
		opts = append(opts, WithFormatter(&JSONFormatter{}))
	case "text", "":
		opts = append(opts, WithFormatter(&TextFormatter{}))
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.Format)
	}
	if len(cfg.RedactFields) > 0 {
		opts = append(opts, WithRedactedFields(cfg.RedactFields...))
	}
	if cfg.SampleThereafter > 0 {
		opts = append(opts, WithSampling(cfg.SampleInitial, cfg.SampleThereafter))
	}
	return NewLogger(opts...), nil
}

// stdLogWriter adapts a Logger to io.Writer for RedirectStdLog.
type stdLogWriter struct {
	logger Logger
}

func (w stdLogWriter) Write(p []byte) (int, error) {
	w.logger.Warn(strings.TrimRight(string(p), "\n"), Str("source", "stdlog"))
	return len(p), nil
}

// RedirectStdLog routes anything written through the standard library's
// log package into logger, at warn level, so output from dependencies that
// still use log.Print* lands in the same structured stream.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdLogWriter{logger: logger})
}
