// Package log provides the structured logging facade used across the
// daemon and its CLI.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by the
// standard library's slog via a custom handler that preserves the
// formatter/output pipeline below. The handler and the underlying
// slog.Logger are not exported; all logging goes through Logger.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput(nil)),
//	)
//	l = l.With(log.Component("server"), log.Str("ns", "default"))
//	l.Info("server started", log.Int("port", 8080))
//
// # Configuration
//
// Use ApplyConfig to build a Logger from a declarative Config (level and
// wire format), as loaded by internal/config.
//
// # Interop
//
// RedirectStdLog routes anything written through the standard library's
// log package into a Logger at warn level, so dependencies that still call
// log.Print* land in the same structured stream.
package log
