package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coalmine/sluice/internal/config"
	"github.com/coalmine/sluice/internal/frontend"
	"github.com/coalmine/sluice/internal/queue"
	"github.com/coalmine/sluice/internal/store"
	logpkg "github.com/coalmine/sluice/pkg/log"
)

func main() {
	// A bootstrap logger serves anything that fails before a Config is
	// loaded (flag parsing, config read errors); newServerCommand rebuilds
	// the real one from cfg.Log via ApplyConfig once a Config exists, so
	// RedactFields/SampleInitial/SampleThereafter actually take effect.
	logger := logpkg.NewLogger(
		logpkg.WithLevel(logpkg.InfoLevel),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput(nil)),
	)
	logpkg.RedirectStdLog(logger)

	root := &cobra.Command{
		Use:   "sluiced",
		Short: "sluice is a single-process, durable FIFO work queue",
	}
	root.AddCommand(newServerCommand(logger))
	root.AddCommand(newStatsCommand())

	if err := root.Execute(); err != nil {
		logger.Error("command failed", logpkg.Err(err))
		os.Exit(1)
	}
}

func newServerCommand(bootstrapLogger logpkg.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "server",
		Short:   "Run the sluice server",
		Aliases: []string{"start", "run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			addr, _ := cmd.Flags().GetString("addr")
			queueName, _ := cmd.Flags().GetString("queue-name")
			fsyncMode, _ := cmd.Flags().GetString("fsync")

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			config.FromEnv(&cfg)
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if queueName != "" {
				cfg.Queue.Name = queueName
			}
			if fsyncMode != "" {
				cfg.Queue.Fsync = fsyncMode
			}

			// Rebuild the logger from the fully merged Config so
			// cfg.Log.RedactFields/SampleInitial/SampleThereafter take
			// effect instead of the bootstrap logger's hardcoded options.
			logger, err := logpkg.ApplyConfig(logpkg.Config{
				Level:            cfg.Log.Level,
				Format:           cfg.Log.Format,
				RedactFields:     cfg.Log.RedactFields,
				SampleInitial:    cfg.Log.SampleInitial,
				SampleThereafter: cfg.Log.SampleThereafter,
			})
			if err != nil {
				return err
			}
			logpkg.RedirectStdLog(logger)

			mode := store.FsyncModeAlways
			switch cfg.Queue.Fsync {
			case "never":
				mode = store.FsyncModeNever
			case "interval":
				mode = store.FsyncModeInterval
			case "always", "":
				mode = store.FsyncModeAlways
			default:
				return fmt.Errorf("invalid queue.fsync %q; use always|interval|never", cfg.Queue.Fsync)
			}

			q, err := queue.Open(cfg.JournalDir(), queue.Options{
				Fsync:          mode,
				FsyncInterval:  time.Duration(cfg.Queue.FsyncIntervalMS) * time.Millisecond,
				MaxInlineBytes: uint64(cfg.Queue.MaxInlineBytes),
			})
			if err != nil {
				return fmt.Errorf("open queue: %w", err)
			}
			defer q.Close()

			srv := frontend.New(q, logger, frontend.Options{
				QueueName:      cfg.Queue.Name,
				RateLimitRPS:   cfg.Server.RateLimitRPS,
				RateLimitBurst: cfg.Server.RateLimitBurst,
			})

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger.Info("starting sluice server",
				logpkg.Str("addr", cfg.Server.Addr),
				logpkg.Str("data_dir", cfg.DataDir),
				logpkg.Str("queue", cfg.Queue.Name),
			)
			if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("config", "", "Path to a YAML config file")
	cmd.Flags().String("data-dir", "", "Journal data directory (overrides config)")
	cmd.Flags().String("addr", "", "HTTP/WebSocket listen address (overrides config)")
	cmd.Flags().String("queue-name", "", "Queue name reported in stats (overrides config)")
	cmd.Flags().String("fsync", "", "Fsync mode: always|interval|never (overrides config)")
	return cmd
}

func newStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Fetch stats from a running sluice server",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			resp, err := http.Get(addr + "/v1/stats")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			fmt.Print(string(body))
			return nil
		},
	}
	cmd.Flags().String("addr", "http://127.0.0.1:7777", "Base URL of the running server")
	return cmd
}
