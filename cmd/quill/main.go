package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	clientcmd "github.com/quillmq/quill/internal/cmd/client"
	serverrun "github.com/quillmq/quill/internal/cmd/server"
	cfgpkg "github.com/quillmq/quill/internal/config"
	pebblestore "github.com/quillmq/quill/internal/storage/pebble"
	logpkg "github.com/quillmq/quill/pkg/log"
)

func main() {
	// Pick up a local .env if present so QUILL_* vars work without exporting.
	_ = godotenv.Load()

	logger := newLogger(os.Getenv("QUILL_LOG_LEVEL"), os.Getenv("QUILL_LOG_FORMAT"))

	// Redirect standard library logs (used by Pebble) to our logger.
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "quill",
		Short: "Quill message queue CLI",
		Long:  "Quill is a single-binary message queue. This CLI manages the server, queues and messages.",
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the quill server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			configPath, _ := cmd.Flags().GetString("config")

			var mode pebblestore.FsyncMode
			switch fsyncMode {
			case "always":
				mode = pebblestore.FsyncModeAlways
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "never":
				mode = pebblestore.FsyncModeNever
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			if logLevel != "" || logFormat != "" {
				logger = newLogger(logLevel, logFormat)
				logpkg.RedirectStdLog(logger)
			}

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:  dataDir,
				HTTPAddr: httpAddr,
				Fsync:    mode,
				Config:   cfg,
				Logger:   logger,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("http", ":8080", "HTTP listen address")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().String("log-level", os.Getenv("QUILL_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("QUILL_LOG_FORMAT"), "Log format: text|json (default text)")
	serverStartCmd.Flags().String("config", "", "Path to a JSON config file (env vars still apply)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// client commands over the HTTP control plane
	rootCmd.AddCommand(clientcmd.NewQueueCommand())
	rootCmd.AddCommand(clientcmd.NewSendCommand())
	rootCmd.AddCommand(clientcmd.NewReceiveCommand())
	rootCmd.AddCommand(clientcmd.NewPeekCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level, format string) logpkg.Logger {
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	return logpkg.New(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(logpkg.FormatterFor(format)),
	)
}
