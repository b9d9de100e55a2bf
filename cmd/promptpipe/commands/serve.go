package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/promptpipe/promptpipe/config"
	"github.com/promptpipe/promptpipe/errors"
	"github.com/promptpipe/promptpipe/logger"
	"github.com/promptpipe/promptpipe/server"
)

// ServeCmd starts the promptpipe HTTP server
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the promptpipe server",
	Long: `Launch the promptpipe HTTP API: prompt management, hook-triggered
execution, execution history, usage statistics, and the WebSocket
execution feed.`,
	RunE: runServe,
}

var (
	servePort   int
	serveDBPath string
)

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Custom database path (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	port := servePort
	if port == 0 {
		port = cfg.GetServerPort()
	}

	dbPath := serveDBPath
	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}

	database, err := openDatabase(dbPath)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	printStartupBanner(port, dbPath)

	srv := server.New(database, cfg, logger.Logger)

	// Reload config on file edits so origin and timeout changes apply to
	// new requests without a restart
	if cfgFile := config.GetViper().ConfigFileUsed(); cfgFile != "" {
		watcher, err := config.NewConfigWatcher(cfgFile)
		if err != nil {
			logger.Warnw("Config watcher unavailable", "file", cfgFile, "error", err)
		} else {
			watcher.OnReload(func(fresh *config.Config) error {
				*cfg = *fresh
				logger.Infow("Configuration reloaded", "file", cfgFile)
				return nil
			})
			watcher.Start()
			defer watcher.Stop()
		}
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(port)
	}()

	// GRACE: Wait for shutdown signal (Ctrl+C)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return errors.Wrap(err, "server failed to start")
	case <-sigChan:
		// First Ctrl+C - graceful shutdown
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- srv.Stop()
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			// Second Ctrl+C - force immediate exit
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil // unreachable
		}
	}
}
