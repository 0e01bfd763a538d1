package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/pairpad/internal/execution"
	"github.com/michaelbrown/pairpad/internal/server"
	"github.com/michaelbrown/pairpad/internal/session"
	"github.com/michaelbrown/pairpad/internal/storage"
	"github.com/michaelbrown/pairpad/internal/storage/sqlite"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pairpad server",
	Long: `Start the pairpad HTTP server with REST API and WebSocket support.

The browser client is available at the root URL. API endpoints are under /api
and collaborating clients connect to /ws.

Examples:
  pairpad serve
  pairpad serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if portFlag > 0 {
		cfg.Server.Port = portFlag
	}
	log := newLogger(cfg)

	starters := session.DefaultStarters()
	if cfg.Session.StartersFile != "" {
		starters, err = session.LoadStarters(cfg.Session.StartersFile)
		if err != nil {
			return fmt.Errorf("loading starters: %w", err)
		}
	}
	sessions := session.NewMemoryStore(
		session.WithStarters(starters),
		session.WithIdleTTL(cfg.Session.IdleTTL),
	)

	engine, err := execution.FromConfig(cfg.Runtime, log)
	if err != nil {
		return fmt.Errorf("creating execution engine: %w", err)
	}

	var journal storage.Store
	if cfg.Storage.Journal {
		store, err := sqlite.Open(cfg.Storage.DBPath)
		if err != nil {
			engine.Close()
			return fmt.Errorf("opening run journal: %w", err)
		}
		defer store.Close()
		journal = store
		log.Info("run journal enabled", "path", cfg.Storage.DBPath)
	}

	srv := server.New(cfg, sessions, engine, journal, log)

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		engine.Close()
		return err
	case <-sigCh:
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		log.Warn("shutdown", "error", err)
	}
	return <-errCh
}
