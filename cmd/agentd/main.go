// agentd is the coding agent daemon: it accepts tasks over a websocket
// channel, works them through understanding, planning, and executing phases,
// and holds the resulting changeset for human approval.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentd/pkg/config"
	"agentd/pkg/logx"
	"agentd/pkg/metrics"
	"agentd/pkg/orch"
	"agentd/pkg/persistence"
	"agentd/pkg/server"
)

func main() {
	var configPath string
	var addr string
	flag.StringVar(&configPath, "config", "", "Path to config file (YAML)")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides config)")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("AGENTD_CONFIG")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	keys := config.LoadAPIKeys()
	logger := logx.NewLogger("agentd")
	recorder := metrics.NewRecorder()

	var archive orch.Archive
	var store *persistence.Store
	if cfg.DatabasePath != "" {
		store, err = persistence.Open(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("Failed to open task archive: %v", err)
		}
		defer store.Close()
		archive = store
	} else {
		logger.Warn("No database_path configured, task history is disabled")
	}

	controller := orch.NewController(cfg, keys, recorder, archive)

	// persistence.Store satisfies both the controller's write side and the
	// server's read side; a nil store leaves the history endpoints empty.
	var readArchive server.Archive
	if store != nil {
		readArchive = store
	}
	srv := server.New(cfg.Server.Addr, controller, readArchive)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal %v, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}
