// Command dispatchd is the Dispatch server daemon. It opens the store,
// registers the seed agent roster, and serves the delegation API.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/GoCodeAlone/dispatch/agent"
	"github.com/GoCodeAlone/dispatch/config"
	"github.com/GoCodeAlone/dispatch/delegation"
	"github.com/GoCodeAlone/dispatch/eventlog"
	"github.com/GoCodeAlone/dispatch/internal/version"
	"github.com/GoCodeAlone/dispatch/server"
	"github.com/GoCodeAlone/dispatch/skills"
	"github.com/GoCodeAlone/dispatch/store"
)

var configPath = flag.String("config", "dispatch.yaml", "path to config file")

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", *configPath, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	logger.Info("starting dispatchd",
		"version", version.Version,
		"commit", version.Commit,
	)

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Failed to create data dir: %v", err)
		}
	}
	st, err := store.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	for _, seed := range cfg.Agents {
		a := &agent.Agent{
			ID:       seed.ID,
			Name:     seed.Name,
			Skills:   seed.Skills,
			Capacity: seed.Capacity,
			Status:   agent.StatusActive,
		}
		if err := st.RegisterAgent(a); err != nil {
			log.Fatalf("Failed to register agent %s: %v", seed.ID, err)
		}
	}

	catalog := skills.NewCatalog(st.DB(), cfg.SkillDir)
	if err := catalog.InitTables(); err != nil {
		log.Fatalf("Failed to init skill catalog: %v", err)
	}
	if err := catalog.LoadFromDirectory(); err != nil {
		logger.Warn("skill catalog load failed", "err", err)
	}

	events := eventlog.NewInMemoryLog()
	engine := delegation.New(st, logger)
	engine.SetEventLogger(events)
	engine.SetMinScore(cfg.MinScore)

	srv := server.New(*cfg, version.Version, logger)
	srv.SetEngine(engine)
	srv.SetStore(st)
	srv.SetEventLogger(events)
	srv.SetSkillCatalog(catalog)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server error: %v", err)
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	if err := srv.Stop(context.Background()); err != nil {
		logger.Error("server stop error", "error", err)
	}
	logger.Info("shutdown complete")
}

// loadConfig reads the config file, falling back to defaults when the file
// does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(errors.Unwrap(err)) {
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
