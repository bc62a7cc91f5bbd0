package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sceneforge/internal/api"
	"sceneforge/pkg/config"
	"sceneforge/pkg/db"
	"sceneforge/pkg/logging"
	"sceneforge/pkg/orchestrator"
	"sceneforge/pkg/probe"
	"sceneforge/pkg/render"
	"sceneforge/pkg/scene"
	"sceneforge/pkg/store"
	"sceneforge/pkg/tracker"
	"sceneforge/pkg/version"
)

var initConfig = flag.Bool("init-config", false, "Generate default config file and exit")

func main() {
	flag.Parse()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault("configs/sceneforge.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated: configs/sceneforge.yaml")
		return
	}

	// Provider keys commonly live in a local .env during development.
	if err := godotenv.Load(); err == nil {
		slog.Debug("Loaded environment from .env")
	}

	if err := run(context.Background(), "configs/sceneforge.yaml"); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("SceneForge Started", "version", version.Version)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	pool, err := render.NewPool(appCfg.Providers)
	if err != nil {
		return fmt.Errorf("failed to build provider pool: %w", err)
	}
	slog.Info("Provider pool ready", "providers", pool.Size())

	tr := tracker.New()
	engine := render.NewEngine(time.Duration(appCfg.Render.Timeout), tr)
	synth := scene.NewSynthesizer(nil)
	orch := orchestrator.New(synth, pool, engine, st, tr, appCfg.Render)

	// Startup Probes
	probes := []probe.Probe{
		probe.SceneStore(st),
		probe.ProviderPool(pool.Usable),
	}
	results := probe.Run(ctx, probes)
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	defer orch.Drain()
	return runServer(ctx, appCfg, orch, st)
}

func initDB(appCfg *config.Config) (*db.DB, store.SceneStore, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func runServer(ctx context.Context, cfg *config.Config, orch *orchestrator.Orchestrator, st store.SceneStore) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	srv := api.NewServer(cfg.Server.Address, cfg.Server.CORSOrigin, logging.RequestLogger,
		api.NewSceneHandler(orch),
		api.NewProviderHandler(orch, st),
	)

	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
