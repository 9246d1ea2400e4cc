// Gatehoused is the phase-gate enforcement daemon.
//
// It serves MCP tools over stdio and, when enabled, a small HTTP status API.
// Logs go to stderr; stdout belongs to the MCP protocol stream.
//
// Usage:
//
//	# Govern the current directory
//	gatehoused
//
//	# Explicit project root and config
//	gatehoused --root /path/to/project --config gatehouse.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gatehouse/internal/analyzer/secretscan"
	"github.com/fyrsmithlabs/gatehouse/internal/config"
	"github.com/fyrsmithlabs/gatehouse/internal/dispatch"
	"github.com/fyrsmithlabs/gatehouse/internal/engine"
	gatehousehttp "github.com/fyrsmithlabs/gatehouse/internal/http"
	"github.com/fyrsmithlabs/gatehouse/internal/logging"
	"github.com/fyrsmithlabs/gatehouse/internal/mcp"
	"github.com/fyrsmithlabs/gatehouse/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	root := flag.String("root", ".", "project root directory")
	configPath := flag.String("config", "", "path to gatehouse.yaml (default <root>/gatehouse.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gatehoused by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	if err := run(ctx, *root, *configPath); err != nil {
		log.Fatalf("gatehoused: %v", err)
	}
}

func run(ctx context.Context, root, configPath string) error {
	cfg, err := config.Load(root, configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Sync()

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "telemetry shutdown", zap.Error(err))
		}
	}()

	scanner, err := secretscan.New()
	if err != nil {
		return fmt.Errorf("init secret scanner: %w", err)
	}

	eng, err := engine.New(cfg, []dispatch.Analyzer{scanner}, logger)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	if _, err := eng.Rebuild(ctx); err != nil {
		return fmt.Errorf("initial project scan: %w", err)
	}
	go func() {
		if err := eng.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn(ctx, "fs watcher stopped", zap.Error(err))
		}
	}()

	if cfg.HTTP.Enabled {
		httpServer, err := gatehousehttp.NewServer(cfg.HTTP, eng, logger)
		if err != nil {
			return fmt.Errorf("init http server: %w", err)
		}
		go func() {
			if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(ctx, "http server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn(shutdownCtx, "http shutdown", zap.Error(err))
			}
		}()
	}

	mcpServer, err := mcp.NewServer(&mcp.Config{Name: "gatehouse", Version: version}, eng, logger)
	if err != nil {
		return fmt.Errorf("init mcp server: %w", err)
	}
	if err := mcpServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	if cfg.Logging.Level != "" {
		level, err := logging.LevelFromString(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		logCfg.Level = level
	}
	if cfg.Logging.Format != "" {
		logCfg.Format = cfg.Logging.Format
	}
	logCfg.Output.OTEL = cfg.Logging.OTEL
	return logging.NewLogger(logCfg, nil)
}
