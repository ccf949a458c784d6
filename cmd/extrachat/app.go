package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"PersonaChat/internal/backend"
	"PersonaChat/internal/config"
	"PersonaChat/internal/ledger"
	"PersonaChat/internal/orchestrator"
	"PersonaChat/internal/telemetry"
)

// app is the in-process stack shared by serve and chat --local.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	registry     *backend.Registry
	orchestrator *orchestrator.Orchestrator
	cleanup      []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := telemetry.InitLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	a := &app{cfg: cfg, logger: logger}

	tracer, meter := telemetry.Noop()
	if cfg.Telemetry.Enabled {
		t, m, shutdown, err := telemetry.InitTelemetry(ctx, cfg.Log.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		tracer, meter = t, m
		a.cleanup = append(a.cleanup, shutdown)
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithMeter(meter),
	}
	if cfg.Ledger.Enabled {
		l, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize ledger: %w", err)
		}
		a.cleanup = append(a.cleanup, func() {
			if err := l.Close(); err != nil {
				logger.Error("failed to close ledger", "error", err)
			}
		})
		opts = append(opts, orchestrator.WithRecorder(l))
	}

	a.registry = backend.NewDefaultRegistry(cfg, os.Getenv, backend.Instruments{Tracer: tracer, Meter: meter})
	a.orchestrator = orchestrator.New(a.registry, opts...)

	logger.Info("backends ready", "models", a.registry.Names(), "default", a.registry.Default())
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}
