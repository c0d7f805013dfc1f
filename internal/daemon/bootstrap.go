// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the streamer together and owns its lifecycle.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	child_process_manager "github.com/AgustinSRG/go-child-process-manager"
	"github.com/ManuGH/mtxstreamer/internal/config"
	"github.com/ManuGH/mtxstreamer/internal/control"
	"github.com/ManuGH/mtxstreamer/internal/health"
	"github.com/ManuGH/mtxstreamer/internal/log"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/bus"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/exec"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/exec/fake"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/exec/gst"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/exec/launch"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/spec"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/supervisor"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/switcher"
	"github.com/ManuGH/mtxstreamer/internal/status"
	"github.com/ManuGH/mtxstreamer/internal/telemetry"
	"github.com/rs/zerolog"
)

// Shutdown hook names.
const (
	hookTelemetry = "telemetry"
	hookChildren  = "child-processes"
	hookPipeline  = "pipeline"
)

// Options adjusts Build for embedding and tests.
type Options struct {
	// Engine replaces the engine selected by engine.kind.
	Engine exec.Engine
	// SkipStartupChecks skips the pre-flight environment checks.
	SkipStartupChecks bool
}

// NewEngine creates the media engine selected by cfg.Engine.Kind.
func NewEngine(cfg config.AppConfig) (exec.Engine, error) {
	switch cfg.Engine.Kind {
	case config.EngineLaunch, "":
		return launch.New(launch.Options{
			Bin:          cfg.Engine.LaunchBin,
			StartTimeout: cfg.Engine.StartTimeout,
			StopTimeout:  cfg.Engine.StopTimeout,
		}), nil
	case config.EngineGst:
		return gst.New(gst.Options{
			StartTimeout: cfg.Engine.StartTimeout,
			StopTimeout:  cfg.Engine.StopTimeout,
		}), nil
	case config.EngineFake:
		return fake.New(), nil
	default:
		return nil, fmt.Errorf("%w: %w: %q", config.ErrInvalidConfig, ErrUnknownEngine, cfg.Engine.Kind)
	}
}

// Build wires every component for cfg. Errors wrap config.ErrInvalidConfig
// or model.ErrEngineUnavailable when the process cannot run at all.
func Build(ctx context.Context, cfg config.AppConfig, opts Options) (*App, error) {
	engine := opts.Engine
	if engine == nil {
		var err error
		if engine, err = NewEngine(cfg); err != nil {
			return nil, err
		}
	}
	logger := log.Derive(func(c *zerolog.Context) {
		*c = c.Str(log.FieldComponent, "daemon").Str(log.FieldEngine, engine.Name())
	})

	if !opts.SkipStartupChecks {
		if err := health.PerformStartupChecks(ctx, cfg, engine); err != nil {
			return nil, err
		}
	}

	specOpts := spec.OptionsFromConfig(cfg)
	initial, ok := specOpts.State(model.StateConnecting, "")
	if !ok {
		return nil, fmt.Errorf("%w: no connecting feed port", config.ErrInvalidConfig)
	}

	b := bus.NewMemoryBus()
	policy := supervisor.PolicyFromConfig(cfg.Faults, func(kind model.StateKind) (model.StreamState, bool) {
		return specOpts.State(kind, "")
	})

	sw := switcher.New(switcher.Options{
		Engine:      engine,
		Build:       func(s model.StreamState) spec.Spec { return spec.Build(s, specOpts) },
		Fallback:    policy.FallbackFor,
		Bus:         b,
		StopTimeout: cfg.Engine.StopTimeout,
	})
	sup := supervisor.New(supervisor.Options{
		Policy:       policy,
		Requester:    sw,
		Bus:          b,
		StallTimeout: stallTimeout(cfg.Engine),
	})
	sw.SetObserver(sup)

	var client *control.Client
	tracker := status.New(status.Options{
		Bus:      b,
		Snapshot: sw.Snapshot,
		Control: func() status.ControlReport {
			return status.ControlReport{Connected: client.Connected(), Sessions: client.Sessions()}
		},
		File:    cfg.StatusFile,
		Version: cfg.Version,
	})

	ctrlOpts := control.OptionsFromConfig(cfg.Control)
	ctrlOpts.Resolve = specOpts.State
	ctrlOpts.Requester = sw
	ctrlOpts.Status = func() any { return tracker.Report() }
	ctrlOpts.Bus = b
	client = control.New(ctrlOpts)

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewEngineChecker(engine))
	hm.RegisterChecker(health.NewPipelineChecker(sw.Snapshot))
	hm.RegisterChecker(health.NewControlChecker(client.Connected))
	hm.RegisterChecker(health.NewRelayChecker(cfg.Relay.PublishURL(), 0, func() bool {
		s := sw.Snapshot()
		return s.Running && s.Publishes
	}))

	handler := NewRouter(RouterDeps{
		Health:    hm,
		Status:    tracker,
		RateLimit: cfg.HTTP.RateLimit,
		Service:   cfg.LogService,
	})
	mgr, err := NewManager(ServerConfig{
		ListenAddr:      cfg.HTTP.Listen,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, Deps{Logger: logger, Handler: handler})
	if err != nil {
		return nil, err
	}

	provider, err := telemetry.Setup(ctx, cfg.Telemetry, telemetry.Identity{
		Service:   cfg.LogService,
		Version:   cfg.Version,
		RelayPath: cfg.Relay.Path,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Telemetry initialization failed, continuing without tracing")
	} else {
		mgr.RegisterShutdownHook(hookTelemetry, provider.Shutdown)
	}

	if engine.Name() == launch.EngineName {
		if err := child_process_manager.InitializeChildProcessManager(); err != nil {
			return nil, fmt.Errorf("%w: child process manager: %v", model.ErrEngineUnavailable, err)
		}
		mgr.RegisterShutdownHook(hookChildren, func(context.Context) error {
			return child_process_manager.DisposeChildProcessManager()
		})
	}

	mgr.RegisterShutdownHook(hookPipeline, sw.Close)

	logger.Info().
		Str(log.FieldPublishURL, cfg.Relay.PublishURL()).
		Str(log.FieldControlURL, ctrlOpts.URL).
		Str("initial_state", initial.String()).
		Msg("streamer wired")

	return &App{
		logger:     logger,
		switcher:   sw,
		supervisor: sup,
		control:    client,
		tracker:    tracker,
		handler:    handler,
		manager:    mgr,
		initial:    initial,
	}, nil
}

// stallTimeout disables the watchdog when the pipeline emits no heartbeats.
func stallTimeout(cfg config.EngineConfig) time.Duration {
	if cfg.HeartbeatInterval <= 0 {
		return 0
	}
	return cfg.StallTimeout
}

// WaitForShutdown returns a context cancelled on SIGINT or SIGTERM.
func WaitForShutdown() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
