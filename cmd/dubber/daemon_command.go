package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dubber/internal/blobstore"
	"dubber/internal/daemon"
	"dubber/internal/deps"
	"dubber/internal/jobs"
	"dubber/internal/logging"
	"dubber/internal/observability"
	"dubber/internal/pipeline"
	"dubber/internal/workspace"
)

const telemetryShutdownTimeout = 5 * time.Second

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the dubbing pipeline in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg, true)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := jobs.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}
	defer store.Close()

	blobs, err := blobstore.New(cfg.Paths.BlobDir)
	if err != nil {
		logger.Error("open object store", logging.Error(err))
		return err
	}
	defer blobs.Close()

	telemetry, err := observability.NewProviders(signalCtx, observability.ProviderOptionsFromConfig(cfg))
	if err != nil {
		logger.Error("init telemetry", logging.Error(err))
		return err
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancelShutdown()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", logging.Error(err))
		}
	}()
	logger.Info("telemetry ready", logging.String("exporter", cfg.Telemetry.Exporter))

	scratch := workspace.NewManager(cfg.Paths.ScratchDir,
		workspace.WithMinFreeMB(cfg.Workflow.MinFreeScratchMB),
		workspace.WithLogger(logger),
	)
	metrics := telemetry.Metrics()
	handlers := pipeline.NewStages(pipeline.Dependencies{
		Store:   store,
		Blobs:   blobs,
		Scratch: scratch,
		Logger:  logger,
		Tracer:  telemetry.Tracer(),
		Metrics: metrics,
	}, pipeline.ServicesFromConfig(cfg))

	for _, handler := range handlers {
		health := handler.HealthCheck(signalCtx)
		if health.Ready {
			continue
		}
		logging.WarnWithContext(logger, "stage not ready", "stage_not_ready",
			logging.Stage(health.Name),
			logging.String("detail", health.Detail),
			logging.Hint("set the service credential in the config file or environment"),
			logging.Impact("jobs reaching this stage wait until it is ready"),
		)
	}

	for _, dep := range deps.Check(signalCtx, deps.FFmpeg(cfg.Transcoder.Binary)) {
		if dep.Available {
			logger.Info("dependency ready", logging.String("name", dep.Name), logging.String("version", dep.Version))
			continue
		}
		logging.WarnWithContext(logger, "dependency unavailable", "dependency_unavailable",
			logging.String("name", dep.Name),
			logging.String("detail", dep.Detail),
			logging.Hint("install ffmpeg or set transcoder.binary"),
			logging.Impact("transcribe and align stages fail until it is installed"),
		)
	}

	d, err := daemon.New(cfg, store, logger, handlers,
		daemon.WithScratchCleaner(scratch),
		daemon.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("dubber daemon shutting down")
	d.Stop()
	return nil
}
