package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joshu-sajeev/catalogjobs/internal/artifact"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/handlers"
	"github.com/joshu-sajeev/catalogjobs/internal/logging"
	"github.com/joshu-sajeev/catalogjobs/internal/pool"
	"github.com/joshu-sajeev/catalogjobs/internal/storage/postgres"
	"github.com/joshu-sajeev/catalogjobs/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("worker exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	serverCfg, err := config.LoadServerConfig(ctx)
	if err != nil {
		return err
	}
	logger := logging.New(serverCfg.LogLevel, serverCfg.LogFormat)
	slog.SetDefault(logger)

	engineCfg, err := config.LoadEngineConfig(ctx)
	if err != nil {
		return err
	}
	artifactCfg, err := config.LoadArtifactConfig(ctx)
	if err != nil {
		return err
	}
	jobTypes, err := config.LoadJobTypes(engineCfg.JobTypesFile, engineCfg)
	if err != nil {
		return err
	}

	dbCfg, err := postgres.LoadConfigFromEnv(ctx)
	if err != nil {
		return err
	}
	db, err := postgres.ConnectDB(ctx, dbCfg)
	if err != nil {
		return err
	}

	blobs, err := artifact.New(ctx, artifactCfg)
	if err != nil {
		return err
	}

	registry := worker.NewRegistry()
	handlers.New(postgres.NewCatalogRepository(db), blobs, logger).RegisterAll(registry)

	wp := pool.NewWorkerPool(engineCfg, postgres.NewJobRepository(db), registry, blobs, jobTypes, logger)
	logger.Info("worker pool active, press Ctrl+C to stop")

	if err := wp.Run(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
