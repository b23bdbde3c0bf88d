package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/catalogjobs/internal/artifact"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/job"
	"github.com/joshu-sajeev/catalogjobs/internal/logging"
	"github.com/joshu-sajeev/catalogjobs/internal/storage/postgres"
	"github.com/joshu-sajeev/catalogjobs/middleware"
	"gorm.io/gorm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("api exited", slog.String("error", err.Error()))
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

	opts := []job.ServiceOption{job.WithLogger(logger)}
	if artifactCfg.Delivery == "url" {
		opts = append(opts, job.WithURLDelivery(artifactCfg.URLTTL))
	}
	service := job.NewJobService(postgres.NewJobRepository(db), blobs, jobTypes, opts...)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestLogger(logger),
		middleware.TimeoutMiddleware(serverCfg.RequestTimeout),
		middleware.ErrorHandler(),
	)
	r.GET("/healthz", healthz(db))
	job.NewJobHandler(service).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + serverCfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func healthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := postgres.Ping(c.Request.Context(), db); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
