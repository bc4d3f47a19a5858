package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/procuredesk/cmd/procuredesk/cli"
	"github.com/odyssey-erp/procuredesk/internal/app"
	jobmetrics "github.com/odyssey-erp/procuredesk/internal/jobs"
	"github.com/odyssey-erp/procuredesk/internal/observability"
	procurementhttp "github.com/odyssey-erp/procuredesk/internal/procurement/http"
	"github.com/odyssey-erp/procuredesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobsCLI(ctx, cfg, os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		return
	}

	if err := serve(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("procuredesk stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func runJobsCLI(ctx context.Context, cfg *app.Config, args []string) error {
	jobsCLI, err := cli.NewJobsCLI(redisOpts(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = jobsCLI.Close() }()
	return jobsCLI.Run(ctx, args, os.Stdout)
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open slot: %w", err)
	}
	defer backend.Close()

	metrics := observability.NewMetrics()
	desk, err := app.OpenDesk(ctx, cfg, backend.Slot, logger, metrics)
	if err != nil {
		return fmt.Errorf("open desk: %w", err)
	}

	var jobHandler *jobs.Handler
	var worker *jobs.Worker
	if cfg.JobsEnabled {
		inspector := asynq.NewInspector(redisOpts(cfg))
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)

		jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
		sweep := jobs.NewOverdueSweepJob(desk, logger, jobMetrics)
		snapshot := jobs.NewSlotSnapshotJob(desk, backend.Slot, logger, jobMetrics)
		worker, err = jobs.NewWorker(jobs.WorkerConfig{
			RedisOpts:   redisOpts(cfg),
			Logger:      logger,
			Concurrency: cfg.JobsConcurrency,
			Handlers: []jobs.TaskHandler{
				{Type: jobs.TaskOverdueSweep, Handler: sweep.Handle},
				{Type: jobs.TaskSlotSnapshot, Handler: snapshot.Handle},
			},
		})
		if err != nil {
			return fmt.Errorf("init worker: %w", err)
		}
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		ProcurementHandler: procurementhttp.NewHandler(logger, desk),
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})
	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if worker != nil {
		group.Go(func() error {
			return worker.Run(groupCtx)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown", slog.Any("error", err))
		}
		if err := desk.Flush(shutdownCtx); err != nil {
			logger.Error("flush on shutdown", slog.Any("error", err))
		}
		return nil
	})
	return group.Wait()
}

func redisOpts(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}
