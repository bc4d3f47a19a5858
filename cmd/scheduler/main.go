package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/procuredesk/internal/app"
	"github.com/odyssey-erp/procuredesk/jobs"
)

// The scheduler only enqueues; procuredesk instances with JOBS_ENABLED
// consume the tasks against their desk.
func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping scheduler startup")
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

	cron := make([]jobs.CronRegistration, 0, 2)
	for _, entry := range []struct {
		spec string
		task string
	}{
		{spec: cfg.OverdueSweepCron, task: jobs.TaskOverdueSweep},
		{spec: cfg.SnapshotCron, task: jobs.TaskSlotSnapshot},
	} {
		if entry.spec == "" {
			continue
		}
		task, err := jobs.DefaultTask(entry.task)
		if err != nil {
			logger.Error("build task", slog.String("task", entry.task), slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: entry.spec, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:    logger,
		Cron:      cron,
	})
	if err != nil {
		logger.Error("init scheduler", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler run", slog.Any("error", err))
		os.Exit(1)
	}
}
