package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/surveyforge/surveyforge/internal/app"
	"github.com/surveyforge/surveyforge/internal/observability"
	"github.com/surveyforge/surveyforge/internal/platform/db"
	"github.com/surveyforge/surveyforge/internal/roles"
	"github.com/surveyforge/surveyforge/internal/users"
	"github.com/surveyforge/surveyforge/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()

	rolesRepo := roles.NewRepository(pool)
	usersRepo := users.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo, usersRepo)

	recountJob := jobs.NewRoleRecountJob(rolesRepo, rolesService, logger, metrics)

	recountTask, err := jobs.NewRoleRecountTask(jobs.RoleRecountPayload{})
	if err != nil {
		logger.Error("prepare recount task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRoleRecount, Handler: recountJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/10 * * * *", Task: recountTask},
		},
	})
	if err != nil {
		logger.Error("configure worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
