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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/facilityhub/backoffice/cmd/backoffice/cli"
	"github.com/facilityhub/backoffice/internal/app"
	"github.com/facilityhub/backoffice/internal/auth"
	"github.com/facilityhub/backoffice/internal/authz"
	"github.com/facilityhub/backoffice/internal/observability"
	"github.com/facilityhub/backoffice/internal/platform/cache"
	"github.com/facilityhub/backoffice/internal/platform/db"
	"github.com/facilityhub/backoffice/internal/settings"
	"github.com/facilityhub/backoffice/internal/shared"
	"github.com/facilityhub/backoffice/internal/users"
	"github.com/facilityhub/backoffice/jobs"
)

const usage = `usage: backoffice [command]

commands:
  serve              run the HTTP API (default)
  migrate            apply database migrations
  jobs stats         print queue statistics
  jobs test-email TO enqueue a test email
`

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
	slog.SetDefault(logger)

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command = args[0]
	}
	switch command {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger)
	case "jobs":
		err = jobsCommand(ctx, cfg, args[1:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(command+" failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func redisOptions(cfg *app.Config) cache.Options {
	return cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()
	applied, err := db.Migrate(ctx, pool)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", slog.Int("count", len(applied)), slog.Any("versions", applied))
	return nil
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	c := cli.NewJobsCLI(redisOptions(cfg).AsynqOpt())
	defer c.Close()
	switch args[0] {
	case "stats":
		stats, err := c.InspectQueue()
		if err != nil {
			return err
		}
		fmt.Println(stats)
	case "test-email":
		if len(args) < 2 {
			return errors.New("jobs test-email: recipient required")
		}
		info, err := c.SendTestEmail(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s on %s\n", info.ID, info.Queue)
	default:
		return fmt.Errorf("jobs: unknown subcommand %q", args[0])
	}
	return nil
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisOpts := redisOptions(cfg)
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	authorizer := authz.NewAuthorizer(authz.DefaultTable())
	authzMiddleware := authz.Middleware{Logger: logger}

	userRepo := users.NewRepository(pool)
	userService := users.NewService(userRepo, authorizer, shared.NewAuditLogger(pool))
	userHandler := users.NewHandler(logger, userService, authzMiddleware)

	sessions := shared.NewSessionManager(redisClient, cfg.SessionPrefix, cfg.SessionTTL)
	authService := auth.NewService(userRepo, sessions)
	authHandler := auth.NewHandler(logger, authService, authzMiddleware)

	jobClient := jobs.NewClient(redisOpts.AsynqOpt())
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts.AsynqOpt())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	settingsService := settings.NewService(settings.NewPGStore(pool), userService, jobClient, settings.Options{
		Logger:  logger,
		Metrics: settings.NewMetrics(metrics.Registerer()),
	})
	settingsHandler := settings.NewHandler(logger, settingsService, authzMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthService:     authService,
		AuthHandler:     authHandler,
		UsersHandler:    userHandler,
		SettingsHandler: settingsHandler,
		JobHandler:      jobs.NewHandler(inspector, logger),
		Authz:           authzMiddleware,
		Metrics:         metrics,
		Readiness:       readinessChecks(pool, redisClient),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func readinessChecks(pool *pgxpool.Pool, redisClient *redis.Client) []app.ReadinessCheck {
	return []app.ReadinessCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	}
}
