package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/canvas-sync/internal/config"
	"github.com/noah-isme/canvas-sync/internal/database"
	"github.com/noah-isme/canvas-sync/internal/handler"
	"github.com/noah-isme/canvas-sync/internal/middleware"
	"github.com/noah-isme/canvas-sync/internal/observability"
	"github.com/noah-isme/canvas-sync/internal/repository"
	"github.com/noah-isme/canvas-sync/internal/router"
	"github.com/noah-isme/canvas-sync/internal/service"
	"github.com/noah-isme/canvas-sync/pkg/canvas"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := newLogger(cfg)

	db, err := database.Open(cfg.DatabaseURL, cfg.UsesPostgres())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open cache database")
	}

	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate cache database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Drain()
	}

	if cfg.CanvasBaseURL == "" || cfg.CanvasToken == "" {
		logger.Warn().Msg("canvas credentials are not configured; sync requests will fail")
	}

	observability.RegisterMetrics()
	validate := validator.New(validator.WithRequiredStructEnabled())

	client := canvas.NewClient(canvas.Config{
		Credentials: canvas.StaticCredentials{URL: cfg.CanvasBaseURL, APIToken: cfg.CanvasToken},
		Timeout:     cfg.RequestTimeout,
		Hook: func(method, _ string, status int, err error, took time.Duration) {
			kind := ""
			if err != nil {
				kind = canvas.KindOf(err)
			}
			observability.ObserveCanvasRequest(method, status, kind, took)
		},
	}, logger)
	paginator := canvas.NewPaginator(client, cfg.PageSize, cfg.MaxPages, logger)
	api := canvas.NewAPI(client, paginator, validate, logger)

	store := repository.NewLocalStore(db)

	stateStore := repository.NewSyncStateRepository(db)
	if redisClient != nil {
		stateStore = repository.NewRedisSyncStateStore(redisClient, cfg.EventChannel)
	}

	resolver, err := service.NewConflictResolver(cfg.ConflictStrategy)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid conflict strategy")
	}

	events := service.NewSyncEventHub(redisClient, natsConn, cfg.EventChannel, logger)

	syncService := service.NewSyncService(api, store, stateStore, events, service.SyncOptions{
		MaxAge:        cfg.SyncMaxAge,
		CheckInterval: cfg.SyncCheckInterval,
		Concurrency:   cfg.SyncConcurrency,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
		Resolver:      resolver,
	}, logger)
	cacheService := service.NewCacheQueryService(store, stateStore, syncService, service.NewStalenessPolicy(cfg.SyncMaxAge), logger)

	var limiterStorage fiber.Storage
	if redisClient != nil {
		limiterStorage = database.NewRedisStorage(redisClient, cfg.EventChannel+":limiter")
	}
	syncHandler := handler.NewSyncHandler(syncService, validate, logger, cfg.SSEKeepAlive, middleware.RateLimit("sync", cfg.RateLimitMax, cfg.RateLimitWindow, limiterStorage))
	cacheHandler := handler.NewCacheHandler(cacheService, validate, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	syncService.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSOrigins})
	router.Register(app, cfg, router.Dependencies{
		SyncHandler:   syncHandler,
		CacheHandler:  cacheHandler,
		SyncService:   syncService,
		JWTMiddleware: middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(ctx, app, logger)
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}

	return logger.Level(level).With().Timestamp().Str("service", cfg.AppName).Logger()
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
