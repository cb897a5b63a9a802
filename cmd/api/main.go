package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/clock"

	httpAdapter "github.com/lorrc/ups-collab/internal/adapters/primary/http"
	"github.com/lorrc/ups-collab/internal/adapters/primary/websocket"
	"github.com/lorrc/ups-collab/internal/adapters/secondary/ai"
	"github.com/lorrc/ups-collab/internal/adapters/secondary/features"
	"github.com/lorrc/ups-collab/internal/adapters/secondary/kafka"
	"github.com/lorrc/ups-collab/internal/adapters/secondary/minio"
	"github.com/lorrc/ups-collab/internal/adapters/secondary/postgres"
	"github.com/lorrc/ups-collab/internal/adapters/secondary/redis"
	"github.com/lorrc/ups-collab/internal/auth"
	"github.com/lorrc/ups-collab/internal/config"
	"github.com/lorrc/ups-collab/internal/core/eventbus"
	"github.com/lorrc/ups-collab/internal/core/services"
	"github.com/lorrc/ups-collab/internal/infrastructure/logging"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"instance", cfg.App.InstanceID,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Database Pool
	if cfg.Database.MigrationsPath != "" {
		if err := postgres.Migrate(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			logger.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database migrations applied", "path", cfg.Database.MigrationsPath)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	// Apply database configuration
	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database connection established")

	// 4. Initialize Redis, object storage and the event stream
	rdb, err := redis.NewClient(ctx, redis.ClientParams{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	artifacts, err := minio.NewArtifactStore(minio.ArtifactStoreParams{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		UseSSL:    cfg.Storage.UseSSL,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create artifact store", "error", err)
		os.Exit(1)
	}
	if err := artifacts.EnsureBucket(ctx); err != nil {
		// Exports fail until storage is reachable; everything else keeps working
		logger.Warn("export bucket unavailable", "bucket", cfg.Storage.Bucket, "error", err)
	}

	sink := kafka.NewEventSink(kafka.EventSinkParams{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		WriteTimeout: cfg.Kafka.WriteTimeout,
		Logger:       logger,
	})
	defer sink.Close()
	if sink == nil {
		logger.Info("kafka event sink disabled")
	}
	logger.Info("feature flags loaded", "features", cfg.Features)

	// 5. Initialize Security & Real-time Components
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	feed := redis.NewChangeFeed(redis.ChangeFeedParams{
		Client:     rdb,
		Channel:    cfg.Redis.EventsChannel,
		InstanceID: cfg.App.InstanceID,
		Logger:     logger,
	})
	go func() {
		if err := feed.Listen(ctx, hub.Deliver); err != nil {
			logger.Error("change feed stopped", "error", err)
		}
	}()

	// 6. Dependency Injection (Wiring the Hexagon)

	// Error Handler
	errorHandler := httpAdapter.NewErrorHandler(logger)

	// Backends (Secondary Adapters)
	commentRepo := postgres.NewCommentRepository(pool)
	teamRepo := postgres.NewTeamRepository(pool)
	exportRepo := postgres.NewExportRepository(postgres.ExportRepositoryParams{
		Pool:      pool,
		Comments:  commentRepo,
		Artifacts: artifacts,
		Logger:    logger,
	})
	flags := features.NewFlags(cfg.Features)
	filterStore := redis.NewFilterStore(rdb, cfg.App.Name+":")

	// Services (Core)
	workspace := services.NewWorkspace(services.WorkspaceParams{
		Comments:     commentRepo,
		Exports:      exportRepo,
		AI:           ai.NewAnalyzer(),
		Team:         teamRepo,
		Flags:        flags,
		FilterStore:  filterStore,
		Broadcaster:  eventbus.Fanout{hub, feed},
		Sink:         sink,
		Clock:        clock.WallClock,
		Timings:      timings(cfg.Collaboration),
		Participants: hub.Participants,
		Logger:       logger,
	})
	resourceService := services.NewResourceService(commentRepo, exportRepo, teamRepo, flags, logger)

	// Handlers (Primary Adapters)
	resourceHandler := httpAdapter.NewResourceHandler(resourceService, errorHandler, logger)
	meHandler := httpAdapter.NewMeHandler(resourceService, errorHandler, logger)
	wsHandler := httpAdapter.NewWebSocketHandler(httpAdapter.WebSocketHandlerParams{
		Hub:          hub,
		Sessions:     workspace,
		TokenManager: tokenManager,
		Config:       cfg,
		ErrorHandler: errorHandler,
		Logger:       logger,
	})
	healthHandler := httpAdapter.NewHealthHandler(httpAdapter.HealthHandlerParams{
		Required: map[string]httpAdapter.HealthChecker{
			"database": pool,
			"redis": httpAdapter.HealthCheckerFunc(func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}),
		},
		Optional: map[string]httpAdapter.HealthChecker{
			"storage": artifacts,
		},
		Connections: hub,
		Version:     cfg.App.Version,
	})

	// 7. Setup Router
	router := httpAdapter.NewRouter(httpAdapter.RouterParams{
		Config:       cfg,
		TokenManager: tokenManager,
		Health:       healthHandler,
		Resources:    resourceHandler,
		Me:           meHandler,
		WebSocket:    wsHandler,
		Logger:       logger,
	})

	// 8. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	// Let disconnecting sessions report presence before the pool closes
	if err := hub.Drain(shutdownCtx); err != nil {
		logger.Warn("shutdown with open sessions", "error", err)
	}

	logger.Info("server shutdown complete")
}

func timings(cfg config.CollaborationConfig) services.Timings {
	return services.Timings{
		TypingTimeout:    cfg.TypingTimeout,
		AutoReadDelay:    cfg.AutoReadDelay,
		ExportTick:       cfg.ExportTick,
		ExportResetDelay: cfg.ExportResetDelay,
		MetricsInterval:  cfg.MetricsInterval,
		RetryBaseDelay:   cfg.RetryBaseDelay,
	}
}
