package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/gurkanbulca/collabdesk/internal/attachment"
	"github.com/gurkanbulca/collabdesk/internal/cache"
	"github.com/gurkanbulca/collabdesk/internal/config"
	"github.com/gurkanbulca/collabdesk/internal/database"
	"github.com/gurkanbulca/collabdesk/internal/events"
	"github.com/gurkanbulca/collabdesk/internal/grpcapi"
	"github.com/gurkanbulca/collabdesk/internal/httpapi"
	"github.com/gurkanbulca/collabdesk/internal/middleware"
	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/internal/repository"
	"github.com/gurkanbulca/collabdesk/internal/service"
	"github.com/gurkanbulca/collabdesk/pkg/logger"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateConfig(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	lg := logger.NewLogger(cfg.ToLoggerConfig())
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, lg *logger.Logger) error {
	bus := events.NewBus(lg.Named("events"))
	checks := map[string]httpapi.HealthCheck{}

	store, watcher, closeStore, err := openStore(ctx, cfg, lg, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	// With change streams the store is the single source of events;
	// services publishing as well would deliver every change twice.
	var publisher events.Publisher = bus
	if watcher != nil {
		publisher = events.Discard
		go func() {
			lg.Info("watching mongo change streams")
			if err := watcher.Watch(ctx, bus); err != nil {
				lg.Error("change stream stopped", zap.Error(err))
			}
		}()
	}

	var leaderboardCache service.LeaderboardCache
	if cfg.Redis.Addr != "" {
		lc, err := cache.NewLeaderboardCache(ctx, cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.LeaderboardTTL,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer lc.Close()
		leaderboardCache = lc
		checks["cache"] = lc.Ping
		lg.Info("leaderboard cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	router := newAttachmentRouter(cfg, lg)

	taskService := service.NewTaskService(store, publisher, leaderboardCache, lg)
	submissionService := service.NewSubmissionService(store, router, publisher, lg)
	reviewService := service.NewReviewService(store, publisher, leaderboardCache, lg)
	leaderboardService := service.NewLeaderboardService(store, leaderboardCache, publisher, lg)

	identity := middleware.NewIdentityInterceptor()
	validation := middleware.NewValidationInterceptor(cfg.ToValidationConfig())

	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(cfg.Validation.MaxFileBytes*2),
		grpc.ChainUnaryInterceptor(
			identity.Unary(),
			middleware.LoggingInterceptor(lg),
			middleware.MetricsInterceptor(),
			validation.Unary(),
		),
	)
	grpcapi.RegisterCollaboratorServer(grpcServer, grpcapi.NewServer(
		taskService, submissionService, reviewService, leaderboardService, lg,
	))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(grpcapi.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	if cfg.Server.EnableReflection {
		reflection.Register(grpcServer)
		lg.Warn("gRPC reflection enabled (disable in production)")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.HTTPPort),
		Handler:           httpapi.NewHandler(leaderboardService, bus, checks, lg).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		lg.Info("gRPC server listening", zap.String("port", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(listener); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	go func() {
		lg.Info("HTTP server listening", zap.String("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()

	go startLeaderboardRefresh(ctx, leaderboardService, cfg.Leaderboard.RefreshInterval, lg)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	lg.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	lg.Info("server shutdown complete")
	return serveErr
}

// openStore connects the configured document store. The returned watcher is
// non-nil when Mongo change streams should feed the event bus.
func openStore(ctx context.Context, cfg *config.Config, lg *logger.Logger, checks map[string]httpapi.HealthCheck) (repository.Store, *repository.MongoStore, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverMongo:
		client, err := database.NewMongoClient(ctx, database.MongoConfig{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				lg.Warn("failed to disconnect mongo", zap.Error(err))
			}
		}
		if cfg.Server.AutoMigrate {
			if err := database.EnsureMongoIndexes(ctx, client.Database(cfg.Mongo.Database)); err != nil {
				closeFn()
				return nil, nil, nil, err
			}
		}
		checks["database"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }

		store := repository.NewMongoStore(client, cfg.Mongo.Database, cfg.Mongo.Transactions, lg.Named("mongo"))
		lg.Info("connected to MongoDB", zap.String("database", cfg.Mongo.Database))
		if cfg.Mongo.WatchChanges {
			return store, store, closeFn, nil
		}
		return store, nil, closeFn, nil

	default:
		db, err := database.NewPostgresDB(database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			if err := db.Close(); err != nil {
				lg.Warn("failed to close database connection", zap.Error(err))
			}
		}
		if cfg.Server.AutoMigrate {
			lg.Info("running auto migration")
			if err := database.Migrate(ctx, db); err != nil {
				closeFn()
				return nil, nil, nil, err
			}
		}
		checks["database"] = db.PingContext
		lg.Info("connected to PostgreSQL", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.DBName))
		return repository.NewSQLStore(db), nil, closeFn, nil
	}
}

func newAttachmentRouter(cfg *config.Config, lg *logger.Logger) *attachment.Router {
	if cfg.UseMockStorage() {
		lg.Info("using in-memory attachment backends")
		return attachment.NewRouter(
			attachment.NewMockBackend(models.StorageCloudinary),
			attachment.NewMockBackend(models.StorageObjectStore),
		)
	}

	media := attachment.NewCloudinaryBackend(attachment.CloudinaryConfig{
		CloudName:    cfg.Media.CloudName,
		UploadPreset: cfg.Media.UploadPreset,
		APIBase:      cfg.Media.APIBase,
		Timeout:      cfg.Storage.UploadTimeout,
	}, lg)
	document := attachment.NewObjectStoreBackend(attachment.ObjectStoreConfig{
		URL:        cfg.ObjectStore.URL,
		ServiceKey: cfg.ObjectStore.ServiceKey,
		Bucket:     cfg.ObjectStore.Bucket,
		Folder:     cfg.ObjectStore.Folder,
		Timeout:    cfg.Storage.UploadTimeout,
	}, lg)
	return attachment.NewRouter(media, document)
}

// startLeaderboardRefresh recomputes every leaderboard window on a ticker
func startLeaderboardRefresh(ctx context.Context, svc *service.LeaderboardService, interval time.Duration, lg *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	lg.Info("starting leaderboard refresh job", zap.Duration("interval", interval))

	refresh := func() {
		if err := svc.RefreshAll(ctx); err != nil && ctx.Err() == nil {
			lg.Warn("leaderboard refresh failed", zap.Error(err))
		}
	}
	refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
