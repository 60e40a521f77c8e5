package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Application
	"github.com/dreschagin/securecam/internal/application/capture"
	applicationPort "github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/application/usecase"

	// Infrastructure
	"github.com/dreschagin/securecam/internal/infrastructure/backend"
	redisCache "github.com/dreschagin/securecam/internal/infrastructure/cache/redis"
	"github.com/dreschagin/securecam/internal/infrastructure/collector"
	"github.com/dreschagin/securecam/internal/infrastructure/device"
	natsInfra "github.com/dreschagin/securecam/internal/infrastructure/messaging/nats"
	"github.com/dreschagin/securecam/internal/infrastructure/metrics"
	wsInfra "github.com/dreschagin/securecam/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/securecam/internal/infrastructure/observability/cloudwatch"
	dynamodbRepo "github.com/dreschagin/securecam/internal/infrastructure/persistence/dynamodb"
	"github.com/dreschagin/securecam/internal/infrastructure/persistence/postgres"
	"github.com/dreschagin/securecam/internal/infrastructure/persistence/sqlite"
	s3storage "github.com/dreschagin/securecam/internal/infrastructure/storage/s3"

	// Interfaces
	httpInterface "github.com/dreschagin/securecam/internal/interfaces/http"
	"github.com/dreschagin/securecam/internal/interfaces/http/handler"
	"github.com/dreschagin/securecam/internal/interfaces/http/middleware"

	// Shared
	"github.com/dreschagin/securecam/pkg/config"
	"github.com/dreschagin/securecam/pkg/logger"

	_ "github.com/lib/pq"
)

func main() {
	// 1. Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализируем logger
	log := logger.New(cfg.Log.Level)
	log.Info("Starting SecureCam API", "service", cfg.Log.Service)

	// 3. CloudWatch

	var metricsPublisher applicationPort.MetricsPublisher
	var cloudwatchMetrics *cloudwatch.MetricsPublisher
	if cfg.CloudWatch.MetricsEnabled {
		publisherImpl, initErr := cloudwatch.NewMetricsPublisher(context.Background(),
			cloudwatch.MetricsPublisherConfig{
				Namespace:         cfg.CloudWatch.Namespace,
				Region:            cfg.CloudWatch.Region,
				Endpoint:          cfg.CloudWatch.Endpoint,
				AccessKeyID:       cfg.CloudWatch.AccessKeyID,
				SecretAccessKey:   cfg.CloudWatch.SecretAccessKey,
				DefaultDimensions: map[string]string{"Service": cfg.Log.Service},
				FlushInterval:     cfg.CloudWatch.FlushInterval,
				StorageResolution: 60,
				Logger:            log,
			})
		if initErr != nil {
			log.Error("Failed to initialize CloudWatch metrics publisher", initErr)
			os.Exit(1)
		}
		cloudwatchMetrics = publisherImpl
		metricsPublisher = publisherImpl
		log.Info("CloudWatch metrics publisher initialized")
	} else {
		log.Warn("CloudWatch metrics publishing is disabled")
	}

	var logsPublisher *cloudwatch.LogsPublisher
	if cfg.CloudWatch.LogsEnabled {
		publisherImpl, initErr := cloudwatch.NewLogsPublisher(context.Background(),
			cloudwatch.LogsPublisherConfig{
				LogGroupName:    cfg.CloudWatch.LogGroup,
				LogStreamName:   cfg.CloudWatch.LogStream,
				Service:         cfg.Log.Service,
				Region:          cfg.CloudWatch.Region,
				Endpoint:        cfg.CloudWatch.Endpoint,
				AccessKeyID:     cfg.CloudWatch.AccessKeyID,
				SecretAccessKey: cfg.CloudWatch.SecretAccessKey,
				FlushInterval:   cfg.CloudWatch.FlushInterval,
				AutoCreate:      true,
			})
		if initErr != nil {
			log.Error("Failed to initialize CloudWatch logs publisher", initErr)
			os.Exit(1)
		}
		logsPublisher = publisherImpl
		log.SetLogPublisher(logsPublisher)
		log.Info("CloudWatch logs publisher initialized")
	} else {
		log.Warn("CloudWatch logs publishing is disabled")
	}

	// 4. Prometheus
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	// 5. Локальный журнал медиа (SQLite) и spool

	if err := os.MkdirAll(cfg.Spool.Dir, 0o750); err != nil {
		log.Error("Failed to create spool dir", err, "dir", cfg.Spool.Dir)
		os.Exit(1)
	}
	mediaFiles, err := device.NewFileSource(cfg.Spool.Dir)
	if err != nil {
		log.Error("Failed to open spool", err)
		os.Exit(1)
	}
	headroom := device.NewHeadroom(cfg.Spool.Dir, cfg.Spool.MinFreeBytes)

	mediaDB, err := sqlite.Open(cfg.MediaStore.Path)
	if err != nil {
		log.Error("Failed to open media store", err, "path", cfg.MediaStore.Path)
		os.Exit(1)
	}
	defer mediaDB.Close()

	mediaStore, err := sqlite.NewMediaStore(mediaDB)
	if err != nil {
		log.Error("Failed to migrate media store", err)
		os.Exit(1)
	}

	// 6. Объектное хранилище

	var objectStorage applicationPort.ObjectStorage
	if cfg.S3.Enabled {
		storageImpl, initErr := s3storage.NewMediaStorage(context.Background(), s3storage.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			URLMode:         s3storage.URLMode(cfg.S3.URLMode),
			PresignedTTL:    cfg.S3.PresignedTTL,
		})
		if initErr != nil {
			log.Error("Failed to initialize media storage", initErr)
			os.Exit(1)
		}
		objectStorage = storageImpl
	} else {
		log.Warn("S3 storage is disabled, uploads will fail")
	}

	// 7. Каталог загруженных медиа

	var catalog applicationPort.MediaCatalog
	switch cfg.Catalog.Driver {
	case "dynamodb":
		repoImpl, initErr := dynamodbRepo.NewMediaCatalogRepository(context.Background(), dynamodbRepo.Config{
			TableName:       cfg.Catalog.DynamoTable,
			Region:          cfg.Catalog.DynamoRegion,
			Endpoint:        cfg.Catalog.DynamoEndpoint,
			AccessKeyID:     cfg.Catalog.AccessKeyID,
			SecretAccessKey: cfg.Catalog.SecretAccessKey,
		})
		if initErr != nil {
			log.Error("Failed to initialize media catalog", initErr)
			os.Exit(1)
		}
		catalog = repoImpl
		log.Info("Media catalog initialized", "provider", "dynamodb")
	case "postgres":
		db, initErr := openPostgres(cfg.Catalog.Postgres)
		if initErr != nil {
			log.Error("Failed to connect to database", initErr)
			os.Exit(1)
		}
		defer db.Close()

		repoImpl := postgres.NewMediaCatalogRepository(db)
		if err := repoImpl.EnsureSchema(context.Background()); err != nil {
			log.Error("Failed to prepare media catalog schema", err)
			os.Exit(1)
		}
		catalog = repoImpl
		log.Info("Media catalog initialized", "provider", "postgres")
	default:
		log.Warn("Media catalog is disabled")
	}

	// 8. Реестр грузов и пользователей

	backendClient := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	var loadRegistry applicationPort.LoadRegistry = backend.NewLoadsClient(backendClient)
	if cfg.Backend.BaseURL == "" {
		log.Warn("BACKEND_BASE_URL is not set, load checks are skipped")
	}
	if cfg.Redis.Enabled {
		cache, initErr := redisCache.NewRedisCache(context.Background(), redisCache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if initErr != nil {
			log.Warn("Failed to connect to Redis, continuing without loads cache", "error", initErr.Error())
		} else {
			defer cache.Close()
			loadRegistry = backend.NewCachedLoadRegistry(loadRegistry, cache, cfg.Redis.LoadsTTL, log)
			log.Info("Loads cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.LoadsTTL.String())
		}
	}
	userRegistry := backend.NewUsersClient(backendClient)

	// 9. NATS

	var eventPublisher applicationPort.EventPublisher
	if cfg.NATS.Enabled {
		stream := natsInfra.DefaultStream()
		stream.Name = cfg.NATS.Stream
		publisherImpl, initErr := natsInfra.NewPublisher(cfg.NATS.URL, stream, log)
		if initErr != nil {
			log.Warn("Failed to connect to NATS, continuing without event publishing", "error", initErr.Error())
		} else {
			eventPublisher = publisherImpl
			defer eventPublisher.Close()
			log.Info("NATS event publisher initialized", "url", cfg.NATS.URL)
		}
	} else {
		log.Warn("NATS event publishing is disabled")
	}

	// 10. Use cases

	uploadUC := usecase.NewUploadMediaBatchUseCase(
		usecase.UploadMediaBatchDeps{
			Storage:  objectStorage,
			Source:   mediaFiles,
			Catalog:  catalog,
			Store:    mediaStore,
			Events:   eventPublisher,
			Metrics:  metricsPublisher,
			Recorder: appMetrics,
		},
		usecase.UploadMediaBatchConfig{
			KeyPrefix:   cfg.S3.KeyPrefix,
			ItemTimeout: cfg.Upload.ItemTimeout,
		},
		log,
	)
	listLoadsUC := usecase.NewListLoadsUseCase(loadRegistry, log)
	listLoadMediaUC := usecase.NewListLoadMediaUseCase(objectStorage, usecase.ListLoadMediaConfig{
		KeyPrefix:    cfg.S3.KeyPrefix,
		SignedURLTTL: cfg.Upload.SignedURLTTL,
	}, log)
	deleteLoadMediaUC := usecase.NewDeleteLoadMediaUseCase(objectStorage, usecase.DeleteLoadMediaConfig{
		KeyPrefix: cfg.S3.KeyPrefix,
	}, log)
	signupUC := usecase.NewSignupUserUseCase(userRegistry, log)

	// 11. Сессии съемки

	hub := wsInfra.NewHub(log)
	sessions := capture.NewManager(
		capture.ManagerConfig{
			MaxVideoDuration: cfg.Capture.MaxVideoDuration,
			MaxSessions:      cfg.Capture.MaxSessions,
		},
		capture.Deps{
			Uploader: uploadUC,
			Loads:    loadRegistry,
			Store:    mediaStore,
			Sink:     hub,
		},
		func(sessionID string) (capture.Rig, error) {
			return device.NewSpoolRig(sessionID, device.SpoolConfig{
				Root:     cfg.Spool.Dir,
				MaxBytes: cfg.Spool.MaxMediaBytes,
				Headroom: headroom,
			})
		},
		log,
	)
	appMetrics.RegisterActiveSessions(registry, sessions.Count)

	// 12. HTTP

	var limiter *middleware.IPRateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	authConfig := middleware.AuthConfig{
		Enabled:     cfg.Security.AuthEnabled,
		BearerToken: cfg.Security.AuthToken,
		OnFailure:   appMetrics.AuthFailures.Inc,
	}

	router := httpInterface.NewRouter(
		httpInterface.Handlers{
			Sessions:    handler.NewSessionAPIHandler(sessions, cfg.Spool.MaxMediaBytes, log),
			Loads:       handler.NewLoadsAPIHandler(listLoadsUC, listLoadMediaUC, deleteLoadMediaUC, log),
			DeviceMedia: handler.NewDeviceMediaAPIHandler(mediaStore, mediaFiles, log),
			Auth:        handler.NewAuthAPIHandler(authConfig, signupUC, log),
			WebSocket:   handler.NewWebSocketHandler(hub, cfg.Security.AllowedOrigins, authConfig, log),
			Health: handler.NewHealthHandler(map[string]handler.ReadinessCheck{
				"spool": headroom.Check,
			}),
			Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		},
		appMetrics,
		limiter,
		cfg.Security,
		log,
	)

	// 13. Фоновые процессы

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)
	log.Info("WebSocket hub started")

	go sessions.Run(ctx, cfg.Capture.CleanupInterval, cfg.Capture.SessionMaxAge)

	hostCollector := collector.NewHostCollector(cfg.Spool.Dir)
	go hostCollector.Run(ctx, cfg.Host.CollectionInterval, metricsPublisher, log, appMetrics)

	if limiter != nil {
		go limiter.RunCleanup(ctx.Done())
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Канал для получения сигналов ОС
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", err)
			os.Exit(1)
		}
	}()

	// 14. Graceful shutdown

	<-sigChan
	log.Info("Shutdown signal received, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", err)
	}

	// Сессии закрываются после HTTP: незавершенные загрузки отменяются
	sessions.CloseAll()
	cancel()

	if cloudwatchMetrics != nil {
		log.Info("Flushing CloudWatch metrics buffer...")
		if err := cloudwatchMetrics.Close(shutdownCtx); err != nil {
			log.Error("Failed to flush CloudWatch metrics", err)
		}
	}

	log.Info("Server stopped gracefully")

	if logsPublisher != nil {
		log.SetLogPublisher(nil)
		if err := logsPublisher.Close(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to flush CloudWatch logs: %v\n", err)
		}
	}
}

func openPostgres(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
