package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/sentinelai/sentinel-engine/pkg/auth"
	"github.com/sentinelai/sentinel-engine/pkg/config"
	"github.com/sentinelai/sentinel-engine/pkg/database"
	"github.com/sentinelai/sentinel-engine/pkg/events"
	"github.com/sentinelai/sentinel-engine/pkg/handlers"
	"github.com/sentinelai/sentinel-engine/pkg/logging"
	"github.com/sentinelai/sentinel-engine/pkg/mail"
	"github.com/sentinelai/sentinel-engine/pkg/middleware"
	"github.com/sentinelai/sentinel-engine/pkg/mlservice"
	"github.com/sentinelai/sentinel-engine/pkg/repositories"
	"github.com/sentinelai/sentinel-engine/pkg/services"
	"github.com/sentinelai/sentinel-engine/pkg/services/workqueue"
	"github.com/sentinelai/sentinel-engine/pkg/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

// shutdownTimeout bounds how long in-flight requests and queued work get to finish.
const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger := newLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("ml_service", cfg.MLService.BaseURL),
		zap.Bool("threat_alerts", cfg.Mail.ThreatAlert.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := database.Connect(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	if err := migrate(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Realtime events (optional)
	var publisher events.Publisher = events.Nop{}
	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, realtime events disabled", zap.Error(err))
	} else if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		publisher = events.NewRedisPublisher(redisClient, cfg.Redis.Channel, logger)
		logger.Info("Publishing realtime events", zap.String("channel", cfg.Redis.Channel))
	}

	// Auth
	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
		Audience:           cfg.Auth.Audience,
	})
	if err != nil {
		logger.Fatal("Failed to initialize JWKS client", zap.Error(err))
	}
	defer jwksClient.Close()
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(jwksClient, logger), logger)

	// Infrastructure
	queue := workqueue.New(logger,
		workqueue.WithMaxConcurrent(cfg.Dispatcher.MaxConcurrent),
		workqueue.WithTaskTimeout(time.Duration(cfg.Dispatcher.TimeoutSeconds)*time.Second))

	store, err := storage.NewLocalStore(cfg.Storage.Root)
	if err != nil {
		logger.Fatal("Failed to initialize document storage", zap.Error(err))
	}
	mlClient := mlservice.NewClient(cfg.MLService.BaseURL, cfg.MLService.Timeout(), logger)
	mailer := mail.NewSMTPSender(&cfg.Mail, logger)

	// Repositories
	threatRepo := repositories.NewThreatRepository()
	actionRepo := repositories.NewThreatActionRepository()
	incidentRepo := repositories.NewIncidentRepository()
	documentRepo := repositories.NewDocumentRepository()
	knowledgeRepo := repositories.NewKnowledgeEntryRepository()

	// Services
	generator := services.NewActionGenerator(actionRepo, logger)
	notifier := services.NewAlertNotifier(cfg.Mail.ThreatAlert, mailer, queue, logger)
	threatService := services.NewThreatService(threatRepo, actionRepo, incidentRepo, generator, notifier, publisher, logger)
	actionService := services.NewThreatActionService(actionRepo, threatRepo, generator, publisher, logger)
	incidentService := services.NewIncidentService(incidentRepo, threatRepo, logger)
	documentService := services.NewDocumentService(documentRepo, knowledgeRepo, store, mlClient, queue,
		database.NewScopeProvider(db), publisher, cfg.Storage.MaxUploadSize, logger)

	// Routes
	mux := http.NewServeMux()
	scope := database.WithScope(db, logger)

	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewThreatHandler(threatService, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewThreatActionHandler(actionService, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewIncidentHandler(incidentService, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewDocumentHandler(documentService, cfg.Storage.MaxUploadSize, logger).RegisterRoutes(mux, authMiddleware, scope)

	var handler http.Handler = mux
	handler = middleware.RequestLogger(logger)(handler)
	handler = middleware.Recoverer(logger)(handler)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting sentinel-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		stats := queue.Stats()
		logger.Warn("Background tasks abandoned at shutdown",
			zap.Error(err),
			zap.Int64("dropped", stats.Dropped))
	}
}

// newLogger returns a development logger for local runs and a JSON production logger elsewhere.
func newLogger(env string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "local" || env == "dev" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	return logger
}

// migrate applies the embedded schema through a short-lived database/sql handle.
func migrate(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return database.RunMigrations(sqlDB, logger)
}
