package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"dreampuff/internal/assistant"
	"dreampuff/internal/config"
	"dreampuff/internal/domain"
	"dreampuff/internal/feed"
	custommiddleware "dreampuff/internal/middleware"
	"dreampuff/internal/repository"
	"dreampuff/internal/service"
	"dreampuff/internal/session"
	"dreampuff/internal/transport"
	"dreampuff/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// saveGuardTTL bounds how long a crashed save can block the next one
const saveGuardTTL = 30 * time.Second

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     *sql.DB
	redis  *redis.Client

	ledger     service.LedgerService
	reports    service.ReportService
	sessions   *session.Controller
	hub        *feed.Hub
	listener   *repository.ProductChangeListener
	assistantC interface{ Close() error }

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger, db *sql.DB) (*Server, error) {
	loc := cfg.Session.Location()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	productRepo := repository.NewProductRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	reportRepo := repository.NewReportRepository(db)
	sessionRecordRepo := repository.NewSessionRecordRepository(db)

	// Initialize services
	authService := service.NewAuthService(userRepo, refreshTokenRepo, cfg.JWT, logger)
	ledgerService := service.NewLedgerService(
		productRepo, categoryRepo, ledgerRepo, historyRepo,
		session.NewRedisSaveGuard(redisClient, saveGuardTTL),
		logger,
	)
	reportService := service.NewReportService(reportRepo, ledgerRepo, loc, logger)

	executor, closer, err := newExecutor(ctx, cfg.Assistant, logger)
	if err != nil {
		redisClient.Close()
		return nil, err
	}
	assistantService := service.NewAssistantService(executor, ledgerService, logger)

	notifications := session.NewRedisFeed(redisClient)
	sessions := session.NewController(
		session.NewRedisStore(redisClient),
		session.NewLoggingNotifier(notifications, logger),
		authService,
		sessionRecordRepo,
		loc,
		logger,
	)

	hub := feed.NewHub()

	// Initialize handlers
	authHandler := transport.NewAuthHandler(authService, sessions, cfg.Server.AllowRegistration, logger)
	sessionHandler := transport.NewSessionHandler(sessions, notifications, sessionRecordRepo, logger)
	productHandler := transport.NewProductHandler(ledgerService, hub, logger)
	ledgerHandler := transport.NewLedgerHandler(ledgerService, logger)
	reportHandler := transport.NewReportHandler(reportService, loc, logger)
	chatHandler := transport.NewChatHandler(assistantService, logger)
	stockHandler := transport.NewStockHandler(ledgerService, reportService, logger)

	// Create router
	router := chi.NewRouter()

	router.Use(custommiddleware.DefaultMiddlewareStack()...)
	router.Use(custommiddleware.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.Server.Env == "development"))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, catalogLoaded := hub.Latest()
		custommiddleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"status":             "ok",
			"catalog_loaded":     catalogLoaded,
			"stream_subscribers": hub.Subscribers(),
		})
	})

	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	management := custommiddleware.RequirePosition(logger, domain.PositionManagement)

	// Integration API for automation workflows
	stockHandler.RegisterRoutes(router,
		custommiddleware.APITokenMiddleware(cfg.API.SecretToken, logger),
		custommiddleware.RateLimitMiddleware(redisClient,
			custommiddleware.IntegrationRateLimit(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowSeconds), logger),
	)

	authHandler.RegisterRoutes(router, authMiddleware)

	// Staff app
	router.Route("/api/app", func(r chi.Router) {
		r.Use(authMiddleware)

		sessionHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.SessionGate(sessions, logger))

			productHandler.RegisterRoutes(r, management)
			ledgerHandler.RegisterRoutes(r)
			reportHandler.RegisterRoutes(r, management)
			chatHandler.RegisterRoutes(r, custommiddleware.RateLimitMiddleware(redisClient,
				custommiddleware.ChatRateLimit(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowSeconds), logger))

			r.With(management).Group(sessionHandler.RegisterLogRoutes)
		})
	})

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config:     cfg,
		logger:     logger,
		db:         db,
		redis:      redisClient,
		ledger:     ledgerService,
		reports:    reportService,
		sessions:   sessions,
		hub:        hub,
		listener:   repository.NewProductChangeListener(db, logger),
		assistantC: closer,
	}

	// Open product streams would otherwise hold Shutdown until its deadline.
	server.RegisterOnShutdown(hub.Close)

	return server, nil
}

// newExecutor picks the assistant backend; the returned closer may be nil
func newExecutor(ctx context.Context, cfg config.AssistantConfig, logger *zap.Logger) (assistant.Executor, interface{ Close() error }, error) {
	if cfg.Provider == "gemini" {
		executor, err := assistant.NewGeminiExecutor(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		switch {
		case err == nil:
			return executor, executor, nil
		case errors.Is(err, assistant.ErrNotConfigured):
			// Chat answers 503 until a key is provided.
			logger.Warn("Gemini API key missing, assistant disabled")
		default:
			return nil, nil, fmt.Errorf("failed to create assistant: %w", err)
		}
	}
	return assistant.NewWebhookExecutor(cfg.WebhookURL, cfg.WebhookToken, cfg.Timeout, logger), nil, nil
}

// Start launches the product stream publisher and, when enabled, the daily reset
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.publishProducts(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.listener.Run(ctx, s.publishProducts)
	}()

	if s.config.Session.DailyResetEnabled {
		reset := worker.NewDailyReset(s.reports, s.config.Session.Location(), s.logger)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			reset.Run(ctx)
		}()
	}
}

// publishProducts reloads the catalog and pushes it to stream subscribers
func (s *Server) publishProducts(ctx context.Context) {
	products, err := s.ledger.ListProducts(ctx, nil)
	if err != nil {
		s.logger.Error("Failed to reload products for stream", zap.Error(err))
		return
	}
	s.hub.Publish(feed.Snapshot(products))
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.sessions.Wait()
	s.hub.Close()

	if s.assistantC != nil {
		if err := s.assistantC.Close(); err != nil {
			s.logger.Error("Failed to close assistant client", zap.Error(err))
		}
	}

	if err := s.redis.Close(); err != nil {
		s.logger.Error("Failed to close redis connection", zap.Error(err))
	}

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
