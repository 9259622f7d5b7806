package server

import (
	"context"
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quantforge/QuantForge/backend/internal/api/http"
	"github.com/quantforge/QuantForge/backend/internal/api/middleware"
	"github.com/quantforge/QuantForge/backend/internal/degraded"
	"github.com/quantforge/QuantForge/backend/internal/infrastructure/config"
	"github.com/quantforge/QuantForge/backend/internal/infrastructure/monitoring"
	"github.com/quantforge/QuantForge/backend/internal/infrastructure/resilience"
	"github.com/quantforge/QuantForge/backend/internal/infrastructure/tracing"
	"github.com/quantforge/QuantForge/backend/internal/integrations/ai"
	"github.com/quantforge/QuantForge/backend/internal/integrations/marketdata"
	"github.com/quantforge/QuantForge/backend/internal/integrations/persistence"
	"github.com/quantforge/QuantForge/backend/internal/logging"
	"github.com/quantforge/QuantForge/backend/internal/ws"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	registry *resilience.Registry
	store    *degraded.Store
	pump     *marketdata.Pump
	feed     *marketdata.Feed
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics

	httpServer *nethttp.Server
	pumpCancel context.CancelFunc
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing QuantForge backend",
		zap.String("port", cfg.Server.Port),
		zap.String("ai_url", cfg.AI.BaseURL),
		zap.String("backend_url", cfg.Backend.BaseURL),
	)

	// Metrics first: the registry reports through them
	metrics := monitoring.NewMetrics()

	tracer := tracing.New("backend", logger.Logger)

	registry := resilience.NewRegistry(logger,
		resilience.WithWindowSize(cfg.Resilience.WindowSize),
		resilience.WithMetrics(metrics),
	)

	integrations := config.DefaultIntegrations()
	if cfg.Resilience.IntegrationsFile != "" {
		loaded, err := config.LoadIntegrations(cfg.Resilience.IntegrationsFile)
		if err != nil {
			logger.Warn("failed to load integrations file, using defaults",
				zap.String("path", cfg.Resilience.IntegrationsFile),
				zap.Error(err),
			)
		} else {
			integrations = loaded
		}
	}

	var critical []string
	for _, ic := range integrations {
		registry.Register(ic.Name, ic.Type, resilience.Settings{
			FailureThreshold: ic.FailureThreshold,
			SuccessThreshold: ic.SuccessThreshold,
			RecoveryTimeout:  time.Duration(ic.RecoveryTimeout),
		})
		if ic.Critical {
			critical = append(critical, ic.Name)
		}
	}
	logger.Info("Integrations registered",
		zap.Int("count", len(integrations)),
		zap.Strings("critical", critical),
	)

	store := degraded.NewStore(cfg.Resilience.StateFile)
	if store.Mode() == degraded.ModeOffline {
		logger.Warn("starting in offline mode", zap.String("reason", store.Reason()))
	}
	watcher := degraded.NewWatcher(registry, store, critical, logger)
	registry.AddListener(watcher)

	// Integration clients, all routed through the registry
	generator := ai.NewClient(cfg.AI, registry)
	backend := persistence.NewClient(cfg.Backend, registry)
	feed := marketdata.NewFeed(cfg.MarketData, registry, logger)
	pump := marketdata.NewPump(feed, cfg.MarketData.Symbols, logger)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(middleware.ErrorBoundary(watcher, logger))
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(nil))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(cfg.RateLimit))
	}

	// Create handlers
	handlers := http.NewHandlers(registry, store, watcher)
	strategies := http.NewStrategyHandlers(generator, backend, store, logger)
	market := http.NewMarketHandlers(pump)
	wsHandler := ws.NewHandler(registry, store, metrics, cfg.Resilience.StreamInterval, logger)

	// Health and breaker observability
	router.GET("/health", handlers.Health)
	router.GET("/health/integrations", handlers.GetAllHealth)
	router.GET("/health/integrations/:name", handlers.GetIntegrationHealth)
	router.GET("/health/breakers", handlers.GetBreakers)
	router.GET("/health/degraded", handlers.GetDegraded)
	router.GET("/health/summary", handlers.GetSummary)
	router.POST("/health/breakers/:name/reset", handlers.ResetBreaker)

	// Strategy operations
	router.POST("/strategies/generate", strategies.Generate)
	router.GET("/strategies/:id", strategies.Get)

	// Market data
	router.GET("/market/quotes", market.GetQuotes)

	// WebSocket health stream
	router.GET("/stream", wsHandler.HandleConnection)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		registry: registry,
		store:    store,
		pump:     pump,
		feed:     feed,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

// Run starts the quote pump and the HTTP server
func (s *Server) Run() error {
	pumpCtx, cancel := context.WithCancel(context.Background())
	s.pumpCancel = cancel
	go s.pump.Run(pumpCtx)

	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))

	s.httpServer = &nethttp.Server{
		Addr:    addr,
		Handler: s.router,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != nethttp.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the quote pump
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	if s.pumpCancel != nil {
		s.pumpCancel()
	}
	if err := s.feed.Close(); err != nil {
		s.logger.Warn("failed to close feed", zap.Error(err))
	}

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	s.logger.Sync()
	return err
}
