// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/sessionvault/internal/authz"
	"github.com/mbd888/sessionvault/internal/circuitbreaker"
	"github.com/mbd888/sessionvault/internal/clock"
	"github.com/mbd888/sessionvault/internal/config"
	"github.com/mbd888/sessionvault/internal/experts"
	"github.com/mbd888/sessionvault/internal/health"
	"github.com/mbd888/sessionvault/internal/logging"
	"github.com/mbd888/sessionvault/internal/metrics"
	"github.com/mbd888/sessionvault/internal/notify"
	"github.com/mbd888/sessionvault/internal/ratelimit"
	"github.com/mbd888/sessionvault/internal/realtime"
	"github.com/mbd888/sessionvault/internal/security"
	"github.com/mbd888/sessionvault/internal/token"
	"github.com/mbd888/sessionvault/internal/traces"
	"github.com/mbd888/sessionvault/internal/txn"
	"github.com/mbd888/sessionvault/internal/validation"
	"github.com/mbd888/sessionvault/internal/vault"
	"github.com/mbd888/sessionvault/migrations"
)

// Version is reported by the health endpoint. Set by cmd/server.
var Version = "dev"

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg   *config.Config
	clock clock.Clock

	vault       *vault.Service
	monitor     *vault.Monitor
	ledger      *token.Ledger
	experts     *experts.Service
	dispatcher  *notify.Dispatcher
	realtimeHub *realtime.Hub
	verifier    *authz.Verifier
	rateLimiter *ratelimit.Limiter
	checks      *health.Registry

	db       *sql.DB // nil if using in-memory
	router   *gin.Engine
	httpSrv  *http.Server
	logger   *slog.Logger
	shutdown func(context.Context) error // trace exporter flush

	bgOnce       sync.Once
	bg           sync.WaitGroup
	cancelRunCtx context.CancelFunc // cancels background goroutines

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithClock sets the ledger clock (for testing)
func WithClock(c clock.Clock) Option {
	return func(s *Server) {
		s.clock = c
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		logger:   logging.New(cfg.LogLevel, cfg.LogFormat),
		clock:    clock.NewSystem(),
		checks:   health.NewRegistry(),
		shutdown: func(context.Context) error { return nil },
	}

	for _, opt := range opts {
		opt(s)
	}
	s.clock = clock.Monotonic(s.clock)

	ctx := context.Background()

	var (
		vaultStore   vault.Store
		expertStore  experts.Store
		tokenStore   token.Store
		tokenRunner  txn.Runner
		storageLabel string
	)

	// Storage: Postgres if DATABASE_URL set, otherwise in-memory. Every store
	// shares one unit runner so a booking and its transfers commit together.
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		if cfg.AutoMigrate {
			if err := migrations.Up(ctx, db); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
			s.logger.Info("database migrations applied")
		}

		s.db = db
		runner := txn.NewSQL(db)
		vaultStore = vault.NewPostgresStore(runner)
		expertStore = experts.NewPostgresStore(runner)
		tokenStore = token.NewPostgresStore(runner)
		tokenRunner = runner
		storageLabel = "postgres"

		s.checks.Register("database", health.PingChecker("database", db))
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		mem := txn.NewMemory()
		vaultStore = vault.NewMemoryStore(mem)
		expertStore = experts.NewMemoryStore(mem)
		tokenStore = token.NewMemoryStore(mem)
		tokenRunner = mem
		storageLabel = "memory"
		s.logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	// Notifications: log sink always, websocket hub, optional webhook.
	s.realtimeHub = realtime.NewHub(s.logger)
	s.dispatcher = notify.NewDispatcher(s.logger, cfg.NotifyQueueSize,
		notify.NewLogSink(s.logger),
		s.realtimeHub,
	).WithBreaker(circuitbreaker.New(5, time.Minute))
	if cfg.WebhookURL != "" {
		if cfg.IsProduction() {
			if err := security.ValidateWebhookURL(ctx, nil, cfg.WebhookURL); err != nil {
				s.closeDB()
				return nil, fmt.Errorf("invalid WEBHOOK_URL: %w", err)
			}
		}
		s.dispatcher.AddSink(notify.NewWebhookSink(cfg.WebhookURL, cfg.WebhookSecret))
		s.logger.Info("webhook notifications enabled")
	}
	emitter := notify.NewEmitter(s.dispatcher, s.clock)

	s.ledger = token.New(tokenStore, tokenRunner).WithClock(s.clock)
	s.vault = vault.NewService(vaultStore, s.ledger, cfg.CustodyAddress).
		WithClock(s.clock).
		WithNotifier(emitter)
	s.experts = experts.NewService(expertStore).
		WithClock(s.clock).
		WithNotifier(emitter)
	s.monitor = vault.NewMonitor(vaultStore, s.clock, cfg.MonitorInterval, s.logger)
	s.checks.Register("monitor", health.RunningChecker("monitor", s.monitor.Running))

	s.verifier = authz.NewVerifier(s.clock, cfg.SignatureMaxAge)
	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		BurstSize:         cfg.RateLimitBurst,
	}, nil)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	s.logger.Info("vault configured",
		"storage", storageLabel,
		"custody", cfg.CustodyAddress,
		"monitor_interval", cfg.MonitorInterval.String(),
	)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))
	s.router.Use(validation.RequestSizeMiddleware(s.cfg.MaxRequestBytes))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())

	// Signed requests carry their principal from here on.
	s.router.Use(s.verifier.Middleware())
	s.router.Use(s.rateLimiter.Middleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
		}
		if signer := authz.Principal(c.Request.Context()); signer != "" {
			attrs = append(attrs, "signer", signer)
		}

		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/ws", gin.WrapF(s.realtimeHub.HandleWebSocket))

	v1 := s.router.Group("/v1")
	vault.NewHandler(s.vault).RegisterRoutes(v1)
	experts.NewHandler(s.experts).RegisterRoutes(v1)

	v1.GET("/balances/:address", validation.AddressParamMiddleware(), s.balanceHandler)
	v1.GET("/balances/:address/transfers", validation.AddressParamMiddleware(), s.transfersHandler)

	if s.cfg.IsDevelopment() {
		v1.POST("/dev/mint", s.mintHandler)
		s.logger.Warn("development faucet enabled at POST /v1/dev/mint")
	}
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ok, statuses := s.checks.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !ok {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	if ok, statuses := s.checks.CheckAll(c.Request.Context()); !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": statuses})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// startBackground launches the hub, notification dispatcher, stale-booking
// monitor and DB stats collector. Idempotent.
func (s *Server) startBackground(ctx context.Context) {
	s.bgOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancelRunCtx = cancel

		s.bg.Add(3)
		go func() { defer s.bg.Done(); s.realtimeHub.Run(runCtx) }()
		go func() { defer s.bg.Done(); s.dispatcher.Start(runCtx) }()
		go func() { defer s.bg.Done(); s.monitor.Start(runCtx) }()

		if s.db != nil {
			metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
		}
	})
}

// stopBackground stops the background workers and waits for them. Queued
// notifications are flushed first.
func (s *Server) stopBackground() {
	s.monitor.Stop()
	if s.cancelRunCtx != nil {
		s.dispatcher.Stop()
		s.cancelRunCtx()
		s.bg.Wait()
	}
	s.rateLimiter.Stop()
}

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	shutdownTraces, err := traces.Init(ctx, s.cfg.OTLPEndpoint, Version, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.shutdown = shutdownTraces

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       s.cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.HTTPWriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.startBackground(ctx)
	s.ready.Store(true)
	s.logger.Info("server ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		s.stopBackground()
		s.closeDB()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var shutdownErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}

	s.stopBackground()
	s.logger.Info("background workers stopped")

	if err := s.shutdown(ctx); err != nil {
		s.logger.Error("trace exporter shutdown error", "error", err)
	}

	s.closeDB()
	s.logger.Info("server stopped")
	return shutdownErr
}

func (s *Server) closeDB() {
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	} else {
		s.logger.Info("database connection closed")
	}
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
