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
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/txinsight/internal/chainrpc"
	"github.com/mbd888/txinsight/internal/chains"
	"github.com/mbd888/txinsight/internal/circuitbreaker"
	"github.com/mbd888/txinsight/internal/config"
	"github.com/mbd888/txinsight/internal/detect"
	"github.com/mbd888/txinsight/internal/health"
	"github.com/mbd888/txinsight/internal/identity"
	"github.com/mbd888/txinsight/internal/idgen"
	"github.com/mbd888/txinsight/internal/logging"
	"github.com/mbd888/txinsight/internal/metrics"
	"github.com/mbd888/txinsight/internal/ratelimit"
	"github.com/mbd888/txinsight/internal/screening"
	"github.com/mbd888/txinsight/internal/security"
	"github.com/mbd888/txinsight/internal/snapstate"
	"github.com/mbd888/txinsight/internal/validation"
)

// Version is reported by /health.
var Version = "dev"

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	chains      *chains.Registry
	fetcher     screening.Fetcher
	engine      *screening.Engine
	store       snapstate.Store
	registrar   *identity.Registrar
	code        screening.CodeReader
	rpc         *chainrpc.Pool // nil when RPC_URLS is empty or a reader was injected
	health      *health.Registry
	rateLimiter *ratelimit.Limiter
	db          *sql.DB // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger
	drainDelay  time.Duration

	cancelRunCtx context.CancelFunc

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

// WithFetcher replaces the detection API client (for testing)
func WithFetcher(f screening.Fetcher) Option {
	return func(s *Server) {
		s.fetcher = f
	}
}

// WithStore replaces the credential store
func WithStore(store snapstate.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithCodeReader replaces the per-chain RPC pool
func WithCodeReader(code screening.CodeReader) Option {
	return func(s *Server) {
		s.code = code
	}
}

// WithChains replaces the chain registry
func WithChains(reg *chains.Registry) Option {
	return func(s *Server) {
		s.chains = reg
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		health:     health.NewRegistry(),
		drainDelay: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.chains == nil {
		reg, err := loadChains(cfg.ChainsFile)
		if err != nil {
			return nil, err
		}
		s.chains = reg
	}

	if err := validateUpstreams(cfg); err != nil {
		return nil, err
	}

	if err := s.initStorage(); err != nil {
		return nil, err
	}

	if s.code == nil && len(cfg.RPCURLs) > 0 {
		pool, err := chainrpc.NewPool(cfg.RPCURLs)
		if err != nil {
			return nil, fmt.Errorf("failed to configure RPC endpoints: %w", err)
		}
		s.rpc = pool
		s.code = pool
		s.health.Register("rpc", health.Ping("rpc", pool.Verify))
		s.logger.Info("bytecode lookups enabled", "chains", pool.Chains())
	} else if s.code == nil {
		s.logger.Warn("RPC_URLS not set, destinations on supported chains cannot be classified")
	}

	keys := detect.Keyring{
		Default: detect.Credentials{AppID: cfg.DetectAppID, AppSecret: cfg.DetectAppSecret},
		Native:  detect.Credentials{AppID: cfg.DetectNativeAppID, AppSecret: cfg.DetectNativeAppSecret},
	}
	s.health.Register("detect_credentials", health.Static("detect_credentials",
		keys.Default.Valid() && keys.Native.Valid(), ""))

	if s.fetcher == nil {
		clientOpts := []detect.Option{
			detect.WithTimeout(cfg.DetectTimeout),
			detect.WithLogger(s.logger),
		}
		if cfg.BreakerThreshold > 0 {
			breaker := circuitbreaker.New(cfg.BreakerThreshold, cfg.BreakerCooldown)
			clientOpts = append(clientOpts, detect.WithBreaker(breaker))
			s.health.Register("detect_breaker", breakerCheck(breaker))
			s.logger.Info("detection circuit breaker enabled",
				"threshold", cfg.BreakerThreshold,
				"cooldown", cfg.BreakerCooldown,
			)
		}
		s.fetcher = detect.NewClient(cfg.DetectBaseURL, keys, clientOpts...)
	}

	s.engine = screening.NewEngine(s.fetcher, s.chains, screening.Features{
		SupportedChains:    cfg.SupportedChains,
		AddressLabels:      cfg.AddressLabels,
		SignatureScreening: cfg.SignatureScreening,
	})
	s.registrar = identity.NewRegistrar(s.store)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// validateUpstreams rejects plaintext or internal upstream endpoints in
// production. Elsewhere a local node or mock API is normal.
func validateUpstreams(cfg *config.Config) error {
	if !cfg.IsProduction() {
		return nil
	}
	if err := security.ValidateUpstreamURL(cfg.DetectBaseURL, false); err != nil {
		return fmt.Errorf("DETECT_BASE_URL: %w", err)
	}
	for chainID, endpoint := range cfg.RPCURLs {
		if err := security.ValidateUpstreamURL(endpoint, false); err != nil {
			return fmt.Errorf("RPC_URLS[%s]: %w", chainID, err)
		}
	}
	return nil
}

// breakerCheck reports the detection endpoints that are currently failing
// fast.
func breakerCheck(b *circuitbreaker.Breaker) health.Checker {
	return func(context.Context) health.Status {
		open := b.Open()
		if len(open) == 0 {
			return health.Status{Name: "detect_breaker", Healthy: true}
		}
		names := make([]string, len(open))
		for i, business := range open {
			names[i] = string(business)
		}
		return health.Status{Name: "detect_breaker", Healthy: false, Detail: "open: " + strings.Join(names, ", ")}
	}
}

func loadChains(path string) (*chains.Registry, error) {
	if path == "" {
		return chains.Default(), nil
	}
	reg, err := chains.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain registry: %w", err)
	}
	return reg, nil
}

// initStorage picks Postgres when DATABASE_URL is set, otherwise memory.
func (s *Server) initStorage() error {
	if s.store != nil {
		return nil
	}
	if s.cfg.DatabaseURL == "" {
		s.store = snapstate.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
		return nil
	}

	db, err := sql.Open("postgres", s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	store := snapstate.NewPostgresStore(db)
	s.db = db
	s.store = store
	s.health.Register("database", health.Ping("database", store.Ping))
	s.logger.Info("using PostgreSQL storage", "url", maskDSN(s.cfg.DatabaseURL))
	return nil
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
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	if s.cfg.RateLimitRPM > 0 {
		rl := ratelimit.DefaultConfig()
		rl.RequestsPerMinute = s.cfg.RateLimitRPM
		s.rateLimiter = ratelimit.New(rl)
		s.router.Use(s.rateLimiter.Middleware(ratelimit.ByClientIP))
	}

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Keep an id assigned upstream (load balancer, wallet)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 128 {
			requestID = idgen.Nonce()
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

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
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

	v1 := s.router.Group("/v1")
	v1.Use(validation.AddressParamMiddleware())

	v1.POST("/insights/transaction", s.transactionInsightHandler)
	v1.POST("/insights/signature", s.signatureInsightHandler)
	v1.POST("/keys", s.registerKeyHandler)
	v1.GET("/keys/:address", s.keyStatusHandler)
	v1.GET("/chains", s.chainsHandler)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second, // detection calls have no client timeout by default
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"supported_chains", s.cfg.SupportedChains,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown drains in-flight requests and releases resources.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Let load balancers observe the failing readiness probe.
	time.Sleep(s.drainDelay)

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.close()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.rpc != nil {
		s.rpc.Close()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
