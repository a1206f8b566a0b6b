// Package server assembles the HTTP API: storage selection, service
// construction, middleware, the route table, and graceful shutdown.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/kalvisk/namura/internal/billing"
	"github.com/kalvisk/namura/internal/config"
	"github.com/kalvisk/namura/internal/identity"
	"github.com/kalvisk/namura/internal/lease"
	"github.com/kalvisk/namura/internal/logging"
	"github.com/kalvisk/namura/internal/maintenance"
	"github.com/kalvisk/namura/internal/metrics"
	"github.com/kalvisk/namura/internal/notify"
	"github.com/kalvisk/namura/internal/org"
	"github.com/kalvisk/namura/internal/property"
	"github.com/kalvisk/namura/internal/subscription"
	"github.com/kalvisk/namura/internal/traces"
	"github.com/kalvisk/namura/internal/validation"
)

// Server wraps the HTTP server and its wired services.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sql.DB // nil when running on memory stores
	router   *gin.Engine
	httpSrv  *http.Server
	provider *identity.Provider

	dispatcher notify.Dispatcher

	orgs        *org.Service
	resolver    *org.Resolver
	subs        *subscription.Service
	properties  *property.Service
	leases      *lease.Service
	maintenance *maintenance.Service
	billing     *billing.Service

	orgStore  org.Store
	propStore property.Store

	tracerShutdown func(context.Context) error

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithDispatcher sets a custom notification dispatcher (for testing).
func WithDispatcher(d notify.Dispatcher) Option {
	return func(s *Server) {
		s.dispatcher = d
	}
}

// New creates a server instance with all services wired.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.dispatcher == nil {
		s.dispatcher = &notify.LogDispatcher{Logger: s.logger}
	}

	invitationTTL := time.Duration(cfg.InvitationTTLDays) * 24 * time.Hour

	var (
		identityStore identity.Store
		subStore      subscription.Store
		leaseStore    lease.Store
		maintStore    maintenance.Store
		billStore     billing.Store
	)

	// Postgres when DATABASE_URL is set, in-memory otherwise.
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		identityStore = identity.NewPostgresStore(db)
		s.orgStore = org.NewPostgresStore(db)
		subStore = subscription.NewPostgresStore(db)
		s.propStore = property.NewPostgresStore(db)
		leaseStore = lease.NewPostgresStore(db)
		maintStore = maintenance.NewPostgresStore(db)
		billStore = billing.NewPostgresStore(db)
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")

		identityStore = identity.NewMemoryStore()
		s.orgStore = org.NewMemoryStore()
		subStore = subscription.NewMemoryStore()
		s.propStore = property.NewMemoryStore()
		leaseStore = lease.NewMemoryStore()
		maintStore = maintenance.NewMemoryStore()
		billStore = billing.NewMemoryStore()
	}

	s.provider = identity.NewProvider(identityStore)

	s.subs = subscription.NewService(subStore)
	gate := subscription.NewGate(subStore)

	s.orgs = org.NewService(s.orgStore, gate, s.dispatcher, cfg.SiteURL, invitationTTL)
	s.resolver = org.NewResolver(s.orgStore)

	s.properties = property.NewService(s.propStore, gate)
	s.leases = lease.NewService(leaseStore, s.properties, s.dispatcher, cfg.SiteURL, invitationTTL)
	s.maintenance = maintenance.NewService(maintStore, s.properties)
	s.billing = billing.NewService(billStore, s.leases, s.properties, s.maintenance,
		identityStore, s.dispatcher, cfg.SiteURL, cfg.InvoiceDueDays)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides the password in a connection string for logging.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.String()
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered", "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Internal server error",
		})
	}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
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

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	orgHandler := org.NewHandler(s.orgs, s.orgStore)
	subHandler := subscription.NewHandler(s.subs)
	propHandler := property.NewHandler(s.properties, s.propStore)
	leaseHandler := lease.NewHandler(s.leases)
	maintHandler := maintenance.NewHandler(s.maintenance)
	billHandler := billing.NewHandler(s.billing)

	leasePortal := lease.NewPortalHandler(s.leases, s.properties)
	maintPortal := maintenance.NewPortalHandler(s.maintenance, s.leases)
	billPortal := billing.NewPortalHandler(s.billing)

	v1 := s.router.Group("/v1")
	v1.Use(identity.Middleware(s.provider))

	// Public catalogue
	subHandler.RegisterRoutes(v1)

	// Everything else requires a principal
	authed := v1.Group("")
	authed.Use(identity.RequireAuth())

	orgHandler.RegisterRoutes(authed)
	leaseHandler.RegisterRoutes(authed)

	// Organization-scoped routes: slug resolution + membership enforcement
	orgs := authed.Group("/orgs/:slug")
	orgs.Use(org.Middleware(s.resolver))
	orgHandler.RegisterOrgRoutes(orgs)
	subHandler.RegisterOrgRoutes(orgs)
	propHandler.RegisterOrgRoutes(orgs)
	leaseHandler.RegisterOrgRoutes(orgs)
	maintHandler.RegisterOrgRoutes(orgs)
	billHandler.RegisterOrgRoutes(orgs)

	// Tenant portal: no membership, access derived from leases
	portal := authed.Group("/portal")
	leasePortal.RegisterRoutes(portal)
	maintPortal.RegisterRoutes(portal)
	billPortal.RegisterRoutes(portal)
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "in-memory"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
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
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal or a
// fatal server error.
func (s *Server) Run(ctx context.Context) error {
	shutdownTracer, err := traces.Init(ctx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.tracerShutdown = shutdownTracer
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

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

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.healthy.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("http shutdown failed", "error", err)
		}
	}

	if s.tracerShutdown != nil {
		if err := s.tracerShutdown(ctx); err != nil {
			s.logger.Warn("tracer shutdown failed", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("database close failed", "error", err)
		}
	}

	s.logger.Info("server stopped")
	return nil
}
