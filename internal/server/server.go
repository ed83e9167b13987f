// Package server exposes the risk registry over HTTP.
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
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/mbd888/riskoracle/internal/auth"
	"github.com/mbd888/riskoracle/internal/config"
	"github.com/mbd888/riskoracle/internal/events"
	"github.com/mbd888/riskoracle/internal/health"
	"github.com/mbd888/riskoracle/internal/logging"
	"github.com/mbd888/riskoracle/internal/metrics"
	"github.com/mbd888/riskoracle/internal/oracle"
	"github.com/mbd888/riskoracle/internal/ratelimit"
	"github.com/mbd888/riskoracle/internal/realtime"
	"github.com/mbd888/riskoracle/internal/webhooks"
	"github.com/mbd888/riskoracle/migrations"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	version     string
	registry    *oracle.Registry
	store       oracle.Store
	clock       oracle.Clock
	publisher   events.Publisher
	webhooks    *webhooks.Publisher // nil unless WEBHOOK_URLS is set
	dispatcher  *events.Dispatcher
	realtimeHub *realtime.Hub
	health      *health.Registry
	verifier    *auth.Verifier
	rateLimiter *ratelimit.Limiter
	db          *sql.DB       // nil unless DATABASE_URL is set
	redis       *redis.Client // nil unless REDIS_URL is used
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger

	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run
	shutdownGrace time.Duration

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

// WithStore overrides store selection from config (for testing)
func WithStore(store oracle.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithClock overrides the registry clock (for testing)
func WithClock(clock oracle.Clock) Option {
	return func(s *Server) {
		s.clock = clock
	}
}

// WithPublisher overrides the event publisher chosen from config
func WithPublisher(p events.Publisher) Option {
	return func(s *Server) {
		s.publisher = p
	}
}

// WithVersion sets the version reported by /health
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (_ *Server, err error) {
	s := &Server{
		cfg:           cfg,
		version:       "dev",
		clock:         time.Now,
		logger:        logging.New(cfg.LogLevel, cfg.LogFormat),
		shutdownGrace: 5 * time.Second,
	}
	defer func() {
		if err != nil {
			s.closeBackends()
		}
	}()

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	if s.store == nil {
		store, err := s.openStore(ctx)
		if err != nil {
			return nil, err
		}
		s.store = store
	}

	// Realtime feed
	s.realtimeHub = realtime.NewHub(s.logger, cfg.CORSOrigins...)

	// Event publishing to Kafka and webhooks, whichever are configured
	if s.publisher == nil {
		var pubs []events.Publisher
		if len(cfg.KafkaBrokers) > 0 {
			pubs = append(pubs, events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic))
			s.logger.Info("publishing risk updates to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		}
		if len(cfg.WebhookURLs) > 0 {
			s.webhooks = webhooks.New(cfg.WebhookURLs, cfg.WebhookSecret, webhooks.WithLogger(s.logger))
			pubs = append(pubs, s.webhooks)
			s.logger.Info("delivering risk updates to webhooks", "endpoints", len(cfg.WebhookURLs), "signed", cfg.WebhookSecret != "")
		}
		s.publisher = events.Multi(pubs...)
	}
	s.dispatcher = events.NewDispatcher(s.publisher, s.logger,
		events.WithDropHook(metrics.EventsDroppedTotal.Inc),
	)

	registry, err := oracle.Open(ctx, s.store,
		oracle.WithClock(s.clock),
		oracle.WithListener(metrics.RecordUpdate),
		oracle.WithListener(s.realtimeHub.Listener()),
		oracle.WithListener(s.dispatcher.Listener()),
	)
	if err != nil {
		return nil, err
	}
	s.registry = registry
	metrics.Seed(registry.View())

	if err := s.initializeFromConfig(ctx); err != nil {
		return nil, err
	}

	s.verifier = auth.NewVerifier(cfg.SignatureMaxSkew)

	s.health = health.NewRegistry()
	s.health.Register("store", health.StoreChecker(s.registry))
	s.health.Register("freshness", health.FreshnessChecker(s.registry.LastUpdate, cfg.StaleAfter, nil))
	if s.webhooks != nil {
		s.health.RegisterAdvisory("webhooks", webhookChecker(s.webhooks))
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	// Match on the escaped path so ids containing '/' reach :validator intact.
	s.router.UseRawPath = true
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// openStore picks the backing store: Postgres if DATABASE_URL is set,
// else Redis if REDIS_URL is set, else in-memory.
func (s *Server) openStore(ctx context.Context) (oracle.Store, error) {
	switch {
	case s.cfg.DatabaseURL != "":
		db, err := sql.Open("postgres", s.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		if s.cfg.MigrateOnStart {
			if err := migrations.Up(ctx, db); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to apply migrations: %w", err)
			}
			s.logger.Info("database migrations applied")
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(s.cfg.DatabaseURL))
		return oracle.NewPostgresStore(db), nil

	case s.cfg.RedisURL != "":
		opts, err := redis.ParseURL(s.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		s.redis = client
		s.logger.Info("using Redis storage", "url", maskDSN(s.cfg.RedisURL), "prefix", s.cfg.RedisPrefix)
		return oracle.NewRedisStore(client, s.cfg.RedisPrefix), nil

	default:
		s.logger.Warn("no DATABASE_URL or REDIS_URL set, registry state is in-memory only")
		return oracle.NewMemoryStore(), nil
	}
}

// initializeFromConfig records ADMIN_ADDRESS as the administrator, the way
// a contract deployment records its deployer.
func (s *Server) initializeFromConfig(ctx context.Context) error {
	admin, ok := s.cfg.Admin()
	if !ok {
		if !s.registry.Initialized() {
			s.logger.Warn("registry is not initialized; the first signed POST /v1/oracle/initialize becomes admin")
		}
		return nil
	}

	err := s.registry.Initialize(ctx, admin)
	switch {
	case err == nil:
		s.logger.Info("registry initialized from config", "admin", admin.Hex())
	case errors.Is(err, oracle.ErrAlreadyInitialized):
		if current, _ := s.registry.Admin(); current != admin {
			s.logger.Warn("ADMIN_ADDRESS ignored, registry already has an admin",
				"configured", admin.Hex(),
				"admin", current.Hex(),
			)
		}
	default:
		return fmt.Errorf("failed to initialize registry: %w", err)
	}
	return nil
}

// webhookChecker reports unhealthy while any endpoint's circuit is open.
func webhookChecker(p *webhooks.Publisher) health.Checker {
	return func(context.Context) health.Status {
		var open []string
		for _, st := range p.Status() {
			if st.Circuit != "closed" {
				open = append(open, st.URL)
			}
		}
		if len(open) > 0 {
			return health.Status{Name: "webhooks", Healthy: false, Detail: fmt.Sprintf("circuit not closed for %v", open)}
		}
		return health.Status{Name: "webhooks", Healthy: true}
	}
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
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
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		admin, initialized := s.registry.Admin()
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"initialized", initialized,
			"admin", admin.Hex(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)
	go s.dispatcher.Start(runCtx)

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
		cancel()
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

	// Give load balancers time to stop sending traffic
	time.Sleep(s.shutdownGrace)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop the hub and flush queued events once no more writes can arrive.
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
		select {
		case <-s.dispatcher.Done():
			s.logger.Info("event dispatcher drained", "dropped", s.dispatcher.Dropped())
		case <-ctx.Done():
			s.logger.Warn("event dispatcher did not drain before deadline")
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	s.closeBackends()

	s.logger.Info("server stopped")
	return nil
}

// closeBackends releases the database pool or Redis client opened for the
// store, if any.
func (s *Server) closeBackends() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
		s.redis = nil
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
		s.db = nil
	}
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Registry returns the risk registry served by s.
func (s *Server) Registry() *oracle.Registry {
	return s.registry
}
