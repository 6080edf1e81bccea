package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/PriceTracker/internal/auth"
	"github.com/utafrali/PriceTracker/internal/backend"
	"github.com/utafrali/PriceTracker/internal/config"
	"github.com/utafrali/PriceTracker/internal/event"
	handler "github.com/utafrali/PriceTracker/internal/handler/http"
	"github.com/utafrali/PriceTracker/internal/imageprobe"
	"github.com/utafrali/PriceTracker/internal/pricefeed"
	"github.com/utafrali/PriceTracker/internal/realtime"
	"github.com/utafrali/PriceTracker/internal/repository/memory"
	"github.com/utafrali/PriceTracker/internal/repository/postgres"
	"github.com/utafrali/PriceTracker/internal/view/authscreen"
	"github.com/utafrali/PriceTracker/internal/view/dashboard"
	"github.com/utafrali/PriceTracker/migrations"
	"github.com/utafrali/PriceTracker/pkg/database"
	"github.com/utafrali/PriceTracker/pkg/health"
	"github.com/utafrali/PriceTracker/pkg/httpclient"
	pkgkafka "github.com/utafrali/PriceTracker/pkg/kafka"
	"github.com/utafrali/PriceTracker/pkg/middleware"
	"github.com/utafrali/PriceTracker/pkg/tracing"
)

const serviceName = "pricetracker"

// App wires together all dependencies and runs the price tracker.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	feed           *pricefeed.Feed
	registry       *dashboard.Registry
	limiter        *middleware.RateLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// The memory driver needs no external infrastructure; the postgres driver
// connects to PostgreSQL, Redis and Kafka.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		Headers:        cfg.OTELHeaders,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessExpiry)

	var svc *backend.Service
	if cfg.UsesPostgres() {
		svc, err = a.initInfrastructure(ctx, jwtManager, healthHandler)
		if err != nil {
			_ = a.Shutdown()
			return nil, err
		}
	} else {
		store := memory.NewStore()
		svc = backend.NewService(
			store.Products(), store.PriceHistory(), store.Users(),
			realtime.NewMemoryBus(), nil,
			jwtManager, auth.NewMemoryDenylist(), logger,
		)
		logger.Warn("using in-memory backend; data is lost on restart")
	}

	if cfg.UsesPostgres() && cfg.PriceFeedEnabled {
		store := pkgkafka.NewRedisIdempotencyStore(a.redis, pricefeed.IdempotencyPrefix, pricefeed.IdempotencyTTL)
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		a.feed = pricefeed.New(
			pricefeed.Config{Brokers: cfg.KafkaBrokers, GroupID: cfg.PriceFeedGroupID},
			pricefeed.NewHandler(svc, logger),
			store, a.dlq, logger,
		)
		logger.Info("price feed consumer initialized",
			slog.String("topic", event.TopicPriceObserved),
			slog.String("group", cfg.PriceFeedGroupID),
		)
	}

	opts := dashboard.Options{ReloadDebounce: cfg.ReloadDebounce}
	if cfg.ImageProbeEnabled {
		probeCfg := httpclient.DefaultConfig()
		probeCfg.Timeout = cfg.ImageProbeTimeout
		opts.ImageChecker = imageprobe.NewDefault(probeCfg, logger)
	}
	a.registry = dashboard.NewRegistry(svc, opts, cfg.IdleTTL, logger)

	a.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	corsCfg.Environment = cfg.Environment

	router := handler.NewRouter(handler.RouterConfig{
		Auth:       svc,
		Dashboards: a.registry,
		Appearance: authscreen.New(authscreen.Options{
			AppName:      cfg.AuthAppName,
			Tagline:      cfg.AuthTagline,
			PrimaryColor: cfg.AuthPrimaryColor,
			AccentColor:  cfg.AuthAccentColor,
			Providers:    cfg.AuthProviders,
		}),
		Health:      healthHandler,
		RateLimiter: a.limiter,
		CORS:        corsCfg,
		Logger:      logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Unmounting closes the event streams, which would otherwise hold
	// Shutdown until its deadline.
	a.httpServer.RegisterOnShutdown(a.registry.Close)
	return a, nil
}

// initInfrastructure connects PostgreSQL, Redis and Kafka and builds the
// backend on them.
func (a *App) initInfrastructure(ctx context.Context, jwtManager *auth.JWTManager, healthHandler *health.Handler) (*backend.Service, error) {
	cfg, logger := a.cfg, a.logger

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBMaxConnLifetime,
		MaxConnIdleTime: cfg.DBMaxConnIdleTime,
	}
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThreshold)*time.Millisecond, logger)
	}

	// Initialize Redis for realtime fan-out, token revocation and event dedup.
	redisCfg := database.DefaultRedisConfig()
	redisCfg.Host = cfg.RedisHost
	redisCfg.Port = cfg.RedisPort
	redisCfg.Password = cfg.RedisPassword
	redisCfg.DB = cfg.RedisDB
	rdb, err := database.NewRedisClient(ctx, redisCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = rdb
	logger.Info("connected to Redis", slog.String("addr", redisCfg.Addr()))

	// Initialize Kafka producer.
	a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Health checks.
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return a.producer.Ping(ctx)
	})

	return backend.NewService(
		postgres.NewProductRepository(pool),
		postgres.NewPriceHistoryRepository(pool),
		postgres.NewUserRepository(pool),
		realtime.NewRedisBus(rdb, logger),
		event.NewProducer(a.producer, logger),
		jwtManager,
		auth.NewRedisDenylist(rdb),
		logger,
	), nil
}

// Handler returns the HTTP handler of the application.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server, the idle dashboard sweeper and the price feed,
// and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	bgCtx, bgCancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.registry.Run(bgCtx)
	}()

	if a.feed != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.feed.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("price feed: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	bgCancel()
	wg.Wait()

	if err := a.Shutdown(); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Dashboards (already closed by the server's shutdown hook)
// 3. Price feed consumer and its dead-letter producer
// 4. Tracer (flush pending spans)
// 5. Kafka producer, Redis client, PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	if a.httpServer != nil {
		httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer httpCancel()
		if err := a.httpServer.Shutdown(httpCtx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.limiter != nil {
		a.limiter.Stop()
	}

	// 2. Unmount every dashboard.
	if a.registry != nil {
		a.registry.Close()
	}

	// 3. Stop consuming price observations.
	if a.feed != nil {
		if err := a.feed.Close(); err != nil {
			a.logger.Error("price feed close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("dlq producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Flush pending spans.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 5. Close infrastructure clients.
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
