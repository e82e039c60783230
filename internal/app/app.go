// Package app wires the table ordering service together.
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
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/TableOrder/internal/backend"
	"github.com/utafrali/TableOrder/internal/config"
	"github.com/utafrali/TableOrder/internal/event"
	handler "github.com/utafrali/TableOrder/internal/handler/http"
	"github.com/utafrali/TableOrder/internal/payment"
	"github.com/utafrali/TableOrder/internal/repository/postgres"
	redisrepo "github.com/utafrali/TableOrder/internal/repository/redis"
	"github.com/utafrali/TableOrder/internal/service"
	"github.com/utafrali/TableOrder/internal/worker"
	"github.com/utafrali/TableOrder/migrations"
	"github.com/utafrali/TableOrder/pkg/database"
	"github.com/utafrali/TableOrder/pkg/health"
	"github.com/utafrali/TableOrder/pkg/httpclient"
	pkgkafka "github.com/utafrali/TableOrder/pkg/kafka"
	"github.com/utafrali/TableOrder/pkg/middleware"
	"github.com/utafrali/TableOrder/pkg/tracing"
)

const serviceName = "tableorder"

// App wires together all dependencies and runs the table ordering service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	consumer       *pkgkafka.Consumer
	dlq            *pkgkafka.DLQProducer
	checkout       *service.CheckoutService
	reconciler     *worker.Reconciler
	limiter        *middleware.Limiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	traceCfg := tracing.DefaultConfig(serviceName)
	traceCfg.Environment = cfg.Environment
	traceCfg.OTLPEndpoint = cfg.OTELEndpoint
	traceCfg.SampleRate = cfg.OTELSampleRate
	traceCfg.Enabled = cfg.OTELEnabled
	tracerShutdown, err := tracing.InitTracer(ctx, traceCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		URL:             cfg.PostgresURL,
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, serviceName)

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	// Initialize Redis.
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		URL:      cfg.RedisURL,
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("host", cfg.RedisHost), slog.Int("port", cfg.RedisPort))
	database.RegisterRedisMetrics(redisClient, serviceName)

	// Kafka producer, or a no-op publisher when no brokers are configured.
	var (
		publisher pkgkafka.Publisher = pkgkafka.NopPublisher{}
		producer  *pkgkafka.Producer
	)
	if cfg.KafkaEnabled() {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers, serviceName), logger)
		publisher = producer
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Warn("KAFKA_BROKERS not set, domain events are discarded")
	}
	eventProducer := event.NewProducer(publisher, logger)

	// Restaurant backend client with circuit breaker.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.BackendTimeout
	baseClient := httpclient.New(httpCfg)

	cbCfg := httpclient.DefaultCircuitBreakerConfig("restaurant-backend")
	cbCfg.MaxRequests = cfg.CBMaxRequests
	cbCfg.Interval = time.Duration(cfg.CBInterval) * time.Second
	cbCfg.Timeout = time.Duration(cfg.CBTimeout) * time.Second
	cbCfg.FailureRatio = cfg.CBFailureRatio
	cbCfg.MinRequests = cfg.CBMinRequests
	cbClient := httpclient.NewCircuitBreakerClient(baseClient, cbCfg, logger).
		WithFallback(backend.CircuitOpenFallback)
	logger.Info("circuit breaker initialized",
		slog.String("name", cbCfg.Name),
		slog.Uint64("max_requests", uint64(cbCfg.MaxRequests)),
		slog.Int("timeout_seconds", cfg.CBTimeout),
	)
	backendClient := backend.NewClient(cbClient, cfg.BackendURL, logger)

	confirmer, err := newConfirmer(cfg)
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, err
	}
	logger.Info("payment confirmer initialized", slog.String("provider", confirmer.Name()))

	// Build the dependency graph.
	cartStore := redisrepo.NewCartStore(redisClient, cfg.CartTTL)
	historyStore := redisrepo.NewHistoryStore(redisClient, cfg.HistoryTTL)
	restaurantCache := redisrepo.NewRestaurantCache(redisClient, cfg.RestaurantTTL)
	attemptRepo := postgres.NewAttemptRepository(pool)

	cartService := service.NewCartService(cartStore, eventProducer, logger)
	checkoutService := service.NewCheckoutService(service.CheckoutDeps{
		Attempts:        attemptRepo,
		Carts:           cartService,
		History:         historyStore,
		Restaurants:     service.NewRestaurantDirectory(restaurantCache, backendClient, logger),
		Backend:         backendClient,
		Confirmer:       confirmer,
		Publisher:       eventProducer,
		PollPolicy:      service.PollPolicy{Interval: cfg.PollInterval, MaxAttempts: cfg.PollMaxAttempts},
		DefaultCurrency: cfg.DefaultCurrency,
		IdleTimeout:     cfg.IdleTimeout,
		Logger:          logger,
	})
	historyService := service.NewHistoryService(historyStore, backendClient, checkoutService, logger)

	reconciler := worker.NewReconciler(checkoutService, worker.ReconcilerConfig{
		Interval:  cfg.ReconcileInterval,
		OlderThan: cfg.ReconcileOlderThan,
		BatchSize: cfg.ReconcileBatchSize,
	}, logger)

	// Payment status events relayed from the backend webhook.
	var (
		consumer *pkgkafka.Consumer
		dlq      *pkgkafka.DLQProducer
	)
	if cfg.KafkaEnabled() {
		var opts []pkgkafka.ConsumerOption
		if cfg.KafkaEnableDLQ {
			dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
			opts = append(opts, pkgkafka.WithDLQ(dlq))
		}
		dedup := pkgkafka.NewRedisIdempotencyStore(redisClient, serviceName+":events:", cfg.KafkaDedupTTL)
		consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:    cfg.KafkaBrokers,
			GroupID:    cfg.KafkaGroupID,
			Topic:      event.TopicPaymentStatus,
			MaxRetries: cfg.KafkaConsumerRetry,
		}, event.NewConsumer(checkoutService, logger).Handler(dedup), logger, opts...)
	}

	var limiter *middleware.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = middleware.NewLimiter(middleware.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
			TTL:   cfg.RateLimitTTL,
		})
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	if producer != nil {
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return producer.Ping(ctx)
		})
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	corsCfg.Environment = cfg.Environment
	if cfg.TableTokenSecret == "" {
		logger.Warn("TABLE_TOKEN_SECRET is not set; any client can address any table")
	}

	// HTTP router.
	router := handler.NewRouter(handler.RouterDeps{
		Carts:            cartService,
		Checkouts:        checkoutService,
		History:          historyService,
		Health:           healthHandler,
		Limiter:          limiter,
		TableTokenSecret: []byte(cfg.TableTokenSecret),
		CORS:             corsCfg,
		PprofCIDRs:       cfg.PprofAllowedCIDRs,
		Logger:           logger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		consumer:       consumer,
		dlq:            dlq,
		checkout:       checkoutService,
		reconciler:     reconciler,
		limiter:        limiter,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// newConfirmer picks the payment confirmer configured by PAYMENT_PROVIDER.
func newConfirmer(cfg *config.Config) (payment.Confirmer, error) {
	switch cfg.PaymentProvider {
	case config.ProviderStripe:
		var opts []payment.StripeOption
		if cfg.StripeAccount != "" {
			opts = append(opts, payment.WithConnectedAccount(cfg.StripeAccount))
		}
		return payment.NewStripeConfirmer(cfg.StripeSecretKey, opts...), nil
	case config.ProviderMock:
		return payment.NewMockConfirmer(cfg.MockConfirmDelay), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.PaymentProvider)
	}
}

// Run starts the HTTP server and the background workers and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	a.bgCancel = bgCancel

	a.goBackground(func() { a.reconciler.Run(bgCtx) })
	if a.limiter != nil {
		a.goBackground(func() { a.limiter.Run(bgCtx) })
	}
	if a.consumer != nil {
		a.goBackground(func() {
			if err := a.consumer.Start(bgCtx); err != nil {
				a.logger.Error("payment status consumer stopped", slog.String("error", err.Error()))
			}
		})
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

func (a *App) goBackground(fn func()) {
	a.bgWG.Add(1)
	go func() {
		defer a.bgWG.Done()
		fn()
	}()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Background workers and the payment status consumer
// 3. In-flight order polls
// 4. Tracer (flush pending spans)
// 5. Kafka producers
// 6. Redis and PostgreSQL
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Stop the reconciler, the limiter janitor and the consumer.
	if a.bgCancel != nil {
		a.bgCancel()
	}
	a.bgWG.Wait()

	// 3. Cancel order polls. Attempts left in polling are picked up by the
	// reconciler after the next start.
	a.checkout.Shutdown()

	// 4. Flush pending spans.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 5. Close Kafka writers.
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 6. Close Redis and PostgreSQL.
	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
