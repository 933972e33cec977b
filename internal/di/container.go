package di

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/internal/gateway"
	"github.com/Umairakbar1/business-backend-sub000/internal/handler"
	"github.com/Umairakbar1/business-backend-sub000/internal/notifier"
	"github.com/Umairakbar1/business-backend-sub000/internal/repository"
	"github.com/Umairakbar1/business-backend-sub000/internal/service"
	"github.com/Umairakbar1/business-backend-sub000/internal/worker"
	"github.com/Umairakbar1/business-backend-sub000/pkg/config"
	"github.com/Umairakbar1/business-backend-sub000/pkg/database"
	"github.com/Umairakbar1/business-backend-sub000/pkg/logger"
	pkgredis "github.com/Umairakbar1/business-backend-sub000/pkg/redis"
)

// Container holds all dependencies for the boost service
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *pkgredis.Client
	Clock domain.Clock

	// Repositories
	QueueRepo        repository.CategoryQueueRepository
	SubscriptionRepo repository.SubscriptionRepository
	BusinessRepo     repository.BusinessRepository
	Locker           repository.CategoryLocker

	// Integrations
	Gateway    gateway.PaymentGateway
	Dispatcher *notifier.Dispatcher

	// Services
	Store        *service.QueueStore
	Projector    *service.Projector
	BoostService service.BoostService
	Reconciler   service.Reconciler

	// Handlers
	HealthHandler  *handler.HealthHandler
	BoostHandler   *handler.BoostHandler
	WebhookHandler *handler.WebhookHandler

	// Workers
	ReconcileWorker *worker.ReconcileWorker
}

// ContainerConfig contains configuration for building the container.
// Nil repositories fall back to the in-memory implementations.
type ContainerConfig struct {
	DB               *database.PostgresDB
	Redis            *pkgredis.Client
	Clock            domain.Clock
	QueueRepo        repository.CategoryQueueRepository
	SubscriptionRepo repository.SubscriptionRepository
	BusinessRepo     repository.BusinessRepository
	Locker           repository.CategoryLocker
	Gateway          gateway.PaymentGateway
	Notifier         notifier.Notifier
	WebhookSecret    string

	StoreConfig      *service.QueueStoreConfig
	ServiceConfig    *service.BoostServiceConfig
	ReconcilerConfig *service.ReconcilerConfig
	WorkerConfig     *worker.ReconcileWorkerConfig
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:               cfg.DB,
		Redis:            cfg.Redis,
		Clock:            cfg.Clock,
		QueueRepo:        cfg.QueueRepo,
		SubscriptionRepo: cfg.SubscriptionRepo,
		BusinessRepo:     cfg.BusinessRepo,
		Locker:           cfg.Locker,
		Gateway:          cfg.Gateway,
	}

	if c.Clock == nil {
		c.Clock = domain.SystemClock{}
	}
	if c.QueueRepo == nil {
		c.QueueRepo = repository.NewMemoryCategoryQueueRepository()
	}
	if c.SubscriptionRepo == nil {
		c.SubscriptionRepo = repository.NewMemorySubscriptionRepository()
	}
	if c.BusinessRepo == nil {
		c.BusinessRepo = repository.NewMemoryBusinessRepository()
	}
	if c.Locker == nil {
		c.Locker = repository.NewLocalCategoryLocker()
	}
	if c.Gateway == nil {
		c.Gateway = gateway.NewMockGateway(gateway.DefaultMockGatewayConfig())
	}
	c.Dispatcher = notifier.NewDispatcher(cfg.Notifier, 0)

	// Initialize services
	c.Store = service.NewQueueStore(c.QueueRepo, c.Locker, c.Clock, cfg.StoreConfig)
	c.Projector = service.NewProjector(c.SubscriptionRepo, c.BusinessRepo, c.QueueRepo)
	c.BoostService = service.NewBoostService(
		c.Store,
		c.Projector,
		c.SubscriptionRepo,
		c.BusinessRepo,
		c.Gateway,
		c.Dispatcher,
		cfg.ServiceConfig,
	)
	c.Reconciler = service.NewReconciler(c.Store, c.Projector, c.Dispatcher, cfg.ReconcilerConfig)

	// Initialize handlers
	checks := make(map[string]handler.HealthChecker)
	if c.DB != nil {
		checks["postgres"] = c.DB
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis
	}
	c.HealthHandler = handler.NewHealthHandler(checks)
	c.BoostHandler = handler.NewBoostHandler(c.BoostService, c.Reconciler)
	c.WebhookHandler = handler.NewWebhookHandler(c.BoostService, cfg.WebhookSecret)

	c.ReconcileWorker = worker.NewReconcileWorker(cfg.WorkerConfig, c.Reconciler, c.BoostService, nil)

	return c
}

// Build opens the infrastructure selected by cfg and wires the container
func Build(ctx context.Context, cfg *config.Config) (*Container, error) {
	log := logger.Get()
	cc := &ContainerConfig{
		WebhookSecret: cfg.Stripe.WebhookSecret,
		StoreConfig: &service.QueueStoreConfig{
			BoostDuration:      cfg.Boost.Duration,
			MaxConflictRetries: cfg.Boost.MaxConflictRetries,
		},
		ServiceConfig: &service.BoostServiceConfig{
			Price:       cfg.Boost.Price,
			Currency:    cfg.Boost.Currency,
			RefundTiers: refundTiers(cfg.Boost.RefundTiers),
		},
		ReconcilerConfig: &service.ReconcilerConfig{
			Workers: cfg.Boost.ReconcileWorkers,
		},
		WorkerConfig: &worker.ReconcileWorkerConfig{
			Interval:            cfg.Boost.ReconcileInterval,
			RefundRetryInterval: cfg.Boost.RefundRetryInterval,
		},
	}

	// closeOnErr releases whatever was opened before a later step failed
	var opened []func()
	closeOnErr := func(err error) (*Container, error) {
		for i := len(opened) - 1; i >= 0; i-- {
			opened[i]()
		}
		return nil, err
	}

	if cfg.Storage.Driver == "postgres" {
		db, err := database.NewPostgres(ctx, &database.PostgresConfig{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.DBName,
			SSLMode:         cfg.Database.SSLMode,
			MaxConns:        int32(cfg.Database.MaxOpenConns),
			MinConns:        int32(cfg.Database.MaxIdleConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnectTimeout:  5 * time.Second,
			MaxRetries:      3,
			RetryInterval:   time.Second,
			EnableTracing:   cfg.OTel.Enabled,
		})
		if err != nil {
			return closeOnErr(fmt.Errorf("database connection failed: %w", err))
		}
		opened = append(opened, db.Close)

		if err := db.Migrate(ctx, repository.Schema); err != nil {
			return closeOnErr(err)
		}

		cc.DB = db
		cc.QueueRepo = repository.NewPostgresCategoryQueueRepository(db.Pool())
		cc.SubscriptionRepo = repository.NewPostgresSubscriptionRepository(db.Pool())
		cc.BusinessRepo = repository.NewPostgresBusinessRepository(db.Pool())
		log.Info("database connected", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)
	}

	if cfg.Storage.Driver == "postgres" || cfg.Boost.DistributedLocking {
		client, err := pkgredis.NewClient(ctx, &pkgredis.Config{
			Host:          cfg.Redis.Host,
			Port:          cfg.Redis.Port,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			PoolSize:      cfg.Redis.PoolSize,
			MinIdleConns:  cfg.Redis.MinIdleConns,
			DialTimeout:   cfg.Redis.DialTimeout,
			ReadTimeout:   cfg.Redis.ReadTimeout,
			WriteTimeout:  cfg.Redis.WriteTimeout,
			MaxRetries:    3,
			RetryInterval: 100 * time.Millisecond,
		})
		switch {
		case err != nil && cfg.Boost.DistributedLocking:
			return closeOnErr(fmt.Errorf("redis connection failed: %w", err))
		case err != nil:
			log.Warn("redis unavailable, idempotency keys disabled", "error", err)
		default:
			opened = append(opened, func() { _ = client.Close() })
			cc.Redis = client
			if cfg.Boost.DistributedLocking {
				cc.Locker = repository.NewRedisCategoryLocker(client, cfg.Boost.LockTTL)
			}
			log.Info("redis connected", "addr", cfg.Redis.Addr(), "distributed_locking", cfg.Boost.DistributedLocking)
		}
	}

	switch cfg.Stripe.Gateway {
	case "stripe":
		gw, err := gateway.NewStripeGateway(&gateway.StripeGatewayConfig{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
		})
		if err != nil {
			return closeOnErr(err)
		}
		cc.Gateway = gw
	default:
		log.Warn("using mock payment gateway")
		cc.Gateway = gateway.NewMockGateway(gateway.DefaultMockGatewayConfig())
	}

	switch cfg.Notifier.Backend {
	case "kafka":
		n, err := notifier.NewKafkaNotifier(&notifier.KafkaNotifierConfig{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Notifier.Topic,
			ClientID:    cfg.Kafka.ClientID,
			ServiceName: cfg.App.Name,
		})
		if err != nil {
			log.Warn("kafka notifier unavailable, using no-op notifier", "error", err)
			break
		}
		cc.Notifier = n
	case "asynq":
		cc.Notifier = notifier.NewAsynqNotifier(AsynqRedisOpt(cfg), cfg.Notifier.Queue)
	}

	return NewContainer(cc), nil
}

// AsynqRedisOpt returns the asynq connection settings for the configured Redis
func AsynqRedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// Close releases the notifier, Redis and database connections
func (c *Container) Close() {
	if err := c.Dispatcher.Close(); err != nil {
		logger.Get().Warn("failed to close notifier", "error", err)
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logger.Get().Warn("failed to close redis", "error", err)
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}

func refundTiers(tiers []config.RefundTier) []domain.RefundTier {
	if len(tiers) == 0 {
		return nil
	}
	out := make([]domain.RefundTier, len(tiers))
	for i, t := range tiers {
		out[i] = domain.RefundTier{Below: t.Below, Percent: t.Percent}
	}
	return out
}
