package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/storage/images"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	"github.com/vladislavdragonenkov/storefront/internal/storage/rediscache"
)

// runtimeDependencies: хранилища и проверки здоровья, выбранные по конфигурации.
type runtimeDependencies struct {
	orders       domain.OrderRepository
	feed         domain.OrderFeed
	outboxRepo   domain.OutboxRepository
	timelineRepo domain.TimelineRepository
	shopRepo     domain.ShopRepository
	clerkRepo    domain.ClerkRepository
	images       domain.ImageStorage

	storageChecker healthcheck.Checker
	feedChecker    healthcheck.Checker
	cacheChecker   healthcheck.Checker

	// runFeed запускает фоновое чтение ленты изменений (только postgres).
	runFeed func(ctx context.Context)
	closeFn func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	var (
		deps *runtimeDependencies
		err  error
	)

	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case "", StorageDriverMemory:
		deps = initMemoryStorage()
	case StorageDriverPostgres:
		deps, err = initPostgresStorage(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
	if err != nil {
		return nil, err
	}

	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		deps.shopRepo = rediscache.NewShopCache(deps.shopRepo, client,
			rediscache.WithTTL(cfg.ShopCacheTTL),
			rediscache.WithLogger(logger.WithField("layer", "shop-cache")),
		)
		deps.cacheChecker = healthcheck.NewRedisChecker(client)
		deps.addCloser(client.Close)
		logger.WithField("addr", addr).Info("redis shop cache enabled")
	}

	if bucket := strings.TrimSpace(cfg.S3Bucket); bucket != "" {
		storage, err := images.NewS3Storage(ctx, images.S3Config{
			Bucket:        bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			PublicBaseURL: cfg.ImagePublicBaseURL,
		}, logger.WithField("layer", "images"))
		if err != nil {
			_ = deps.close()
			return nil, fmt.Errorf("init image storage: %w", err)
		}
		deps.images = storage
		logger.WithField("bucket", bucket).Info("s3 image storage enabled")
	} else {
		deps.images = images.NewMemoryStorage(cfg.ImagePublicBaseURL)
	}

	return deps, nil
}

func initMemoryStorage() *runtimeDependencies {
	orders := memory.NewOrderRepository()
	return &runtimeDependencies{
		orders:       orders,
		feed:         orders,
		outboxRepo:   memory.NewOutboxRepository(),
		timelineRepo: memory.NewTimelineRepository(),
		shopRepo:     memory.NewShopRepository(),
		clerkRepo:    memory.NewClerkRepository(),
		storageChecker: healthcheck.NewSimpleChecker("storage", func(context.Context) error {
			return nil
		}),
	}
}

func initPostgresStorage(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required for postgres storage driver")
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	orderFeed := postgres.NewOrderFeed(store.DSN(), postgres.WithFeedLogger(logger.WithField("layer", "order-feed")))

	deps := &runtimeDependencies{
		orders:         postgres.NewOrderRepository(store),
		feed:           orderFeed,
		outboxRepo:     postgres.NewOutboxRepository(store),
		timelineRepo:   postgres.NewTimelineRepository(store),
		shopRepo:       postgres.NewShopRepository(store),
		clerkRepo:      postgres.NewClerkRepository(store),
		storageChecker: healthcheck.NewPingChecker("postgres", store),
		feedChecker: healthcheck.NewSimpleChecker("order-feed", func(context.Context) error {
			if !orderFeed.Connected() {
				return errors.New("listen connection is down")
			}
			return nil
		}),
		runFeed: orderFeed.Run,
	}
	deps.addCloser(store.Close)

	logger.Info("postgres storage initialized")
	return deps, nil
}

func (d *runtimeDependencies) addCloser(fn func() error) {
	prev := d.closeFn
	d.closeFn = func() error {
		err := fn()
		if prev != nil {
			err = errors.Join(err, prev())
		}
		return err
	}
}

func (d *runtimeDependencies) close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}
