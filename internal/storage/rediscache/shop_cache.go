// Package rediscache кэширует профили магазинов в Redis поверх основного хранилища.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultTTL       = 5 * time.Minute
	defaultKeyPrefix = "storefront:shop:"
)

// Option настраивает ShopCache.
type Option func(*ShopCache)

// WithTTL задаёт время жизни записи в кэше.
func WithTTL(ttl time.Duration) Option {
	return func(c *ShopCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithKeyPrefix задаёт префикс ключей.
func WithKeyPrefix(prefix string) Option {
	return func(c *ShopCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *ShopCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// ShopCache: cache-aside декоратор ShopRepository.
// Ошибки Redis не ломают запросы: кэш пропускается, а сбой пишется в лог.
type ShopCache struct {
	next   domain.ShopRepository
	client redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *log.Entry
}

// NewShopCache оборачивает репозиторий магазинов кэшем Redis.
func NewShopCache(next domain.ShopRepository, client redis.Cmdable, options ...Option) *ShopCache {
	c := &ShopCache{
		next:   next,
		client: client,
		ttl:    defaultTTL,
		prefix: defaultKeyPrefix,
		logger: log.WithField("component", "shop-cache"),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *ShopCache) key(id string) string {
	return c.prefix + id
}

// Get читает профиль из кэша, при промахе идёт в хранилище и заполняет кэш.
func (c *ShopCache) Get(ctx context.Context, id string) (domain.Shop, error) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	switch {
	case err == nil:
		var shop domain.Shop
		decodeErr := json.Unmarshal(raw, &shop)
		if decodeErr == nil {
			return shop, nil
		}
		c.logger.WithError(decodeErr).WithField("shop_id", id).Warn("drop undecodable cached shop")
		c.invalidate(ctx, id)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.WithError(err).WithField("shop_id", id).Warn("redis get failed, bypassing cache")
	}

	shop, err := c.next.Get(ctx, id)
	if err != nil {
		return domain.Shop{}, err
	}
	c.store(ctx, shop)
	return shop, nil
}

// Create создаёт магазин в хранилище и сразу кладёт его в кэш.
func (c *ShopCache) Create(ctx context.Context, shop domain.Shop) (domain.Shop, error) {
	created, err := c.next.Create(ctx, shop)
	if err != nil {
		return domain.Shop{}, err
	}
	c.store(ctx, created)
	return created, nil
}

// Save сохраняет магазин и сбрасывает запись в кэше.
func (c *ShopCache) Save(ctx context.Context, shop domain.Shop) error {
	if err := c.next.Save(ctx, shop); err != nil {
		return err
	}
	c.invalidate(ctx, shop.ID)
	return nil
}

func (c *ShopCache) store(ctx context.Context, shop domain.Shop) {
	raw, err := json.Marshal(shop)
	if err != nil {
		c.logger.WithError(err).WithField("shop_id", shop.ID).Warn("encode shop for cache")
		return
	}
	if err := c.client.Set(ctx, c.key(shop.ID), raw, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("shop_id", shop.ID).Warn("redis set failed")
	}
}

func (c *ShopCache) invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		c.logger.WithError(err).WithField("shop_id", id).Warn("redis del failed")
	}
}

var _ domain.ShopRepository = (*ShopCache)(nil)
