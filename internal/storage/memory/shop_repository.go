package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type shopRepositoryInMemory struct {
	mu    sync.RWMutex
	shops map[string]domain.Shop
}

// NewShopRepository создаёт in-memory хранилище профилей магазинов.
func NewShopRepository() domain.ShopRepository {
	return &shopRepositoryInMemory{shops: make(map[string]domain.Shop)}
}

func (r *shopRepositoryInMemory) Create(_ context.Context, shop domain.Shop) (domain.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if shop.ID == "" {
		shop.ID = uuid.NewString()
	}
	if _, ok := r.shops[shop.ID]; ok {
		return domain.Shop{}, fmt.Errorf("%w: %s", domain.ErrShopAlreadyExists, shop.ID)
	}
	now := time.Now().UTC()
	shop.CreatedAt = now
	shop.UpdatedAt = now
	r.shops[shop.ID] = shop.Clone()
	return shop, nil
}

func (r *shopRepositoryInMemory) Get(_ context.Context, id string) (domain.Shop, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	shop, ok := r.shops[id]
	if !ok {
		return domain.Shop{}, domain.ErrShopNotFound
	}
	return shop.Clone(), nil
}

func (r *shopRepositoryInMemory) Save(_ context.Context, shop domain.Shop) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.shops[shop.ID]; ok && shop.CreatedAt.IsZero() {
		shop.CreatedAt = existing.CreatedAt
	}
	shop.UpdatedAt = time.Now().UTC()
	r.shops[shop.ID] = shop.Clone()
	return nil
}

var _ domain.ShopRepository = (*shopRepositoryInMemory)(nil)
