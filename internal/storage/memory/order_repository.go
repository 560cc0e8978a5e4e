package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/feed"
)

// OrderRepository: in-memory хранилище заказов с живым каналом изменений.
type OrderRepository struct {
	mu    sync.RWMutex
	items map[string]domain.Order
	hub   *feed.Hub
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
// Каждая запись публикует сигнал в канал изменений магазина.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		items: make(map[string]domain.Order),
		hub:   feed.NewHub(),
	}
}

// Watch подписывает на изменения заказов магазина.
func (r *OrderRepository) Watch(ctx context.Context, shopID string) (<-chan domain.FeedEvent, error) {
	return r.hub.Watch(ctx, shopID)
}

// Hub возвращает канал изменений (в тестах используется для имитации сбоев).
func (r *OrderRepository) Hub() *feed.Hub {
	return r.hub
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.items[order.ID]; exists {
		r.mu.Unlock()
		return domain.ErrOrderAlreadyExists
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[order.ID] = order.Clone()
	r.mu.Unlock()

	r.hub.Publish(order.ShopID)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *OrderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// ListByShop возвращает заказы магазина, новые сверху.
func (r *OrderRepository) ListByShop(ctx context.Context, shopID string) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.items {
		if order.ShopID != shopID {
			continue
		}
		result = append(result, order.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].PurchaseTime.Equal(result[j].PurchaseTime) {
			return result[i].PurchaseTime.After(result[j].PurchaseTime)
		}
		return result[i].ID > result[j].ID
	})

	return result, nil
}

// UpdateStatus меняет статус, если он всё ещё равен from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.Lock()
	current, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if current.Status != from {
		r.mu.Unlock()
		return domain.Order{}, domain.ErrStatusConflict
	}
	current.Status = to
	current.Version++
	current.UpdatedAt = at
	r.items[id] = current
	r.mu.Unlock()

	r.hub.Publish(current.ShopID)
	return current.Clone(), nil
}

// Delete удаляет заказ. Используется политикой хранения и тестами.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	order, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return domain.ErrOrderNotFound
	}
	delete(r.items, id)
	r.mu.Unlock()

	r.hub.Publish(order.ShopID)
	return nil
}

// PurgeTerminal удаляет до limit завершённых заказов, купленных раньше before.
func (r *OrderRepository) PurgeTerminal(ctx context.Context, before time.Time, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if limit <= 0 {
		return 0, nil
	}

	r.mu.Lock()
	candidates := make([]domain.Order, 0)
	for _, order := range r.items {
		if order.Status.Settled() && order.PurchaseTime.Before(before) {
			candidates = append(candidates, order)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].PurchaseTime.Before(candidates[j].PurchaseTime)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	touched := make(map[string]struct{})
	for _, order := range candidates {
		delete(r.items, order.ID)
		touched[order.ShopID] = struct{}{}
	}
	r.mu.Unlock()

	for shopID := range touched {
		r.hub.Publish(shopID)
	}
	return len(candidates), nil
}

var (
	_ domain.OrderRepository = (*OrderRepository)(nil)
	_ domain.OrderFeed       = (*OrderRepository)(nil)
)
