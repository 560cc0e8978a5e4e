package domain

import (
	"context"
	"time"
)

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ от checkout. Возвращает ErrOrderAlreadyExists, если ID занят.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// ListByShop возвращает все заказы магазина. Порядок не гарантируется.
	ListByShop(ctx context.Context, shopID string) ([]Order, error)
	// UpdateStatus условно меняет только статус: запись применяется, если текущий статус равен from.
	// Возвращает ErrOrderNotFound или ErrStatusConflict.
	UpdateStatus(ctx context.Context, id string, from, to OrderStatus, at time.Time) (Order, error)
	// PurgeTerminal удаляет завершённые заказы (OrderStatus.Settled), купленные раньше before.
	PurgeTerminal(ctx context.Context, before time.Time, limit int) (int, error)
}

// FeedEvent: сигнал о том, что набор заказов магазина изменился.
// Err != nil означает сбой канала изменений; после восстановления приходит обычный сигнал.
type FeedEvent struct {
	ShopID string
	Err    error
}

// OrderFeed: живой поток изменений заказов, отфильтрованный по магазину.
type OrderFeed interface {
	// Watch регистрирует наблюдателя. Канал закрывается после отмены ctx.
	Watch(ctx context.Context, shopID string) (<-chan FeedEvent, error)
}
