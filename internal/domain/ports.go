package domain

import (
	"context"
	"io"
	"time"
)

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// ShopRepository хранит профили магазинов.
type ShopRepository interface {
	// Create регистрирует магазин; ID назначается хранилищем, если пуст.
	// Возвращает ErrShopAlreadyExists, если ID занят.
	Create(ctx context.Context, shop Shop) (Shop, error)
	// Get возвращает магазин или ErrShopNotFound.
	Get(ctx context.Context, id string) (Shop, error)
	// Save перезаписывает профиль магазина целиком (upsert).
	Save(ctx context.Context, shop Shop) error
}

// ClerkRepository хранит учётные записи сотрудников.
type ClerkRepository interface {
	// Get возвращает сотрудника или ErrClerkNotFound.
	Get(ctx context.Context, id string) (Clerk, error)
	// CreateIfAbsent создаёт запись, если её нет, и возвращает сохранённую версию.
	CreateIfAbsent(ctx context.Context, clerk Clerk) (Clerk, error)
}

// ImageStorage сохраняет изображения меню и возвращает ссылку для скачивания.
type ImageStorage interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
