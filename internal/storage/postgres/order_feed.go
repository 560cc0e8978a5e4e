package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/feed"
)

const (
	// OrderChangesChannel: канал NOTIFY, в который триггер orders пишет shop_id.
	OrderChangesChannel = "storefront_order_changes"

	defaultReconnectDelay    = 500 * time.Millisecond
	defaultMaxReconnectDelay = 15 * time.Second
)

// listenConn: часть *pgx.Conn, нужная для LISTEN.
type listenConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

type connectFunc func(ctx context.Context, dsn string) (listenConn, error)

// FeedOption настраивает OrderFeed.
type FeedOption func(*OrderFeed)

// WithFeedLogger задаёт logger для канала изменений.
func WithFeedLogger(logger *log.Entry) FeedOption {
	return func(f *OrderFeed) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithReconnectDelay задаёт начальную и максимальную задержку переподключения.
func WithReconnectDelay(initial, max time.Duration) FeedOption {
	return func(f *OrderFeed) {
		if initial > 0 {
			f.reconnectDelay = initial
		}
		if max >= f.reconnectDelay {
			f.maxReconnectDelay = max
		}
	}
}

func withConnectFunc(connect connectFunc) FeedOption {
	return func(f *OrderFeed) {
		f.connect = connect
	}
}

// OrderFeed слушает NOTIFY от триггера таблицы orders на выделенном соединении
// и раздаёт сигналы подписчикам по shop_id. При обрыве соединения подписчикам
// приходит ошибка, а после переподключения сигнал на перечитывание.
type OrderFeed struct {
	dsn               string
	hub               *feed.Hub
	logger            *log.Entry
	connect           connectFunc
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	connected         atomic.Bool
}

// NewOrderFeed создаёт канал изменений поверх PostgreSQL LISTEN/NOTIFY.
func NewOrderFeed(dsn string, options ...FeedOption) *OrderFeed {
	f := &OrderFeed{
		dsn:               dsn,
		hub:               feed.NewHub(),
		logger:            log.WithField("component", "order-feed"),
		connect:           dialListenConn,
		reconnectDelay:    defaultReconnectDelay,
		maxReconnectDelay: defaultMaxReconnectDelay,
	}
	for _, option := range options {
		option(f)
	}
	return f
}

func dialListenConn(ctx context.Context, dsn string) (listenConn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Watch подписывает на изменения заказов магазина.
func (f *OrderFeed) Watch(ctx context.Context, shopID string) (<-chan domain.FeedEvent, error) {
	return f.hub.Watch(ctx, shopID)
}

// Connected сообщает, активно ли LISTEN-соединение.
func (f *OrderFeed) Connected() bool {
	return f.connected.Load()
}

// Run держит LISTEN-соединение до отмены ctx, переподключаясь с экспоненциальной задержкой.
func (f *OrderFeed) Run(ctx context.Context) {
	defer f.hub.Close()

	delay := f.reconnectDelay
	everConnected := false

	for ctx.Err() == nil {
		conn, err := f.listen(ctx)
		if err == nil {
			if everConnected {
				f.logger.Info("order feed reconnected, resyncing subscribers")
				f.hub.Resync()
			}
			everConnected = true
			delay = f.reconnectDelay
			f.connected.Store(true)

			err = f.consume(ctx, conn)

			f.connected.Store(false)
			closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			_ = conn.Close(closeCtx)
			cancel()
		}
		if ctx.Err() != nil {
			return
		}

		f.logger.WithError(err).WithField("retry_in", delay).Warn("order feed connection lost")
		f.hub.Broadcast(domain.Transient(fmt.Errorf("order feed: %w", err)))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > f.maxReconnectDelay {
			delay = f.maxReconnectDelay
		}
	}
}

func (f *OrderFeed) listen(ctx context.Context) (listenConn, error) {
	connectCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	conn, err := f.connect(connectCtx, f.dsn)
	if err != nil {
		return nil, fmt.Errorf("connect listener: %w", err)
	}
	if _, err := conn.Exec(connectCtx, "LISTEN "+OrderChangesChannel); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen %s: %w", OrderChangesChannel, err)
	}
	f.logger.WithField("channel", OrderChangesChannel).Info("order feed listening")
	return conn, nil
}

func (f *OrderFeed) consume(ctx context.Context, conn listenConn) error {
	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		shopID := strings.TrimSpace(notification.Payload)
		if shopID == "" {
			continue
		}
		f.hub.Publish(shopID)
	}
}

var _ domain.OrderFeed = (*OrderFeed)(nil)
