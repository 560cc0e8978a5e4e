// Package ordersync доставляет подписчикам полные снимки заказов магазина
// при каждом изменении в хранилище.
package ordersync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/tracing"
)

const (
	defaultSubscribeTimeout = 5 * time.Second
	defaultQueryTimeout     = 5 * time.Second
)

// ErrFeedClosed доставляется подписчику, когда канал изменений остановлен (например, при shutdown).
var ErrFeedClosed = fmt.Errorf("%w: order feed closed", domain.ErrTransient)

// Snapshot: полный набор заказов магазина на момент At.
// Err != nil означает, что заказы загрузить не удалось и Orders неактуальны.
type Snapshot struct {
	ShopID string
	Orders []domain.Order
	Err    error
	At     time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики подписок.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracerProvider задаёт провайдер трейсов.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tracing.Tracer(provider, "storefront/ordersync")
	}
}

// WithSubscribeTimeout ограничивает время установки подписки.
func WithSubscribeTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.subscribeTimeout = timeout
		}
	}
}

// WithQueryTimeout ограничивает время одного чтения снимка.
func WithQueryTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.queryTimeout = timeout
		}
	}
}

// Service: сервис синхронизации заказов.
type Service struct {
	orders           domain.OrderRepository
	feed             domain.OrderFeed
	logger           *log.Entry
	metrics          *metrics.OrderMetrics
	tracer           trace.Tracer
	subscribeTimeout time.Duration
	queryTimeout     time.Duration
	now              func() time.Time
}

// New создаёт сервис поверх репозитория заказов и канала изменений.
func New(orders domain.OrderRepository, feed domain.OrderFeed, options ...Option) *Service {
	s := &Service{
		orders:           orders,
		feed:             feed,
		logger:           log.WithField("component", "order-sync"),
		tracer:           tracing.Tracer(nil, "storefront/ordersync"),
		subscribeTimeout: defaultSubscribeTimeout,
		queryTimeout:     defaultQueryTimeout,
		now:              time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Subscribe устанавливает живую подписку на заказы магазина. Первый снимок
// приходит сразу после установки, дальше: после каждого изменения.
func (s *Service) Subscribe(ctx context.Context, shopID string) (*Subscription, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return nil, domain.ErrShopIDRequired
	}

	subCtx, cancel := context.WithCancel(ctx)
	events, err := s.establish(subCtx, shopID)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &Subscription{
		shopID:  shopID,
		updates: make(chan Snapshot),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.metrics.SubscriptionStarted()
	s.logger.WithField("shop_id", shopID).Debug("order subscription established")

	go s.run(subCtx, sub, events)
	return sub, nil
}

// Watch: форма Subscribe с наблюдателем: fn вызывается в горутине вызывающего
// для каждого снимка, пока ctx не отменён. Возвращает ошибку установки подписки,
// ErrFeedClosed при остановке канала или nil после отмены ctx.
func (s *Service) Watch(ctx context.Context, shopID string, fn func(Snapshot)) error {
	sub, err := s.Subscribe(ctx, shopID)
	if err != nil {
		return err
	}
	defer sub.Cancel()

	for snapshot := range sub.Updates() {
		fn(snapshot)
	}
	if ctx.Err() != nil {
		return nil
	}
	return ErrFeedClosed
}

// Snapshot читает текущий снимок заказов магазина один раз.
func (s *Service) Snapshot(ctx context.Context, shopID string) (Snapshot, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return Snapshot{}, domain.ErrShopIDRequired
	}
	snapshot := s.query(ctx, shopID)
	return snapshot, snapshot.Err
}

type watchResult struct {
	events <-chan domain.FeedEvent
	err    error
}

func (s *Service) establish(ctx context.Context, shopID string) (<-chan domain.FeedEvent, error) {
	resultCh := make(chan watchResult, 1)
	go func() {
		events, err := s.feed.Watch(ctx, shopID)
		resultCh <- watchResult{events: events, err: err}
	}()

	timer := time.NewTimer(s.subscribeTimeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		if res.err != nil {
			if domain.IsMalformed(res.err) {
				return nil, res.err
			}
			return nil, domain.Transient(fmt.Errorf("watch orders of shop %s: %w", shopID, res.err))
		}
		return res.events, nil
	case <-timer.C:
		return nil, domain.Transient(fmt.Errorf("subscribe to shop %s: %w", shopID, context.DeadlineExceeded))
	case <-ctx.Done():
		return nil, domain.Transient(fmt.Errorf("subscribe to shop %s: %w", shopID, ctx.Err()))
	}
}

func (s *Service) run(ctx context.Context, sub *Subscription, events <-chan domain.FeedEvent) {
	defer close(sub.done)
	defer close(sub.updates)
	defer s.metrics.SubscriptionFinished()

	if !s.deliver(ctx, sub, s.query(ctx, sub.shopID)) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				s.deliver(ctx, sub, Snapshot{ShopID: sub.shopID, Err: ErrFeedClosed, At: s.now().UTC()})
				return
			}

			var snapshot Snapshot
			if event.Err != nil {
				s.metrics.RecordFeedError()
				s.logger.WithError(event.Err).WithField("shop_id", sub.shopID).Warn("order feed error")
				snapshot = Snapshot{ShopID: sub.shopID, Err: domain.Transient(event.Err), At: s.now().UTC()}
			} else {
				snapshot = s.query(ctx, sub.shopID)
			}
			if !s.deliver(ctx, sub, snapshot) {
				return
			}
		}
	}
}

// deliver отдаёт снимок подписчику; false означает, что подписка отменена.
func (s *Service) deliver(ctx context.Context, sub *Subscription, snapshot Snapshot) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case sub.updates <- snapshot:
		if snapshot.Err != nil {
			s.metrics.RecordSnapshot(metrics.ResultError)
		} else {
			s.metrics.RecordSnapshot(metrics.ResultOK)
		}
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Service) query(ctx context.Context, shopID string) Snapshot {
	ctx, span := s.tracer.Start(ctx, "ordersync.query", trace.WithAttributes(attribute.String("shop.id", shopID)))
	defer span.End()

	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	started := s.now()
	orders, err := s.orders.ListByShop(queryCtx, shopID)
	s.metrics.RecordQueryDuration(s.now().Sub(started))
	at := s.now().UTC()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list orders failed")
		if !errors.Is(err, context.Canceled) {
			s.logger.WithError(err).WithField("shop_id", shopID).Warn("order snapshot query failed")
		}
		return Snapshot{
			ShopID: shopID,
			Err:    domain.Transient(fmt.Errorf("list orders of shop %s: %w", shopID, err)),
			At:     at,
		}
	}

	filtered := make([]domain.Order, 0, len(orders))
	for _, order := range orders {
		if order.ShopID != shopID {
			continue
		}
		filtered = append(filtered, order)
	}
	if dropped := len(orders) - len(filtered); dropped > 0 {
		s.logger.WithFields(log.Fields{"shop_id": shopID, "dropped": dropped}).Warn("store returned orders of another shop")
	}
	span.SetAttributes(attribute.Int("orders.count", len(filtered)))

	return Snapshot{ShopID: shopID, Orders: filtered, At: at}
}
