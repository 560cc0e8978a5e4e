// Package orderstatus меняет статус заказа по жизненному циклу и выполняет
// разовые чтения заказов для транспортов.
package orderstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
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
	defaultWriteTimeout = 5 * time.Second

	// TimelineEventOrderPlaced: тип события поступления заказа.
	TimelineEventOrderPlaced = "OrderPlaced"
)

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

// WithMetrics подключает метрики переходов.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracerProvider задаёт провайдер трейсов.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tracing.Tracer(provider, "storefront/orderstatus")
	}
}

// WithWriteTimeout ограничивает время чтения и записи одного изменения статуса.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.writeTimeout = timeout
		}
	}
}

// Service: контроллер статусов заказов.
type Service struct {
	orders       domain.OrderRepository
	timeline     domain.TimelineRepository
	outbox       domain.OutboxRepository
	logger       *log.Entry
	metrics      *metrics.OrderMetrics
	tracer       trace.Tracer
	writeTimeout time.Duration
	now          func() time.Time
}

// New создаёт контроллер. timeline и outbox могут быть nil.
func New(orders domain.OrderRepository, timeline domain.TimelineRepository, outbox domain.OutboxRepository, options ...Option) *Service {
	s := &Service{
		orders:       orders,
		timeline:     timeline,
		outbox:       outbox,
		logger:       log.WithField("component", "order-status"),
		tracer:       tracing.Tracer(nil, "storefront/orderstatus"),
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// ChangeStatus переводит заказ в новый статус.
//
// Ошибки: некорректный ввод (ErrMalformedInput), отсутствующий заказ
// (ErrOrderNotFound), запрещённый переход (ErrInvalidTransition), сбой или
// таймаут хранилища (ErrTransient). При ошибке заказ не создаётся и не меняется.
func (s *Service) ChangeStatus(ctx context.Context, orderID string, requested domain.OrderStatus) (domain.Order, error) {
	started := s.now()

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	target, err := domain.ParseOrderStatus(string(requested))
	if err != nil {
		return domain.Order{}, err
	}

	ctx, span := s.tracer.Start(ctx, "orderstatus.ChangeStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status.to", string(target)),
	))
	defer span.End()

	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	updated, from, err := s.apply(writeCtx, orderID, target)
	elapsed := s.now().Sub(started)
	if err != nil {
		s.metrics.RecordTransition(statusLabel(from), string(target), resultLabel(err), elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "change status failed")

		entry := s.logger.WithFields(log.Fields{"order_id": orderID, "from": from, "to": target})
		if domain.IsTransient(err) {
			entry.WithError(err).Warn("order status change failed")
		} else {
			entry.WithError(err).Info("order status change rejected")
		}
		return domain.Order{}, err
	}

	s.metrics.RecordTransition(string(from), string(target), metrics.ResultOK, elapsed)
	span.SetAttributes(attribute.String("order.status.from", string(from)))
	s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"shop_id":  updated.ShopID,
		"from":     from,
		"to":       target,
	}).Info("order status changed")

	s.recordSideEffects(ctx, updated, from)
	return updated, nil
}

// apply читает заказ, проверяет переход и пишет статус через compare-and-set.
// При конфликте заказ перечитывается один раз.
func (s *Service) apply(ctx context.Context, orderID string, target domain.OrderStatus) (domain.Order, domain.OrderStatus, error) {
	var from domain.OrderStatus
	for attempt := 0; attempt < 2; attempt++ {
		current, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return domain.Order{}, from, classify(err, "load order "+orderID)
		}
		from = current.Status

		if err := domain.ValidateTransition(current.Status, target); err != nil {
			return domain.Order{}, from, err
		}

		updated, err := s.orders.UpdateStatus(ctx, orderID, current.Status, target, s.now().UTC())
		if err == nil {
			return updated, from, nil
		}
		if !errors.Is(err, domain.ErrStatusConflict) {
			return domain.Order{}, from, classify(err, "update order "+orderID)
		}
		s.logger.WithFields(log.Fields{"order_id": orderID, "expected": current.Status}).Debug("order status conflict, reloading")
	}
	return domain.Order{}, from, domain.Transient(fmt.Errorf("order %s is changing concurrently: %w", orderID, domain.ErrStatusConflict))
}

func (s *Service) recordSideEffects(ctx context.Context, order domain.Order, from domain.OrderStatus) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	if s.timeline != nil {
		event := domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     domain.TimelineEventStatusChanged,
			Reason:   fmt.Sprintf("%s -> %s", from, order.Status),
			Occurred: order.UpdatedAt,
		}
		if err := s.timeline.Append(ctx, event); err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to append timeline event")
		} else {
			s.metrics.RecordTimelineEvent()
		}
	}

	if s.outbox != nil {
		payload, err := json.Marshal(domain.OrderStatusChanged{
			OrderID:   order.ID,
			ShopID:    order.ShopID,
			From:      from,
			To:        order.Status,
			Version:   order.Version,
			ChangedAt: order.UpdatedAt,
		})
		if err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to encode status change event")
			return
		}
		if _, err := s.outbox.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: domain.AggregateTypeOrder,
			AggregateID:   order.ID,
			EventType:     domain.EventTypeOrderStatusChanged,
			Payload:       payload,
		}); err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to enqueue outbox message")
		} else {
			s.metrics.RecordOutboxEvent()
		}
	}
}

// GetOrder возвращает заказ и его timeline.
func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, []domain.TimelineEvent, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, nil, domain.ErrOrderIDRequired
	}

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, nil, classify(err, "load order "+orderID)
	}

	events := []domain.TimelineEvent{}
	if s.timeline != nil {
		events, err = s.timeline.List(ctx, orderID)
		if err != nil {
			return domain.Order{}, nil, classify(err, "load timeline of order "+orderID)
		}
	}
	return order, events, nil
}

// ListOrders возвращает заказы магазина, новые первыми. Пустой список: не ошибка.
func (s *Service) ListOrders(ctx context.Context, shopID string) ([]domain.Order, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return nil, domain.ErrShopIDRequired
	}

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	orders, err := s.orders.ListByShop(ctx, shopID)
	if err != nil {
		return nil, classify(err, "list orders of shop "+shopID)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].PurchaseTime.Equal(orders[j].PurchaseTime) {
			return orders[i].PurchaseTime.After(orders[j].PurchaseTime)
		}
		return orders[i].ID > orders[j].ID
	})
	return orders, nil
}

// PlaceOrder сохраняет новый заказ из checkout. Повторная доставка того же
// заказа возвращает ErrOrderAlreadyExists и ничего не меняет.
func (s *Service) PlaceOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	order.ID = strings.TrimSpace(order.ID)
	order.ShopID = strings.TrimSpace(order.ShopID)
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	status, err := domain.ParseOrderStatus(string(order.Status))
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = status
	if order.PurchaseTime.IsZero() {
		order.PurchaseTime = s.now().UTC()
	}
	if errs := order.Validate(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	if err := s.orders.Create(writeCtx, order); err != nil {
		if errors.Is(err, domain.ErrOrderAlreadyExists) {
			return domain.Order{}, err
		}
		return domain.Order{}, classify(err, "create order "+order.ID)
	}

	if s.timeline != nil {
		if err := s.timeline.Append(writeCtx, domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     TimelineEventOrderPlaced,
			Reason:   "checkout",
			Occurred: order.PurchaseTime,
		}); err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to append timeline event")
		}
	}

	s.logger.WithFields(log.Fields{"order_id": order.ID, "shop_id": order.ShopID}).Info("order placed")
	return order, nil
}

// classify оставляет доменные ошибки как есть, остальное помечает временным сбоем.
func classify(err error, op string) error {
	switch {
	case domain.IsNotFound(err), domain.IsMalformed(err), domain.IsInvalidTransition(err):
		return err
	case errors.Is(err, domain.ErrTransient):
		return err
	default:
		return domain.Transient(fmt.Errorf("%s: %w", op, err))
	}
}

func statusLabel(status domain.OrderStatus) string {
	if status == "" {
		return "unknown"
	}
	return string(status)
}

func resultLabel(err error) string {
	if domain.IsTransient(err) {
		return metrics.ResultError
	}
	return metrics.ResultRejected
}
