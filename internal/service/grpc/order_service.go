package grpcsvc

import (
	"context"
	"errors"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	storefrontv1 "github.com/vladislavdragonenkov/storefront/api/storefront/v1"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordersync"
)

// StatusController: операции контроллера статусов, которые использует транспорт.
type StatusController interface {
	ChangeStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, []domain.TimelineEvent, error)
	ListOrders(ctx context.Context, shopID string) ([]domain.Order, error)
}

// OrderSubscriber открывает живые подписки на заказы магазина.
type OrderSubscriber interface {
	Subscribe(ctx context.Context, shopID string) (*ordersync.Subscription, error)
}

// OrderService реализует storefront.v1.OrderService поверх контроллера статусов и синхронизации заказов.
type OrderService struct {
	storefrontv1.UnimplementedOrderServiceServer

	statuses StatusController
	sync     OrderSubscriber
	logger   *log.Entry

	streamMu     sync.Mutex
	streamClosed bool
	streamWG     sync.WaitGroup
	closing      chan struct{}
}

// NewOrderService конструирует сервис с зависимостями.
func NewOrderService(statuses StatusController, subscriber OrderSubscriber, logger *log.Entry) *OrderService {
	if logger == nil {
		logger = log.New().WithField("component", "order-service")
	}
	return &OrderService{
		statuses: statuses,
		sync:     subscriber,
		logger:   logger,
		closing:  make(chan struct{}),
	}
}

// ChangeOrderStatus переводит заказ в новый статус.
func (s *OrderService) ChangeOrderStatus(ctx context.Context, req *storefrontv1.ChangeOrderStatusRequest) (*storefrontv1.ChangeOrderStatusResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	order, err := s.statuses.ChangeStatus(ctx, req.OrderID, domain.OrderStatus(req.Status))
	if err != nil {
		return nil, s.statusError(err, "ChangeOrderStatus", req.OrderID)
	}
	return &storefrontv1.ChangeOrderStatusResponse{Order: toAPIOrder(order)}, nil
}

// GetOrder возвращает заказ и его timeline.
func (s *OrderService) GetOrder(ctx context.Context, req *storefrontv1.GetOrderRequest) (*storefrontv1.GetOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	order, events, err := s.statuses.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, s.statusError(err, "GetOrder", req.OrderID)
	}

	timeline := make([]storefrontv1.TimelineEvent, 0, len(events))
	for _, event := range events {
		timeline = append(timeline, storefrontv1.TimelineEvent{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	return &storefrontv1.GetOrderResponse{Order: toAPIOrder(order), Timeline: timeline}, nil
}

// ListOrders возвращает заказы магазина, новые первыми.
func (s *OrderService) ListOrders(ctx context.Context, req *storefrontv1.ListOrdersRequest) (*storefrontv1.ListOrdersResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	orders, err := s.statuses.ListOrders(ctx, req.ShopID)
	if err != nil {
		return nil, s.statusError(err, "ListOrders", req.ShopID)
	}
	return &storefrontv1.ListOrdersResponse{Orders: toAPIOrders(orders)}, nil
}

// SubscribeOrders стримит полные снимки заказов магазина до отмены клиентом
// или остановки сервера. Временные сбои приходят как снимки с Error, поток при этом не рвётся.
func (s *OrderService) SubscribeOrders(req *storefrontv1.SubscribeOrdersRequest, stream storefrontv1.SnapshotSender) error {
	if req == nil {
		return status.Error(codes.InvalidArgument, "request is required")
	}
	if !s.enterStream() {
		return status.Error(codes.Unavailable, "server is shutting down")
	}
	defer s.streamWG.Done()

	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()
	go func() {
		select {
		case <-s.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	sub, err := s.sync.Subscribe(ctx, req.ShopID)
	if err != nil {
		return s.statusError(err, "SubscribeOrders", req.ShopID)
	}
	defer sub.Cancel()

	logger := s.logger.WithField("shop_id", sub.ShopID())
	logger.Debug("order subscription opened")
	defer logger.Debug("order subscription closed")

	for snapshot := range sub.Updates() {
		if err := stream.Send(toAPISnapshot(snapshot)); err != nil {
			return err
		}
	}

	switch {
	case stream.Context().Err() != nil:
		return status.FromContextError(stream.Context().Err()).Err()
	case s.isClosing():
		return status.Error(codes.Unavailable, "server is shutting down")
	default:
		return status.Error(codes.Unavailable, "order feed closed")
	}
}

// Shutdown закрывает активные подписки и ждёт их завершения.
// Вызывается перед GracefulStop.
func (s *OrderService) Shutdown(ctx context.Context) error {
	s.streamMu.Lock()
	if !s.streamClosed {
		s.streamClosed = true
		close(s.closing)
	}
	s.streamMu.Unlock()

	waitDone := make(chan struct{})
	go func() {
		s.streamWG.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *OrderService) enterStream() bool {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.streamClosed {
		return false
	}
	s.streamWG.Add(1)
	return true
}

func (s *OrderService) isClosing() bool {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	return s.streamClosed
}

func (s *OrderService) statusError(err error, operation, id string) error {
	code := StatusCode(err)
	entry := s.logger.WithError(err).WithFields(log.Fields{"operation": operation, "id": id})
	switch code {
	case codes.Unavailable, codes.Internal:
		entry.Warn("order request failed")
	default:
		entry.Debug("order request rejected")
	}

	if code == codes.Internal {
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

// StatusCode сопоставляет доменную ошибку с кодом gRPC.
func StatusCode(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case domain.IsMalformed(err):
		return codes.InvalidArgument
	case domain.IsNotFound(err):
		return codes.NotFound
	case domain.IsInvalidTransition(err):
		return codes.FailedPrecondition
	case domain.IsAlreadyExists(err):
		return codes.AlreadyExists
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case domain.IsTransient(err):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

func toAPISnapshot(snapshot ordersync.Snapshot) *storefrontv1.OrdersSnapshot {
	msg := &storefrontv1.OrdersSnapshot{ShopID: snapshot.ShopID, At: snapshot.At}
	if snapshot.Err != nil {
		msg.Error = &storefrontv1.SnapshotError{
			Code:    strings.ToLower(StatusCode(snapshot.Err).String()),
			Message: snapshot.Err.Error(),
		}
		msg.Orders = []*storefrontv1.Order{}
		return msg
	}
	msg.Orders = toAPIOrders(snapshot.Orders)
	return msg
}

func toAPIOrders(orders []domain.Order) []*storefrontv1.Order {
	result := make([]*storefrontv1.Order, 0, len(orders))
	for _, order := range orders {
		result = append(result, toAPIOrder(order))
	}
	return result
}

func toAPIOrder(order domain.Order) *storefrontv1.Order {
	products := make([]storefrontv1.Product, 0, len(order.Products))
	for _, product := range order.Products {
		products = append(products, storefrontv1.Product{Name: product.Name, Options: product.Options})
	}
	return &storefrontv1.Order{
		ID:           order.ID,
		ShopID:       order.ShopID,
		Status:       string(order.Status),
		BuyerName:    order.BuyerName,
		PurchaseTime: order.PurchaseTime,
		Products:     products,
		PartyID:      order.PartyID,
		Version:      order.Version,
		UpdatedAt:    order.UpdatedAt,
	}
}
