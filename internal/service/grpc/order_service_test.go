package grpcsvc_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	storefrontv1 "github.com/vladislavdragonenkov/storefront/api/storefront/v1"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/storefront/internal/service/grpc"
	"github.com/vladislavdragonenkov/storefront/internal/service/orderstatus"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordersync"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

const bufSize = 1024 * 1024

type testEnv struct {
	client  *storefrontv1.OrderServiceClient
	repo    *memory.OrderRepository
	service *grpcsvc.OrderService
}

func newTestServer(t *testing.T) testEnv {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	repo := memory.NewOrderRepository()
	logger := loggerForTests()

	statuses := orderstatus.New(repo, memory.NewTimelineRepository(), memory.NewOutboxRepository(), orderstatus.WithLogger(logger))
	watcher := ordersync.New(repo, repo, ordersync.WithLogger(logger))
	service := grpcsvc.NewOrderService(statuses, watcher, logger)

	grpcMetrics := promgrpc.NewServerMetrics()
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	storefrontv1.RegisterOrderServiceServer(server, service)
	grpcMetrics.InitializeMetrics(server)

	go func() {
		if err := server.Serve(listener); err != nil {
			logger.WithError(err).Error("grpc serve failed")
		}
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}

	//nolint:staticcheck // grpc.Dial is required for bufconn testing
	conn, err := grpc.Dial("bufnet", grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})

	return testEnv{client: storefrontv1.NewOrderServiceClient(conn), repo: repo, service: service}
}

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: false, DisableTimestamp: true})
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

func seedOrder(t *testing.T, repo domain.OrderRepository, id, shopID string, status domain.OrderStatus) {
	t.Helper()
	err := repo.Create(context.Background(), domain.Order{
		ID:           id,
		ShopID:       shopID,
		Status:       status,
		BuyerName:    "Alice",
		PurchaseTime: time.Now().UTC(),
		Products:     []domain.Product{{Name: "Latte", Options: map[string]string{"milk": "oat"}}},
	})
	require.NoError(t, err)
}

func requireCode(t *testing.T, err error, expected codes.Code) {
	t.Helper()
	st, ok := status.FromError(err)
	require.True(t, ok, "expected grpc status error, got %v", err)
	require.Equal(t, expected, st.Code(), "message: %s", st.Message())
}

func TestOrderService_ChangeOrderStatus(t *testing.T) {
	env := newTestServer(t)
	seedOrder(t, env.repo, "A", "shop-1", domain.OrderStatusPending)
	ctx := context.Background()

	resp, err := env.client.ChangeOrderStatus(ctx, &storefrontv1.ChangeOrderStatusRequest{OrderID: "A", Status: "in-progress"})
	require.NoError(t, err)
	require.Equal(t, "in-progress", resp.Order.Status)
	require.Equal(t, "shop-1", resp.Order.ShopID)
	require.Equal(t, map[string]string{"milk": "oat"}, resp.Order.Products[0].Options)

	tests := []struct {
		name string
		req  *storefrontv1.ChangeOrderStatusRequest
		code codes.Code
	}{
		{name: "blank id", req: &storefrontv1.ChangeOrderStatusRequest{Status: "complete"}, code: codes.InvalidArgument},
		{name: "unknown status", req: &storefrontv1.ChangeOrderStatusRequest{OrderID: "A", Status: "shipped"}, code: codes.InvalidArgument},
		{name: "missing order", req: &storefrontv1.ChangeOrderStatusRequest{OrderID: "missing-id", Status: "complete"}, code: codes.NotFound},
		{name: "backwards", req: &storefrontv1.ChangeOrderStatusRequest{OrderID: "A", Status: "pending"}, code: codes.FailedPrecondition},
		{name: "same status", req: &storefrontv1.ChangeOrderStatusRequest{OrderID: "A", Status: "in-progress"}, code: codes.FailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.client.ChangeOrderStatus(ctx, tt.req)
			requireCode(t, err, tt.code)
		})
	}

	_, err = env.repo.Get(ctx, "missing-id")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderService_GetOrderAndListOrders(t *testing.T) {
	env := newTestServer(t)
	seedOrder(t, env.repo, "A", "shop-1", domain.OrderStatusPending)
	ctx := context.Background()

	_, err := env.client.ChangeOrderStatus(ctx, &storefrontv1.ChangeOrderStatusRequest{OrderID: "A", Status: "cancelled"})
	require.NoError(t, err)

	got, err := env.client.GetOrder(ctx, &storefrontv1.GetOrderRequest{OrderID: "A"})
	require.NoError(t, err)
	require.Equal(t, "cancelled", got.Order.Status)
	require.Len(t, got.Timeline, 1)
	require.Equal(t, domain.TimelineEventStatusChanged, got.Timeline[0].Type)

	_, err = env.client.GetOrder(ctx, &storefrontv1.GetOrderRequest{OrderID: "missing"})
	requireCode(t, err, codes.NotFound)

	list, err := env.client.ListOrders(ctx, &storefrontv1.ListOrdersRequest{ShopID: "shop-1"})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)

	empty, err := env.client.ListOrders(ctx, &storefrontv1.ListOrdersRequest{ShopID: "shop-empty"})
	require.NoError(t, err)
	require.Empty(t, empty.Orders)

	_, err = env.client.ListOrders(ctx, &storefrontv1.ListOrdersRequest{})
	requireCode(t, err, codes.InvalidArgument)
}

func recvSnapshot(t *testing.T, stream *storefrontv1.SnapshotReceiver) *storefrontv1.OrdersSnapshot {
	t.Helper()
	type result struct {
		snapshot *storefrontv1.OrdersSnapshot
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		snapshot, err := stream.Recv()
		ch <- result{snapshot: snapshot, err: err}
	}()
	select {
	case res := <-ch:
		require.NoError(t, res.err)
		return res.snapshot
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func statuses(snapshot *storefrontv1.OrdersSnapshot) map[string]string {
	result := make(map[string]string, len(snapshot.Orders))
	for _, order := range snapshot.Orders {
		result[order.ID] = order.Status
	}
	return result
}

func TestOrderService_SubscribeOrders(t *testing.T) {
	env := newTestServer(t)
	seedOrder(t, env.repo, "A", "shop-1", domain.OrderStatusPending)
	seedOrder(t, env.repo, "B", "shop-1", domain.OrderStatusComplete)
	seedOrder(t, env.repo, "X", "shop-2", domain.OrderStatusPending)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := env.client.SubscribeOrders(ctx, &storefrontv1.SubscribeOrdersRequest{ShopID: "shop-1"})
	require.NoError(t, err)

	first := recvSnapshot(t, stream)
	require.Nil(t, first.Error)
	require.Equal(t, map[string]string{"A": "pending", "B": "complete"}, statuses(first))

	_, err = env.client.ChangeOrderStatus(context.Background(), &storefrontv1.ChangeOrderStatusRequest{OrderID: "A", Status: "in-progress"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"A": "in-progress", "B": "complete"}, statuses(recvSnapshot(t, stream)))

	_, err = env.client.ChangeOrderStatus(context.Background(), &storefrontv1.ChangeOrderStatusRequest{OrderID: "B", Status: "pending"})
	requireCode(t, err, codes.FailedPrecondition)

	env.repo.Hub().Broadcast(domain.Transient(errors.New("listener dropped")))
	failed := recvSnapshot(t, stream)
	require.NotNil(t, failed.Error)
	require.Equal(t, "unavailable", failed.Error.Code)

	_, err = env.client.ChangeOrderStatus(context.Background(), &storefrontv1.ChangeOrderStatusRequest{OrderID: "X", Status: "in-progress"})
	require.NoError(t, err)
	_, err = env.client.ChangeOrderStatus(context.Background(), &storefrontv1.ChangeOrderStatusRequest{OrderID: "A", Status: "complete"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"A": "complete", "B": "complete"}, statuses(recvSnapshot(t, stream)),
		"changes of another shop must not reach the stream")
}

func TestOrderService_SubscribeOrders_BlankShop(t *testing.T) {
	env := newTestServer(t)

	stream, err := env.client.SubscribeOrders(context.Background(), &storefrontv1.SubscribeOrdersRequest{ShopID: " "})
	require.NoError(t, err)
	_, err = stream.Recv()
	requireCode(t, err, codes.InvalidArgument)
}

func TestOrderService_Shutdown_ClosesStreams(t *testing.T) {
	env := newTestServer(t)
	seedOrder(t, env.repo, "A", "shop-1", domain.OrderStatusPending)

	stream, err := env.client.SubscribeOrders(context.Background(), &storefrontv1.SubscribeOrdersRequest{ShopID: "shop-1"})
	require.NoError(t, err)
	recvSnapshot(t, stream)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, env.service.Shutdown(shutdownCtx))

	_, err = stream.Recv()
	requireCode(t, err, codes.Unavailable)

	late, err := env.client.SubscribeOrders(context.Background(), &storefrontv1.SubscribeOrdersRequest{ShopID: "shop-1"})
	require.NoError(t, err)
	_, err = late.Recv()
	requireCode(t, err, codes.Unavailable)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{err: nil, want: codes.OK},
		{err: domain.ErrShopIDRequired, want: codes.InvalidArgument},
		{err: domain.ErrOrderNotFound, want: codes.NotFound},
		{err: fmt.Errorf("%w: pending -> pending", domain.ErrInvalidTransition), want: codes.FailedPrecondition},
		{err: domain.ErrOrderAlreadyExists, want: codes.AlreadyExists},
		{err: domain.ErrShopAlreadyExists, want: codes.AlreadyExists},
		{err: domain.Transient(errors.New("timeout")), want: codes.Unavailable},
		{err: context.DeadlineExceeded, want: codes.Unavailable},
		{err: errors.New("boom"), want: codes.Internal},
	}
	for _, tt := range tests {
		if got := grpcsvc.StatusCode(tt.err); got != tt.want {
			t.Fatalf("StatusCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
