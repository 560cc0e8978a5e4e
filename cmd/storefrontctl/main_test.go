package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	storefrontv1 "github.com/vladislavdragonenkov/storefront/api/storefront/v1"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	grpcsvc "github.com/vladislavdragonenkov/storefront/internal/service/grpc"
	"github.com/vladislavdragonenkov/storefront/internal/service/orderstatus"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordersync"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

// startServer поднимает OrderService на bufconn и направляет в него dialOrders.
func startServer(t *testing.T) *memory.OrderRepository {
	t.Helper()

	listener := bufconn.Listen(1024 * 1024)
	repo := memory.NewOrderRepository()
	logger := quietLogger()

	statuses := orderstatus.New(repo, memory.NewTimelineRepository(), memory.NewOutboxRepository(), orderstatus.WithLogger(logger))
	watcher := ordersync.New(repo, repo, ordersync.WithLogger(logger))

	server := grpc.NewServer()
	storefrontv1.RegisterOrderServiceServer(server, grpcsvc.NewOrderService(statuses, watcher, logger))
	go func() { _ = server.Serve(listener) }()

	original := dialOrders
	dialOrders = func(string) (*storefrontv1.OrderServiceClient, func() error, error) {
		//nolint:staticcheck // grpc.Dial is required for bufconn testing
		conn, err := grpc.Dial("bufnet",
			grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return listener.Dial() }),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return nil, nil, err
		}
		return storefrontv1.NewOrderServiceClient(conn), conn.Close, nil
	}

	t.Cleanup(func() {
		dialOrders = original
		server.Stop()
	})
	return repo
}

func seed(t *testing.T, repo *memory.OrderRepository, id, shopID string) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), domain.Order{
		ID:           id,
		ShopID:       shopID,
		Status:       domain.OrderStatusPending,
		BuyerName:    "Alice",
		PurchaseTime: time.Now().UTC(),
		Products:     []domain.Product{{Name: "Latte"}},
	}))
}

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer

	require.ErrorIs(t, run(context.Background(), nil, &out), errUsage)
	require.ErrorIs(t, run(context.Background(), []string{"explode"}, &out), errUsage)
	require.ErrorIs(t, run(context.Background(), []string{"list"}, &out), errUsage)
	require.ErrorIs(t, run(context.Background(), []string{"set-status", "-order", "A"}, &out), errUsage)
	require.ErrorIs(t, run(context.Background(), []string{"get", "-order", "A", "extra"}, &out), errUsage)

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"help"}, &out))
	require.Contains(t, out.String(), "place-order")
}

func TestRun_ListGetAndSetStatus(t *testing.T) {
	repo := startServer(t)
	seed(t, repo, "A", "shop-1")
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, run(ctx, []string{"list", "-shop", "shop-1"}, &out))
	var list storefrontv1.ListOrdersResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &list))
	require.Len(t, list.Orders, 1)
	require.Equal(t, "A", list.Orders[0].ID)

	out.Reset()
	require.NoError(t, run(ctx, []string{"set-status", "-order", "A", "-status", "in-progress"}, &out))
	var order storefrontv1.Order
	require.NoError(t, json.Unmarshal(out.Bytes(), &order))
	require.Equal(t, "in-progress", order.Status)

	out.Reset()
	require.NoError(t, run(ctx, []string{"get", "-order", "A"}, &out))
	var details storefrontv1.GetOrderResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &details))
	require.Equal(t, "in-progress", details.Order.Status)
	require.NotEmpty(t, details.Timeline)

	err := run(ctx, []string{"set-status", "-order", "A", "-status", "pending"}, &out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "change status")
}

func TestRun_WatchPrintsSnapshots(t *testing.T) {
	repo := startServer(t)
	seed(t, repo, "B", "shop-2")
	seed(t, repo, "A", "shop-2")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, run(ctx, []string{"watch", "-shop", "shop-2", "-count", "1"}, &out))

	line := strings.TrimSpace(out.String())
	require.Contains(t, line, "shop=shop-2 orders=2 [A:pending B:pending]")
}

func TestFormatSnapshot_Error(t *testing.T) {
	line := formatSnapshot(&storefrontv1.OrdersSnapshot{
		ShopID: "shop-1",
		Error:  &storefrontv1.SnapshotError{Code: "unavailable", Message: "feed lost"},
		At:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	})
	require.Equal(t, "2024-05-01T12:00:00Z shop=shop-1 error=unavailable: feed lost", line)
}

func TestParseProduct(t *testing.T) {
	product, err := parseProduct("Latte: milk=oat , size=L")
	require.NoError(t, err)
	require.Equal(t, "Latte", product.Name)
	require.Equal(t, map[string]string{"milk": "oat", "size": "L"}, product.Options)

	product, err = parseProduct("Espresso")
	require.NoError(t, err)
	require.Nil(t, product.Options)

	_, err = parseProduct(":milk=oat")
	require.Error(t, err)
	_, err = parseProduct("Latte:milk")
	require.Error(t, err)
}

type publisherStub struct {
	mu       sync.Mutex
	failures int
	calls    int
	topic    string
	key      string
	event    any
	closed   bool
}

func (p *publisherStub) PublishEvent(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return domain.Transient(errors.New("broker not available"))
	}
	p.topic, p.key, p.event = topic, key, event
	return nil
}

func (p *publisherStub) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func stubPublisher(t *testing.T, stub *publisherStub) *[]string {
	t.Helper()
	var brokers []string
	original := newPublisher
	newPublisher = func(b []string, _ *log.Entry) (eventPublisher, error) {
		brokers = b
		return stub, nil
	}
	t.Cleanup(func() { newPublisher = original })
	return &brokers
}

func TestRun_PlaceOrderRetriesTransientFailure(t *testing.T) {
	stub := &publisherStub{failures: 1}
	brokers := stubPublisher(t, stub)

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"place-order",
		"-brokers", "kafka-1:9092, kafka-2:9092",
		"-order", "order-7",
		"-shop", "shop-1",
		"-buyer", "Bob",
		"-product", "Latte:milk=oat",
		"-product", "Bagel",
	}, &out)
	require.NoError(t, err)

	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, *brokers)
	require.Equal(t, 2, stub.calls)
	require.True(t, stub.closed)
	require.Equal(t, kafka.TopicCheckoutOrders, stub.topic)
	require.Equal(t, "shop-1", stub.key)

	event, ok := stub.event.(*kafka.OrderPlacedEvent)
	require.True(t, ok)
	require.Equal(t, "order-7", event.OrderID)
	require.Equal(t, "Bob", event.BuyerName)
	require.Len(t, event.Products, 2)
	require.Equal(t, map[string]string{"milk": "oat"}, event.Products[0].Options)
	require.Contains(t, out.String(), "order order-7 placed")
}

func TestRun_PlaceOrderValidation(t *testing.T) {
	stub := &publisherStub{}
	stubPublisher(t, stub)

	var out bytes.Buffer
	err := run(context.Background(), []string{"place-order", "-shop", "shop-1"}, &out)
	require.ErrorIs(t, err, errUsage)
	require.ErrorIs(t, err, domain.ErrProductsRequired)
	require.Zero(t, stub.calls)
}
