package storefrontv1

import (
	"context"

	"google.golang.org/grpc"
)

// OrderServiceClient: клиент storefront.v1.OrderService. Все вызовы идут с JSON-кодеком.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewOrderServiceClient создаёт клиента поверх соединения.
func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func (c *OrderServiceClient) ChangeOrderStatus(ctx context.Context, in *ChangeOrderStatusRequest, opts ...grpc.CallOption) (*ChangeOrderStatusResponse, error) {
	out := new(ChangeOrderStatusResponse)
	if err := c.cc.Invoke(ctx, ChangeOrderStatusMethod, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	out := new(GetOrderResponse)
	if err := c.cc.Invoke(ctx, GetOrderMethod, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	out := new(ListOrdersResponse)
	if err := c.cc.Invoke(ctx, ListOrdersMethod, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// SubscribeOrders открывает поток снимков заказов магазина. Поток закрывается отменой ctx.
func (c *OrderServiceClient) SubscribeOrders(ctx context.Context, in *SubscribeOrdersRequest, opts ...grpc.CallOption) (*SnapshotReceiver, error) {
	stream, err := c.cc.NewStream(ctx, &OrderServiceDesc.Streams[0], SubscribeOrdersMethod, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &SnapshotReceiver{ClientStream: stream}, nil
}

// SnapshotReceiver: клиентская сторона потока SubscribeOrders.
type SnapshotReceiver struct {
	grpc.ClientStream
}

// Recv ждёт следующий снимок. io.EOF означает штатное завершение потока сервером.
func (r *SnapshotReceiver) Recv() (*OrdersSnapshot, error) {
	snapshot := new(OrdersSnapshot)
	if err := r.ClientStream.RecvMsg(snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}
