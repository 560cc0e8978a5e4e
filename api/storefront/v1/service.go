package storefrontv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	ServiceName = "storefront.v1.OrderService"

	ChangeOrderStatusMethod = "/" + ServiceName + "/ChangeOrderStatus"
	GetOrderMethod          = "/" + ServiceName + "/GetOrder"
	ListOrdersMethod        = "/" + ServiceName + "/ListOrders"
	SubscribeOrdersMethod   = "/" + ServiceName + "/SubscribeOrders"
)

// OrderServiceServer: серверная часть storefront.v1.OrderService.
type OrderServiceServer interface {
	ChangeOrderStatus(context.Context, *ChangeOrderStatusRequest) (*ChangeOrderStatusResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	SubscribeOrders(*SubscribeOrdersRequest, SnapshotSender) error
}

// SnapshotSender: серверный поток SubscribeOrders.
type SnapshotSender interface {
	Send(*OrdersSnapshot) error
	grpc.ServerStream
}

// UnimplementedOrderServiceServer отвечает Unimplemented на все методы.
type UnimplementedOrderServiceServer struct{}

func (UnimplementedOrderServiceServer) ChangeOrderStatus(context.Context, *ChangeOrderStatusRequest) (*ChangeOrderStatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ChangeOrderStatus not implemented")
}

func (UnimplementedOrderServiceServer) GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetOrder not implemented")
}

func (UnimplementedOrderServiceServer) ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListOrders not implemented")
}

func (UnimplementedOrderServiceServer) SubscribeOrders(*SubscribeOrdersRequest, SnapshotSender) error {
	return status.Error(codes.Unimplemented, "method SubscribeOrders not implemented")
}

// OrderServiceDesc описывает сервис для grpc.Server.
var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ChangeOrderStatus",
			Handler: unaryHandler(ChangeOrderStatusMethod, func(srv OrderServiceServer, ctx context.Context, in *ChangeOrderStatusRequest) (*ChangeOrderStatusResponse, error) {
				return srv.ChangeOrderStatus(ctx, in)
			}),
		},
		{
			MethodName: "GetOrder",
			Handler: unaryHandler(GetOrderMethod, func(srv OrderServiceServer, ctx context.Context, in *GetOrderRequest) (*GetOrderResponse, error) {
				return srv.GetOrder(ctx, in)
			}),
		},
		{
			MethodName: "ListOrders",
			Handler: unaryHandler(ListOrdersMethod, func(srv OrderServiceServer, ctx context.Context, in *ListOrdersRequest) (*ListOrdersResponse, error) {
				return srv.ListOrders(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SubscribeOrders",
			Handler:       subscribeOrdersHandler,
			ServerStreams: true,
		},
	},
	Metadata: "storefront/v1/order_service",
}

// RegisterOrderServiceServer регистрирует реализацию сервиса.
func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

func unaryHandler[Req, Resp any](method string, call func(OrderServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func subscribeOrdersHandler(srv any, stream grpc.ServerStream) error {
	in := new(SubscribeOrdersRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(OrderServiceServer).SubscribeOrders(in, &snapshotServerStream{ServerStream: stream})
}

type snapshotServerStream struct {
	grpc.ServerStream
}

func (s *snapshotServerStream) Send(snapshot *OrdersSnapshot) error {
	return s.ServerStream.SendMsg(snapshot)
}
