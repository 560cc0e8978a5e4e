// Package storefrontv1 описывает gRPC API storefront.v1.OrderService.
// Сообщения передаются в JSON через зарегистрированный кодек "json".
package storefrontv1

import "time"

// Product: позиция заказа.
type Product struct {
	Name    string            `json:"name"`
	Options map[string]string `json:"options,omitempty"`
}

// Order: заказ магазина в представлении API.
type Order struct {
	ID           string    `json:"id"`
	ShopID       string    `json:"shop_id"`
	Status       string    `json:"status"`
	BuyerName    string    `json:"buyer_name,omitempty"`
	PurchaseTime time.Time `json:"purchase_time"`
	Products     []Product `json:"products"`
	PartyID      string    `json:"party_id,omitempty"`
	Version      int64     `json:"version"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// TimelineEvent: событие жизненного цикла заказа.
type TimelineEvent struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type ChangeOrderStatusRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type ChangeOrderStatusResponse struct {
	Order *Order `json:"order"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type GetOrderResponse struct {
	Order    *Order          `json:"order"`
	Timeline []TimelineEvent `json:"timeline"`
}

type ListOrdersRequest struct {
	ShopID string `json:"shop_id"`
}

type ListOrdersResponse struct {
	Orders []*Order `json:"orders"`
}

type SubscribeOrdersRequest struct {
	ShopID string `json:"shop_id"`
}

// SnapshotError: временный сбой, доставленный в потоке подписки.
// Подписка после него продолжает работать.
type SnapshotError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OrdersSnapshot: полный набор заказов магазина на момент At.
// При Error != nil поле Orders не заполняется.
type OrdersSnapshot struct {
	ShopID string         `json:"shop_id"`
	Orders []*Order       `json:"orders"`
	Error  *SnapshotError `json:"error,omitempty"`
	At     time.Time      `json:"at"`
}
