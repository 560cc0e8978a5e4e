package domain

import "time"

const (
	// AggregateTypeOrder: тип агрегата для событий outbox по заказам.
	AggregateTypeOrder = "order"
	// EventTypeOrderStatusChanged: событие смены статуса заказа.
	EventTypeOrderStatusChanged = "order.status_changed"
)

// OrderStatusChanged: полезная нагрузка события смены статуса.
type OrderStatusChanged struct {
	OrderID   string      `json:"order_id"`
	ShopID    string      `json:"shop_id"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	Version   int64       `json:"version"`
	ChangedAt time.Time   `json:"changed_at"`
}
