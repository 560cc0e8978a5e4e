// Package kafka связывает витрину с Kafka: события смены статуса уходят из outbox,
// новые заказы приходят из checkout.
package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	// EventTypeOrderPlaced: checkout оформил заказ.
	EventTypeOrderPlaced EventType = "order.placed"
	// EventTypeOrderStatusChanged: витрина сменила статус заказа.
	EventTypeOrderStatusChanged EventType = domain.EventTypeOrderStatusChanged
)

// Topics для Kafka
const (
	TopicOrderEvents     = "storefront.order.events"
	TopicCheckoutOrders  = "storefront.checkout.orders"
	TopicDeadLetterQueue = "storefront.dlq"
)

// Kafka headers для DLQ
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// ProductPayload: позиция заказа в событии checkout.
type ProductPayload struct {
	Name    string            `json:"name"`
	Options map[string]string `json:"options,omitempty"`
}

// OrderPlacedEvent: заказ, оформленный покупателем.
type OrderPlacedEvent struct {
	EventType    EventType        `json:"event_type"`
	OrderID      string           `json:"order_id"`
	ShopID       string           `json:"shop_id"`
	BuyerName    string           `json:"buyer_name"`
	PurchaseTime time.Time        `json:"purchase_time"`
	Products     []ProductPayload `json:"products"`
	PartyID      string           `json:"party_id,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// OutboxEnvelope: обёртка outbox-сообщения в topic событий заказа.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewOrderPlacedEvent создает событие checkout из заказа.
func NewOrderPlacedEvent(order domain.Order) *OrderPlacedEvent {
	event := &OrderPlacedEvent{
		EventType:    EventTypeOrderPlaced,
		OrderID:      order.ID,
		ShopID:       order.ShopID,
		BuyerName:    order.BuyerName,
		PurchaseTime: order.PurchaseTime,
		Products:     make([]ProductPayload, 0, len(order.Products)),
		PartyID:      order.PartyID,
		Timestamp:    time.Now().UTC(),
	}
	for _, product := range order.Products {
		event.Products = append(event.Products, ProductPayload{Name: product.Name, Options: product.Options})
	}
	return event
}

// Order переводит событие в доменный заказ в статусе pending.
func (e OrderPlacedEvent) Order() domain.Order {
	order := domain.Order{
		ID:           strings.TrimSpace(e.OrderID),
		ShopID:       strings.TrimSpace(e.ShopID),
		Status:       domain.OrderStatusPending,
		BuyerName:    e.BuyerName,
		PurchaseTime: e.PurchaseTime,
		Products:     make([]domain.Product, 0, len(e.Products)),
		PartyID:      e.PartyID,
	}
	for _, product := range e.Products {
		order.Products = append(order.Products, domain.Product{Name: product.Name, Options: product.Options})
	}
	return order
}

// ParseOrderPlacedEvent парсит событие checkout. Битый JSON и чужой тип события
// считаются некорректным вводом и не повторяются.
func ParseOrderPlacedEvent(message *sarama.ConsumerMessage) (*OrderPlacedEvent, error) {
	var event OrderPlacedEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("%w: unmarshal order placed event: %v", domain.ErrMalformedInput, err)
	}
	if event.EventType != "" && event.EventType != EventTypeOrderPlaced {
		return nil, fmt.Errorf("%w: unexpected event type %q", domain.ErrMalformedInput, event.EventType)
	}
	return &event, nil
}

// ParseOutboxEnvelope парсит событие из topic заказов.
func ParseOutboxEnvelope(message *sarama.ConsumerMessage) (*OutboxEnvelope, error) {
	var envelope OutboxEnvelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return nil, fmt.Errorf("%w: unmarshal outbox envelope: %v", domain.ErrMalformedInput, err)
	}
	return &envelope, nil
}
