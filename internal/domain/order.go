package domain

import (
	"fmt"
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа магазина.
type OrderStatus string

const (
	// OrderStatusPending: заказ оформлен покупателем и ждёт обработки.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusInProgress: магазин готовит заказ.
	OrderStatusInProgress OrderStatus = "in-progress"
	// OrderStatusComplete: заказ готов к выдаче.
	OrderStatusComplete OrderStatus = "complete"
	// OrderStatusPickedUp: покупатель забрал заказ.
	OrderStatusPickedUp OrderStatus = "picked-up"
	// OrderStatusCancelled: заказ отменён до начала обработки.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded: средства возвращены покупателю.
	OrderStatusRefunded OrderStatus = "refunded"
	// OrderStatusFailed: заказ брошен или не прошла оплата.
	OrderStatusFailed OrderStatus = "failed"
)

// transitions задаёт допустимые переходы. Отсутствие ключа означает терминальный статус.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusInProgress, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusInProgress: {OrderStatusComplete, OrderStatusRefunded},
	OrderStatusComplete:   {OrderStatusPickedUp},
}

var statusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusInProgress: 1,
	OrderStatusCancelled:  1,
	OrderStatusFailed:     1,
	OrderStatusComplete:   2,
	OrderStatusRefunded:   2,
	OrderStatusPickedUp:   3,
}

// legacyStatuses: написания статусов из старых ревизий витрины.
var legacyStatuses = map[string]OrderStatus{
	"order_placed": OrderStatusPending,
	"ready":        OrderStatusInProgress,
	"picked_up":    OrderStatusPickedUp,
	"canceled":     OrderStatusCancelled,
	"in_progress":  OrderStatusInProgress,
}

// AllOrderStatuses возвращает полный список статусов в порядке жизненного цикла.
func AllOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusInProgress,
		OrderStatusComplete,
		OrderStatusPickedUp,
		OrderStatusCancelled,
		OrderStatusRefunded,
		OrderStatusFailed,
	}
}

// ParseOrderStatus приводит строку к каноническому статусу.
// Понимает канонические имена без учёта регистра и устаревшие написания (ORDER_PLACED, READY, PICKED_UP).
func ParseOrderStatus(raw string) (OrderStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if status := OrderStatus(normalized); status.Valid() {
		return status, nil
	}
	if status, ok := legacyStatuses[normalized]; ok {
		return status, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

// Valid проверяет принадлежность статуса закрытому перечислению.
func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal сообщает, что из статуса нет допустимых переходов.
func (s OrderStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Settled сообщает, что заказ вышел из работы магазина: статус терминальный
// или complete, после которого остаётся только отметка о выдаче.
func (s OrderStatus) Settled() bool {
	return s.Terminal() || s == OrderStatusComplete
}

// Rank возвращает позицию статуса в жизненном цикле; каждый допустимый переход её увеличивает.
func (s OrderStatus) Rank() int {
	rank, ok := statusRank[s]
	if !ok {
		return -1
	}
	return rank
}

// NextStatuses возвращает статусы, в которые можно перейти из текущего.
func (s OrderStatus) NextStatuses() []OrderStatus {
	next := transitions[s]
	result := make([]OrderStatus, len(next))
	copy(result, next)
	return result
}

// CanTransition проверяет переход from -> to по машине состояний.
func CanTransition(from, to OrderStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// ValidateTransition возвращает ErrInvalidTransition для запрещённого перехода,
// включая переход в тот же статус.
func ValidateTransition(from, to OrderStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, string(to))
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Product: позиция заказа с выбранными опциями.
type Product struct {
	Name    string
	Options map[string]string
}

// Order: заказ покупателя, отслеживаемый по жизненному циклу.
type Order struct {
	ID           string
	ShopID       string
	Status       OrderStatus
	BuyerName    string
	PurchaseTime time.Time
	Products     []Product
	// PartyID объединяет заказы, оформленные вместе.
	PartyID   string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет заказ, поступающий от внешнего checkout.
func (o *Order) Validate() []error {
	var errs []error

	if strings.TrimSpace(o.ID) == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if strings.TrimSpace(o.ShopID) == "" {
		errs = append(errs, ErrShopIDRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrUnknownStatus)
	}
	if len(o.Products) == 0 {
		errs = append(errs, ErrProductsRequired)
	}

	return errs
}

// Clone возвращает глубокую копию, чтобы хранилища не делили срезы и карты с вызывающим.
func (o Order) Clone() Order {
	if o.Products != nil {
		products := make([]Product, len(o.Products))
		for i, p := range o.Products {
			products[i] = Product{Name: p.Name}
			if p.Options != nil {
				products[i].Options = make(map[string]string, len(p.Options))
				for k, v := range p.Options {
					products[i].Options[k] = v
				}
			}
		}
		o.Products = products
	}
	return o
}
