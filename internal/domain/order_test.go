package domain_test

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:           "order-1",
		ShopID:       "shop-1",
		Status:       domain.OrderStatusPending,
		BuyerName:    "Alice",
		PurchaseTime: now,
		Products: []domain.Product{
			{Name: "Latte", Options: map[string]string{"size": "large"}},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCanTransition(t *testing.T) {
	allowed := map[domain.OrderStatus][]domain.OrderStatus{
		domain.OrderStatusPending:    {domain.OrderStatusInProgress, domain.OrderStatusCancelled, domain.OrderStatusFailed},
		domain.OrderStatusInProgress: {domain.OrderStatusComplete, domain.OrderStatusRefunded},
		domain.OrderStatusComplete:   {domain.OrderStatusPickedUp},
	}

	for _, from := range domain.AllOrderStatuses() {
		for _, to := range domain.AllOrderStatuses() {
			want := false
			for _, candidate := range allowed[from] {
				if candidate == to {
					want = true
				}
			}
			if got := domain.CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestValidateTransition_SameStatusRejected(t *testing.T) {
	for _, status := range domain.AllOrderStatuses() {
		err := domain.ValidateTransition(status, status)
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("expected invalid transition for %s -> %s, got %v", status, status, err)
		}
	}
}

func TestValidateTransition_UnknownTarget(t *testing.T) {
	err := domain.ValidateTransition(domain.OrderStatusPending, domain.OrderStatus("shipped"))
	if !errors.Is(err, domain.ErrMalformedInput) {
		t.Fatalf("expected malformed input, got %v", err)
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := []domain.OrderStatus{
		domain.OrderStatusPickedUp,
		domain.OrderStatusCancelled,
		domain.OrderStatusRefunded,
		domain.OrderStatusFailed,
	}
	for _, status := range terminal {
		if !status.Terminal() {
			t.Fatalf("expected %s to be terminal", status)
		}
		if len(status.NextStatuses()) != 0 {
			t.Fatalf("expected no next statuses for %s", status)
		}
	}
	if domain.OrderStatusPending.Terminal() {
		t.Fatal("pending must not be terminal")
	}
}

func TestSettledStatuses(t *testing.T) {
	for _, status := range domain.AllOrderStatuses() {
		want := status.Terminal() || status == domain.OrderStatusComplete
		if got := status.Settled(); got != want {
			t.Errorf("%s.Settled() = %v, want %v", status, got, want)
		}
	}
	if domain.OrderStatusComplete.Terminal() {
		t.Fatal("complete still allows pickup and must not be terminal")
	}
	if !domain.OrderStatusComplete.Settled() {
		t.Fatal("complete must be settled")
	}
	if domain.OrderStatusInProgress.Settled() {
		t.Fatal("in-progress must not be settled")
	}
}

func TestTransitionsAreMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for walk := 0; walk < 200; walk++ {
		current := domain.OrderStatusPending
		highest := current.Rank()

		for step := 0; step < 10; step++ {
			candidate := domain.AllOrderStatuses()[rng.Intn(len(domain.AllOrderStatuses()))]
			if domain.ValidateTransition(current, candidate) != nil {
				continue
			}
			if candidate.Rank() <= highest {
				t.Fatalf("accepted transition %s -> %s does not advance the lifecycle", current, candidate)
			}
			current = candidate
			highest = candidate.Rank()
		}
	}
}

func TestParseOrderStatus(t *testing.T) {
	cases := map[string]domain.OrderStatus{
		"pending":      domain.OrderStatusPending,
		" In-Progress": domain.OrderStatusInProgress,
		"ORDER_PLACED": domain.OrderStatusPending,
		"READY":        domain.OrderStatusInProgress,
		"COMPLETE":     domain.OrderStatusComplete,
		"PICKED_UP":    domain.OrderStatusPickedUp,
		"canceled":     domain.OrderStatusCancelled,
		"refunded":     domain.OrderStatusRefunded,
		"failed":       domain.OrderStatusFailed,
	}
	for raw, want := range cases {
		got, err := domain.ParseOrderStatus(raw)
		if err != nil {
			t.Fatalf("parse %q: unexpected error %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %s, want %s", raw, got, want)
		}
	}

	for _, raw := range []string{"", "shipped", "done"} {
		if _, err := domain.ParseOrderStatus(raw); !errors.Is(err, domain.ErrUnknownStatus) {
			t.Fatalf("parse %q: expected ErrUnknownStatus, got %v", raw, err)
		}
	}
}

func TestOrderValidate(t *testing.T) {
	order := makeOrder()
	if errs := order.Validate(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}

	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{name: "no id", mut: func(o *domain.Order) { o.ID = " " }, want: domain.ErrOrderIDRequired},
		{name: "no shop", mut: func(o *domain.Order) { o.ShopID = "" }, want: domain.ErrShopIDRequired},
		{name: "bad status", mut: func(o *domain.Order) { o.Status = "ready-ish" }, want: domain.ErrUnknownStatus},
		{name: "no products", mut: func(o *domain.Order) { o.Products = nil }, want: domain.ErrProductsRequired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := makeOrder()
			tc.mut(&o)
			errs := o.Validate()
			if len(errs) != 1 || !errors.Is(errs[0], tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, errs)
			}
		})
	}
}

func TestOrderClone(t *testing.T) {
	order := makeOrder()
	clone := order.Clone()
	clone.Products[0].Options["size"] = "small"
	clone.Products[0].Name = "Mocha"

	if order.Products[0].Options["size"] != "large" || order.Products[0].Name != "Latte" {
		t.Fatal("clone must not share products with the original")
	}
}
