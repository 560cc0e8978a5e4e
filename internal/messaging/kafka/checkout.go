package kafka

import (
	"context"
	"errors"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const checkoutResultDuplicate = "duplicate"

// OrderPlacer сохраняет новый заказ.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, order domain.Order) (domain.Order, error)
}

// NewCheckoutHandler возвращает обработчик topic checkout. Повторная доставка
// уже сохранённого заказа считается успехом.
func NewCheckoutHandler(placer OrderPlacer, m *metrics.OrderMetrics, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "checkout-consumer")
	}

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := ParseOrderPlacedEvent(message)
		if err != nil {
			m.RecordCheckoutOrder(metrics.ResultRejected)
			return err
		}

		order, err := placer.PlaceOrder(ctx, event.Order())
		if errors.Is(err, domain.ErrOrderAlreadyExists) {
			m.RecordCheckoutOrder(checkoutResultDuplicate)
			logger.WithField("order_id", event.OrderID).Debug("duplicate checkout event skipped")
			return nil
		}
		if err != nil {
			if domain.IsTransient(err) {
				m.RecordCheckoutOrder(metrics.ResultError)
			} else {
				m.RecordCheckoutOrder(metrics.ResultRejected)
			}
			return err
		}

		m.RecordCheckoutOrder(metrics.ResultOK)

		logger.WithFields(log.Fields{
			"order_id": order.ID,
			"shop_id":  order.ShopID,
			"offset":   message.Offset,
		}).Info("checkout order accepted")
		return nil
	}
}
