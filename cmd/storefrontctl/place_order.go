package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/retry"
)

const envKafkaBrokers = "STOREFRONT_KAFKA_BROKERS"

// productList: повторяемый флаг -product "Latte:milk=oat,size=L".
type productList []domain.Product

func (p *productList) String() string {
	names := make([]string, 0, len(*p))
	for _, product := range *p {
		names = append(names, product.Name)
	}
	return strings.Join(names, ",")
}

func (p *productList) Set(raw string) error {
	product, err := parseProduct(raw)
	if err != nil {
		return err
	}
	*p = append(*p, product)
	return nil
}

func parseProduct(raw string) (domain.Product, error) {
	name, options, hasOptions := strings.Cut(raw, ":")
	product := domain.Product{Name: strings.TrimSpace(name)}
	if product.Name == "" {
		return domain.Product{}, fmt.Errorf("product name is required in %q", raw)
	}
	if !hasOptions || strings.TrimSpace(options) == "" {
		return product, nil
	}

	product.Options = make(map[string]string)
	for _, pair := range strings.Split(options, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return domain.Product{}, fmt.Errorf("option %q must look like name=value", pair)
		}
		product.Options[key] = strings.TrimSpace(value)
	}
	return product, nil
}

func runPlaceOrder(ctx context.Context, args []string, out io.Writer) error {
	fs, _ := newFlagSet("place-order", out)

	defaultBrokers := os.Getenv(envKafkaBrokers)
	if strings.TrimSpace(defaultBrokers) == "" {
		defaultBrokers = "localhost:9092"
	}

	var (
		products productList
		order    domain.Order
	)
	brokersRaw := fs.String("brokers", defaultBrokers, "Kafka brokers, comma-separated (fallback: "+envKafkaBrokers+")")
	topic := fs.String("topic", kafka.TopicCheckoutOrders, "checkout topic")
	fs.StringVar(&order.ID, "order", "", "order id (random uuid when empty)")
	fs.StringVar(&order.ShopID, "shop", "", "shop id")
	fs.StringVar(&order.BuyerName, "buyer", "", "buyer name")
	fs.StringVar(&order.PartyID, "party", "", "party id for grouped orders")
	fs.Var(&products, "product", "product as name[:option=value,...]; repeatable")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if strings.TrimSpace(order.ID) == "" {
		order.ID = uuid.NewString()
	}
	order.Status = domain.OrderStatusPending
	order.PurchaseTime = time.Now().UTC()
	order.Products = products
	if errs := order.Validate(); len(errs) > 0 {
		return fmt.Errorf("%w: %w", errUsage, errors.Join(errs...))
	}

	brokers := splitBrokers(*brokersRaw)
	if len(brokers) == 0 {
		return fmt.Errorf("%w: -brokers is required", errUsage)
	}

	logger := log.WithField("component", "storefrontctl")
	publisher, err := newPublisher(brokers, logger)
	if err != nil {
		return fmt.Errorf("connect to kafka: %w", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.WithError(err).Warn("close kafka producer")
		}
	}()

	event := kafka.NewOrderPlacedEvent(order)
	retrier := retry.New(retry.DefaultConfig(), logger)
	if err := retrier.Do(ctx, "publish order placed", func(ctx context.Context) error {
		return publisher.PublishEvent(ctx, *topic, order.ShopID, event)
	}); err != nil {
		return fmt.Errorf("publish order %s: %w", order.ID, err)
	}

	_, err = fmt.Fprintf(out, "order %s placed to %s\n", order.ID, *topic)
	return err
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}
