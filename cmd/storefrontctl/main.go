// storefrontctl: консольный клиент storefront-service: просмотр заказов
// магазина, смена статуса и отправка тестового заказа в checkout topic.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	storefrontv1 "github.com/vladislavdragonenkov/storefront/api/storefront/v1"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const usage = `usage: storefrontctl <command> [flags]

commands:
  list         -shop ID                  заказы магазина
  get          -order ID                 заказ и его timeline
  set-status   -order ID -status STATUS  сменить статус заказа
  watch        -shop ID [-count N]       поток снимков заказов магазина
  place-order  -shop ID -buyer NAME -product NAME[:opt=val,...]  отправить заказ в checkout
`

var errUsage = errors.New("invalid usage")

// dialOrders открывает соединение с OrderService. Подменяется в тестах.
var dialOrders = func(addr string) (*storefrontv1.OrderServiceClient, func() error, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return storefrontv1.NewOrderServiceClient(conn), conn.Close, nil
}

type eventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
	Close() error
}

// newPublisher создаёт Kafka producer. Подменяется в тестах.
var newPublisher = func(brokers []string, logger *log.Entry) (eventPublisher, error) {
	return kafka.NewProducer(brokers, logger)
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.WarnLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			_, _ = fmt.Fprint(os.Stderr, usage)
		}
		_, _ = fmt.Fprintf(os.Stderr, "storefrontctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: command is required", errUsage)
	}

	command, rest := args[0], args[1:]
	switch command {
	case "list":
		return runList(ctx, rest, out)
	case "get":
		return runGet(ctx, rest, out)
	case "set-status":
		return runSetStatus(ctx, rest, out)
	case "watch":
		return runWatch(ctx, rest, out)
	case "place-order":
		return runPlaceOrder(ctx, rest, out)
	case "help", "-h", "--help":
		_, err := fmt.Fprint(out, usage)
		return err
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}
