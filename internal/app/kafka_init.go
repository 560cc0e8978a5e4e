package app

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/retry"
)

func parseBrokers(brokers string) []string {
	var result []string
	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			result = append(result, broker)
		}
	}
	return result
}

// initKafkaProducer инициализирует Kafka producer, если brokers не пустой.
// Возвращает nil, nil, если Kafka не настроена.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := parseBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList, logger.WithField("layer", "kafka-producer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// startCheckoutConsumer подписывается на topic checkout; сообщения, которые не удалось
// сохранить, уходят в DLQ через producer.
func startCheckoutConsumer(ctx context.Context, cfg Config, placer kafka.OrderPlacer, producer *kafka.Producer, m *metrics.OrderMetrics, logger *log.Entry) (*kafka.Consumer, error) {
	brokerList := parseBrokers(cfg.KafkaBrokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	consumerLogger := logger.WithField("layer", "checkout-consumer")
	options := []kafka.ConsumerOption{
		kafka.WithConsumerLogger(consumerLogger),
		kafka.WithRetrier(retry.New(retry.DefaultConfig(), consumerLogger)),
	}
	if producer != nil {
		options = append(options, kafka.WithDLQ(producer, kafka.TopicDeadLetterQueue))
	}

	consumer, err := kafka.NewConsumer(
		brokerList,
		cfg.KafkaConsumerGroup,
		[]string{cfg.KafkaCheckoutTopic},
		kafka.NewCheckoutHandler(placer, m, consumerLogger),
		options...,
	)
	if err != nil {
		return nil, err
	}
	if err := consumer.Start(ctx); err != nil {
		_ = consumer.Stop()
		return nil, err
	}
	return consumer, nil
}

// closeKafkaProducer закрывает Kafka producer, если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

func stopKafkaConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}
