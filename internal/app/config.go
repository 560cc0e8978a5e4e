package app

import "time"

// Поддерживаемые хранилища заказов.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	GRPCAddr string
	HTTPAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// RedisAddr включает кеш профилей магазинов; пустой адрес отключает кеш.
	RedisAddr    string
	ShopCacheTTL time.Duration

	// KafkaBrokers: список брокеров через запятую; пустой список отключает Kafka.
	KafkaBrokers          string
	KafkaCheckoutTopic    string
	KafkaOrderEventsTopic string
	KafkaConsumerGroup    string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	SubscribeTimeout time.Duration
	WriteTimeout     time.Duration

	OrderRetention    time.Duration
	RetentionInterval time.Duration

	// S3Bucket включает загрузку картинок в S3; без него картинки хранятся в памяти.
	S3Bucket           string
	S3Region           string
	S3Endpoint         string
	ImagePublicBaseURL string

	OTLPEndpoint string
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:              ":50051",
		HTTPAddr:              ":8080",
		StorageDriver:         StorageDriverMemory,
		PostgresAutoMigrate:   true,
		ShopCacheTTL:          5 * time.Minute,
		KafkaCheckoutTopic:    "storefront.checkout.orders",
		KafkaOrderEventsTopic: "storefront.order.events",
		KafkaConsumerGroup:    "storefront-service",
		OutboxPollInterval:    time.Second,
		OutboxBatchSize:       100,
		OutboxMaxAttempts:     3,
		OutboxRetryDelay:      100 * time.Millisecond,
		SubscribeTimeout:      10 * time.Second,
		WriteTimeout:          5 * time.Second,
		OrderRetention:        30 * 24 * time.Hour,
		RetentionInterval:     time.Hour,
		S3Region:              "us-east-1",
	}
}
