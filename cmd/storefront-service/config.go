package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
)

const (
	envGRPCAddr              = "STOREFRONT_GRPC_ADDR"
	envHTTPAddr              = "STOREFRONT_HTTP_ADDR"
	envStorageDriver         = "STOREFRONT_STORAGE_DRIVER"
	envPostgresDSN           = "STOREFRONT_POSTGRES_DSN"
	envPostgresAutoMigrate   = "STOREFRONT_POSTGRES_AUTO_MIGRATE"
	envRedisAddr             = "STOREFRONT_REDIS_ADDR"
	envShopCacheTTL          = "STOREFRONT_SHOP_CACHE_TTL"
	envKafkaBrokers          = "STOREFRONT_KAFKA_BROKERS"
	envKafkaCheckoutTopic    = "STOREFRONT_KAFKA_CHECKOUT_TOPIC"
	envKafkaOrderEventsTopic = "STOREFRONT_KAFKA_ORDER_EVENTS_TOPIC"
	envKafkaConsumerGroup    = "STOREFRONT_KAFKA_CONSUMER_GROUP"
	envOutboxPollInterval    = "STOREFRONT_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize       = "STOREFRONT_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts     = "STOREFRONT_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay      = "STOREFRONT_OUTBOX_RETRY_DELAY"
	envSubscribeTimeout      = "STOREFRONT_SUBSCRIBE_TIMEOUT"
	envWriteTimeout          = "STOREFRONT_WRITE_TIMEOUT"
	envOrderRetention        = "STOREFRONT_ORDER_RETENTION"
	envRetentionInterval     = "STOREFRONT_RETENTION_INTERVAL"
	envS3Bucket              = "STOREFRONT_S3_BUCKET"
	envS3Region              = "STOREFRONT_S3_REGION"
	envS3Endpoint            = "STOREFRONT_S3_ENDPOINT"
	envImagePublicBaseURL    = "STOREFRONT_IMAGE_PUBLIC_BASE_URL"
	envOTLPEndpoint          = "STOREFRONT_OTLP_ENDPOINT"
	envLogLevel              = "STOREFRONT_LOG_LEVEL"
	envLogFormat             = "STOREFRONT_LOG_FORMAT"
)

type envLookup func(key string) (string, bool)

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не роняют запуск: остаётся значение по умолчанию и
// возвращается предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("invalid %s=%q: %v, using default", key, raw, err))
	}

	stringVars := []struct {
		key    string
		target *string
	}{
		{envGRPCAddr, &cfg.GRPCAddr},
		{envHTTPAddr, &cfg.HTTPAddr},
		{envPostgresDSN, &cfg.PostgresDSN},
		{envRedisAddr, &cfg.RedisAddr},
		{envKafkaBrokers, &cfg.KafkaBrokers},
		{envKafkaCheckoutTopic, &cfg.KafkaCheckoutTopic},
		{envKafkaOrderEventsTopic, &cfg.KafkaOrderEventsTopic},
		{envKafkaConsumerGroup, &cfg.KafkaConsumerGroup},
		{envS3Bucket, &cfg.S3Bucket},
		{envS3Region, &cfg.S3Region},
		{envS3Endpoint, &cfg.S3Endpoint},
		{envImagePublicBaseURL, &cfg.ImagePublicBaseURL},
		{envOTLPEndpoint, &cfg.OTLPEndpoint},
	}
	for _, v := range stringVars {
		if raw, ok := lookup(v.key); ok && strings.TrimSpace(raw) != "" {
			*v.target = strings.TrimSpace(raw)
		}
	}

	if raw, ok := lookup(envStorageDriver); ok && strings.TrimSpace(raw) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(raw))
	}

	if raw, ok := lookup(envPostgresAutoMigrate); ok {
		if value, err := parseBool(raw); err != nil {
			warn(envPostgresAutoMigrate, raw, err)
		} else {
			cfg.PostgresAutoMigrate = value
		}
	}

	positive := func(v time.Duration) bool { return v > 0 }
	nonNegative := func(v time.Duration) bool { return v >= 0 }

	durationVars := []struct {
		key    string
		target *time.Duration
		valid  func(time.Duration) bool
		rule   string
	}{
		{envShopCacheTTL, &cfg.ShopCacheTTL, positive, "must be > 0"},
		{envOutboxPollInterval, &cfg.OutboxPollInterval, positive, "must be > 0"},
		{envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegative, "must be >= 0"},
		{envSubscribeTimeout, &cfg.SubscribeTimeout, positive, "must be > 0"},
		{envWriteTimeout, &cfg.WriteTimeout, positive, "must be > 0"},
		{envOrderRetention, &cfg.OrderRetention, positive, "must be > 0"},
		{envRetentionInterval, &cfg.RetentionInterval, positive, "must be > 0"},
	}
	for _, v := range durationVars {
		raw, ok := lookup(v.key)
		if !ok {
			continue
		}
		value, err := parseDuration(raw, v.valid, v.rule)
		if err != nil {
			warn(v.key, raw, err)
			continue
		}
		*v.target = value
	}

	intVars := []struct {
		key    string
		target *int
	}{
		{envOutboxBatchSize, &cfg.OutboxBatchSize},
		{envOutboxMaxAttempts, &cfg.OutboxMaxAttempts},
	}
	for _, v := range intVars {
		raw, ok := lookup(v.key)
		if !ok {
			continue
		}
		value, err := parseInt(raw, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warn(v.key, raw, err)
			continue
		}
		*v.target = value
	}

	return cfg, warnings
}

// setupLogger настраивает глобальный logrus по STOREFRONT_LOG_LEVEL и STOREFRONT_LOG_FORMAT.
func setupLogger(lookup envLookup) []string {
	var warnings []string

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	if raw, ok := lookup(envLogFormat); ok {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "", "text":
		case "json":
			log.SetFormatter(&log.JSONFormatter{})
		default:
			warnings = append(warnings, fmt.Sprintf("invalid %s=%q: use text|json, using text", envLogFormat, raw))
		}
	}

	if raw, ok := lookup(envLogLevel); ok && strings.TrimSpace(raw) != "" {
		level, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("invalid %s=%q: %v, using info", envLogLevel, raw, err))
		} else {
			log.SetLevel(level)
		}
	}

	return warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean value")
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("%s", rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("%s", rule)
	}
	return value, nil
}
