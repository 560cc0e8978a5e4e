// Package outbox доставляет события смены статуса из transactional outbox в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/retry"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 5 * time.Second
)

var (
	statusEventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_outbox_status_events_total",
		Help: "Order status events handled by the outbox worker, by outcome.",
	}, []string{"outcome"})
	statusEventsBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_outbox_backlog",
		Help: "Order status events waiting in the outbox.",
	})
	statusEventsLag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_outbox_lag_seconds",
		Help: "Time since the oldest undelivered order status event was written.",
	})
)

// Значения label outcome.
const (
	outcomeSent      = "sent"
	outcomeFailed    = "failed"
	outcomePostponed = "postponed"
	outcomeDLQFailed = "dlq_failed"
)

// BatchResult: итог одного прохода по outbox.
type BatchResult struct {
	Sent      int
	Failed    int
	Postponed int
}

// deadLetter: запись о событии, которое не удалось доставить. Формат читает cmd/dlq-replay.
type deadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	Attempts      int             `json:"attempts"`
	FailedAt      time.Time       `json:"failed_at"`
}

// WorkerOptions задаёт параметры outbox worker.
type WorkerOptions struct {
	Logger         *log.Entry
	DLQPublisher   domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	Breaker        *retry.CircuitBreaker
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithDLQPublisher: куда отправлять события, для которых кончились попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) {
		opts.DLQPublisher = publisher
	}
}

// WithPollInterval задаёт паузу между проходами.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize ограничивает число событий за проход.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxAttempts задаёт число попыток доставки одного события.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.RetryBaseDelay = delay
	}
}

// WithCircuitBreaker пропускает публикацию через breaker: пока он разомкнут,
// события остаются pending до следующего прохода.
func WithCircuitBreaker(breaker *retry.CircuitBreaker) Option {
	return func(opts *WorkerOptions) {
		opts.Breaker = breaker
	}
}

// Worker доставляет события смены статуса заказа из outbox.
type Worker struct {
	repo         domain.OutboxRepository
	publisher    domain.OutboxPublisher
	dlqPublisher domain.OutboxPublisher
	logger       *log.Entry
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	retrier      *retry.Retrier
	breaker      *retry.CircuitBreaker
	now          func() time.Time
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "outbox-worker")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}

	return &Worker{
		repo:         repo,
		publisher:    publisher,
		dlqPublisher: opts.DLQPublisher,
		logger:       opts.Logger,
		pollInterval: opts.PollInterval,
		batchSize:    opts.BatchSize,
		maxAttempts:  opts.MaxAttempts,
		retrier: retry.New(retry.Config{
			MaxAttempts:   opts.MaxAttempts,
			InitialDelay:  opts.RetryBaseDelay,
			MaxDelay:      maxRetryDelay,
			BackoffFactor: 2,
		}, opts.Logger),
		breaker: opts.Breaker,
		now:     time.Now,
	}
}

// Run проходит по outbox каждые pollInterval до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if result := w.ProcessOnce(ctx); result.Sent+result.Failed > 0 {
			w.logger.WithFields(log.Fields{
				"sent":      result.Sent,
				"failed":    result.Failed,
				"postponed": result.Postponed,
			}).Debug("outbox batch delivered")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce доставляет одну пачку pending-событий. Разомкнутый breaker
// откладывает остаток пачки без пометки failed.
func (w *Worker) ProcessOnce(ctx context.Context) BatchResult {
	var result BatchResult
	if ctx.Err() != nil {
		return result
	}
	defer w.observeBacklog(ctx)

	events, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to read pending status events")
		return result
	}

	for i, event := range events {
		if ctx.Err() != nil {
			return result
		}
		entry := w.logger.WithFields(log.Fields{
			"outbox_id": event.ID,
			"order_id":  event.AggregateID,
		})

		err := w.deliver(ctx, event)
		switch {
		case err == nil:
			result.Sent++
			statusEventsDelivered.WithLabelValues(outcomeSent).Inc()
			if markErr := w.repo.MarkSent(ctx, event.ID); markErr != nil {
				entry.WithError(markErr).Warn("status event delivered but not marked sent")
			}
		case errors.Is(err, retry.ErrCircuitOpen):
			result.Postponed = len(events) - i
			statusEventsDelivered.WithLabelValues(outcomePostponed).Add(float64(result.Postponed))
			entry.WithField("postponed", result.Postponed).Warn("broker circuit is open, status events stay pending")
			return result
		case ctx.Err() != nil:
			return result
		default:
			result.Failed++
			statusEventsDelivered.WithLabelValues(outcomeFailed).Inc()
			entry.WithError(err).WithField("event_type", event.EventType).Error("status event undeliverable")
			w.deadLetter(ctx, event, err, entry)
		}
	}
	return result
}

// deliver публикует событие с повторами. Любой сбой брокера считается временным,
// кроме разомкнутого breaker.
func (w *Worker) deliver(ctx context.Context, event domain.OutboxMessage) error {
	return w.retrier.Do(ctx, "outbox.publish", func(ctx context.Context) error {
		err := w.publish(ctx, event)
		if err == nil || errors.Is(err, retry.ErrCircuitOpen) {
			return err
		}
		return domain.Transient(err)
	})
}

func (w *Worker) publish(ctx context.Context, event domain.OutboxMessage) error {
	if w.breaker == nil {
		return w.publisher.Publish(ctx, event)
	}
	return w.breaker.Execute("outbox.publish", func() error {
		return w.publisher.Publish(ctx, event)
	})
}

// deadLetter отправляет событие в DLQ и помечает его failed; без DLQ событие
// только помечается failed.
func (w *Worker) deadLetter(ctx context.Context, event domain.OutboxMessage, cause error, entry *log.Entry) {
	if w.dlqPublisher != nil {
		if err := w.publishDeadLetter(ctx, event, cause); err != nil {
			statusEventsDelivered.WithLabelValues(outcomeDLQFailed).Inc()
			entry.WithError(err).Warn("failed to publish status event to DLQ")
		}
	}
	if err := w.repo.MarkFailed(ctx, event.ID); err != nil {
		entry.WithError(err).Warn("failed to mark status event as failed")
	}
}

func (w *Worker) publishDeadLetter(ctx context.Context, event domain.OutboxMessage, cause error) error {
	payload, err := json.Marshal(deadLetter{
		OutboxID:      event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishError:  cause.Error(),
		Attempts:      w.maxAttempts,
		FailedAt:      w.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}

	return w.dlqPublisher.Publish(ctx, domain.OutboxMessage{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
	})
}

func (w *Worker) observeBacklog(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to read outbox backlog")
		return
	}

	statusEventsBacklog.Set(float64(stats.PendingCount))
	lag := 0.0
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		lag = max(w.now().Sub(stats.OldestPendingAt).Seconds(), 0)
	}
	statusEventsLag.Set(lag)
}
