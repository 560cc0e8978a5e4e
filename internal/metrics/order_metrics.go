// Package metrics содержит Prometheus-метрики жизненного цикла заказов и синхронизации.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Значения label result.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultRejected = "rejected"
)

// OrderMetrics: метрики смены статусов и подписок на заказы.
// Методы безопасно вызывать у nil-получателя.
type OrderMetrics struct {
	transitions      *prometheus.CounterVec
	changeDuration   prometheus.Histogram
	subscriptions    prometheus.Gauge
	snapshots        *prometheus.CounterVec
	queryDuration    prometheus.Histogram
	feedErrors       prometheus.Counter
	timelineEvents   prometheus.Counter
	outboxEvents     prometheus.Counter
	checkoutOrders   *prometheus.CounterVec
	retentionDeletes prometheus.Counter
}

// NewOrderMetrics регистрирует метрики в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в заданном registerer.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_status_transitions_total",
			Help: "Order status change attempts by source, target and result",
		}, []string{"from", "to", "result"}),
		changeDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_order_status_change_duration_seconds",
			Help:    "Duration of order status changes in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		subscriptions: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_order_subscriptions_active",
			Help: "Number of active order subscriptions",
		}),
		snapshots: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_snapshots_delivered_total",
			Help: "Order snapshots delivered to subscribers by result",
		}, []string{"result"}),
		queryDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_order_snapshot_query_duration_seconds",
			Help:    "Duration of shop order snapshot queries in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		feedErrors: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_order_feed_errors_total",
			Help: "Errors reported by the order change feed",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		checkoutOrders: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_orders_total",
			Help: "Orders ingested from checkout events by result",
		}, []string{"result"}),
		retentionDeletes: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_retention_orders_deleted_total",
			Help: "Terminal orders removed by the retention worker",
		}),
	}
}

// RecordTransition учитывает попытку смены статуса.
func (m *OrderMetrics) RecordTransition(from, to, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, result).Inc()
	m.changeDuration.Observe(duration.Seconds())
}

// SubscriptionStarted увеличивает число активных подписок.
func (m *OrderMetrics) SubscriptionStarted() {
	if m == nil {
		return
	}
	m.subscriptions.Inc()
}

// SubscriptionFinished уменьшает число активных подписок.
func (m *OrderMetrics) SubscriptionFinished() {
	if m == nil {
		return
	}
	m.subscriptions.Dec()
}

// RecordSnapshot учитывает доставленный подписчику снимок.
func (m *OrderMetrics) RecordSnapshot(result string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(result).Inc()
}

// RecordQueryDuration записывает время чтения снимка.
func (m *OrderMetrics) RecordQueryDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.Observe(duration.Seconds())
}

// RecordFeedError учитывает ошибку канала изменений.
func (m *OrderMetrics) RecordFeedError() {
	if m == nil {
		return
	}
	m.feedErrors.Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}

// RecordCheckoutOrder учитывает заказ, пришедший из checkout.
func (m *OrderMetrics) RecordCheckoutOrder(result string) {
	if m == nil {
		return
	}
	m.checkoutOrders.WithLabelValues(result).Inc()
}

// RecordRetentionDeleted учитывает удалённые retention-воркером заказы.
func (m *OrderMetrics) RecordRetentionDeleted(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.retentionDeletes.Add(float64(count))
}
