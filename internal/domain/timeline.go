package domain

import (
	"strings"
	"time"
)

// TimelineEventStatusChanged: тип события смены статуса заказа.
const TimelineEventStatusChanged = "OrderStatusChanged"

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

// Normalize проверяет событие перед записью и приводит время к UTC с точностью
// до микросекунды, как его хранит PostgreSQL. Нулевое время заменяется на now.
func (e TimelineEvent) Normalize(now time.Time) (TimelineEvent, error) {
	e.OrderID = strings.TrimSpace(e.OrderID)
	if e.OrderID == "" {
		return TimelineEvent{}, ErrOrderIDRequired
	}
	if strings.TrimSpace(e.Type) == "" {
		return TimelineEvent{}, ErrTimelineTypeRequired
	}
	if e.Occurred.IsZero() {
		e.Occurred = now
	}
	e.Occurred = e.Occurred.UTC().Truncate(time.Microsecond)
	return e, nil
}
