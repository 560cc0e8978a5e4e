package ordersync

import (
	"context"
	"sync"
)

// Subscription: живая подписка на заказы одного магазина.
type Subscription struct {
	shopID  string
	updates chan Snapshot
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// ShopID возвращает магазин подписки.
func (s *Subscription) ShopID() string {
	return s.shopID
}

// Updates возвращает канал снимков. Канал закрывается после Cancel, отмены
// родительского контекста или остановки канала изменений.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.updates
}

// Done закрывается, когда подписка полностью освободила ресурсы.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Cancel останавливает подписку. Повторные вызовы безопасны; после возврата
// снимки больше не доставляются.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
	<-s.done
}
