// Package feed раздаёт сигналы об изменениях заказов подписчикам конкретного магазина.
package feed

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrHubClosed возвращается при подписке на остановленный hub.
var ErrHubClosed = errors.New("feed hub is closed")

type watcher struct {
	ch chan domain.FeedEvent
}

// Hub: fan-out сигналов по shopID. Каждый подписчик получает буфер на одно событие:
// серия изменений схлопывается в один сигнал, потому что потребитель всё равно
// перечитывает полный снимок.
type Hub struct {
	mu       sync.Mutex
	watchers map[string]map[*watcher]struct{}
	closed   bool
}

// NewHub создаёт пустой hub.
func NewHub() *Hub {
	return &Hub{watchers: make(map[string]map[*watcher]struct{})}
}

// Watch регистрирует подписчика магазина. Канал закрывается после отмены ctx или Close.
func (h *Hub) Watch(ctx context.Context, shopID string) (<-chan domain.FeedEvent, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return nil, domain.ErrShopIDRequired
	}

	w := &watcher{ch: make(chan domain.FeedEvent, 1)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	set, ok := h.watchers[shopID]
	if !ok {
		set = make(map[*watcher]struct{})
		h.watchers[shopID] = set
	}
	set[w] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.remove(shopID, w)
	}()

	return w.ch, nil
}

// Publish сообщает подписчикам магазина об изменении набора заказов.
func (h *Hub) Publish(shopID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for w := range h.watchers[shopID] {
		select {
		case w.ch <- domain.FeedEvent{ShopID: shopID}:
		default:
			// Сигнал уже ждёт чтения.
		}
	}
}

// Broadcast отправляет ошибку канала изменений всем подписчикам.
// Ошибка вытесняет непрочитанный сигнал, чтобы потребитель не пропустил сбой.
func (h *Hub) Broadcast(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for shopID, set := range h.watchers {
		for w := range set {
			replace(w.ch, domain.FeedEvent{ShopID: shopID, Err: err})
		}
	}
}

// Resync отправляет обычный сигнал всем подписчикам, например после переподключения.
func (h *Hub) Resync() {
	h.mu.Lock()
	shops := make([]string, 0, len(h.watchers))
	for shopID := range h.watchers {
		shops = append(shops, shopID)
	}
	h.mu.Unlock()

	for _, shopID := range shops {
		h.Publish(shopID)
	}
}

// Watchers возвращает число подписчиков магазина.
func (h *Hub) Watchers(shopID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[shopID])
}

// Close закрывает каналы всех подписчиков и запрещает новые подписки.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for shopID, set := range h.watchers {
		for w := range set {
			close(w.ch)
		}
		delete(h.watchers, shopID)
	}
}

func (h *Hub) remove(shopID string, w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.watchers[shopID]
	if !ok {
		return
	}
	if _, ok := set[w]; !ok {
		return
	}
	delete(set, w)
	close(w.ch)
	if len(set) == 0 {
		delete(h.watchers, shopID)
	}
}

func replace(ch chan domain.FeedEvent, event domain.FeedEvent) {
	select {
	case ch <- event:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- event:
	default:
	}
}

var _ domain.OrderFeed = (*Hub)(nil)
