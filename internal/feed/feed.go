// Package feed доставляет изменения интересов и предложений подписчикам:
// через брокер событий внутри процесса и через периодический опрос.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Kind описывает тип события.
type Kind string

const (
	KindIntentCreated Kind = "intent_created"
	KindIntentClosed  Kind = "intent_closed"
	KindOfferChanged  Kind = "offer_changed"
)

// Event уведомляет об изменении. Подписчик перечитывает данные сам.
type Event struct {
	Kind     Kind
	IntentID uuid.UUID
	OfferID  uuid.UUID
	At       time.Time
}

// IntentTopic возвращает тему событий по интересу.
func IntentTopic(id uuid.UUID) string { return "intent:" + id.String() }

// SegmentTopic возвращает тему новых интересов в категории.
func SegmentTopic(category string) string { return "segment:" + category }

// SupplierTopic возвращает тему событий по предложениям поставщика.
func SupplierTopic(id uuid.UUID) string { return "supplier:" + id.String() }

// BuyerTopic возвращает тему событий по интересам покупателя.
func BuyerTopic(id uuid.UUID) string { return "buyer:" + id.String() }

const defaultBuffer = 16

// Broker рассылает события подписчикам тем. Publish никогда не блокируется:
// если буфер подписчика заполнен, событие для него отбрасывается.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	buffer int
}

type subscription struct {
	ch     chan Event
	topics []string
	once   sync.Once
}

// NewBroker создаёт брокер с буфером на подписчика по умолчанию.
func NewBroker() *Broker {
	return &Broker{
		subs:   make(map[string]map[*subscription]struct{}),
		buffer: defaultBuffer,
	}
}

// Subscribe подписывает на одну или несколько тем. Возвращённая функция
// отменяет подписку и закрывает канал; повторный вызов безопасен.
func (b *Broker) Subscribe(topics ...string) (<-chan Event, func()) {
	sub := &subscription{
		ch:     make(chan Event, b.buffer),
		topics: topics,
	}

	b.mu.Lock()
	for _, t := range topics {
		set, ok := b.subs[t]
		if !ok {
			set = make(map[*subscription]struct{})
			b.subs[t] = set
		}
		set[sub] = struct{}{}
	}
	b.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			b.mu.Lock()
			for _, t := range sub.topics {
				delete(b.subs[t], sub)
				if len(b.subs[t]) == 0 {
					delete(b.subs, t)
				}
			}
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish отправляет событие подписчикам всех указанных тем. Подписчик,
// оформивший несколько из этих тем, получает событие один раз.
func (b *Broker) Publish(ev Event, topics ...string) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	seen := make(map[*subscription]struct{})
	for _, t := range topics {
		for sub := range b.subs[t] {
			if _, ok := seen[sub]; ok {
				continue
			}
			seen[sub] = struct{}{}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
}

// Subscribers возвращает число подписчиков темы.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Poll вызывает load сразу и затем на каждом тике, передавая результат в deliver
// целиком. Ошибки load пропускаются до следующего тика. Возвращается при отмене ctx.
func Poll[T any](ctx context.Context, interval time.Duration, load func(context.Context) (T, error), deliver func(T)) {
	refresh := func() {
		v, err := load(ctx)
		if err != nil {
			return
		}
		deliver(v)
	}

	refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
