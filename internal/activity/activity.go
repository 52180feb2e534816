// Package activity хранит историю переговоров по предложениям.
package activity

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/mmeshcher/comproum/internal/model"
)

// Action описывает действие участника переговоров.
type Action string

const (
	ActionPropose   Action = "propose"
	ActionAccept    Action = "accept"
	ActionReject    Action = "reject"
	ActionCounter   Action = "counter"
	ActionRepropose Action = "repropose"
	ActionFollowUp  Action = "follow_up"
)

// Entry описывает запись истории предложения.
type Entry struct {
	OfferID      uuid.UUID
	IntentID     uuid.UUID
	ActorID      uuid.UUID
	Action       Action
	FromStatus   model.OfferStatus
	ToStatus     model.OfferStatus
	Price        int64
	CounterPrice *int64
	Note         string
	At           time.Time
}

// Log описывает хранилище истории.
type Log interface {
	Record(ctx context.Context, e Entry) error
	History(ctx context.Context, offerID uuid.UUID) ([]Entry, error)
}

// MemoryLog хранит историю в памяти процесса.
type MemoryLog struct {
	mu      sync.RWMutex
	entries map[uuid.UUID][]Entry
}

// NewMemoryLog создаёт пустую историю.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{entries: make(map[uuid.UUID][]Entry)}
}

// Record добавляет запись.
func (l *MemoryLog) Record(_ context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[e.OfferID] = append(l.entries[e.OfferID], e)
	return nil
}

// History возвращает записи предложения в порядке добавления.
func (l *MemoryLog) History(_ context.Context, offerID uuid.UUID) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.entries[offerID]), nil
}
