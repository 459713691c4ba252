// Package events fans document changes out to in-process subscribers.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gurkanbulca/collabdesk/pkg/logger"
)

// Collections that publish changes
const (
	CollectionTasks       = "tasks"
	CollectionSubmissions = "submissions"
	CollectionUsers       = "users"
)

// Op is the kind of write behind a change
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change describes one written document
type Change struct {
	Collection string    `json:"collection"`
	Op         Op        `json:"op"`
	DocumentID string    `json:"documentId"`
	At         time.Time `json:"at"`
	Document   any       `json:"document,omitempty"`
}

// Handler receives batches of changes for the collection it subscribed to
type Handler func(batch []Change)

const subscriberBuffer = 32

type subscriber struct {
	ch   chan []Change
	done chan struct{}
}

// Bus delivers each subscriber's batches on its own goroutine. A subscriber
// that falls behind loses batches instead of blocking publishers.
type Bus struct {
	log *logger.Logger

	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

// NewBus creates an empty bus
func NewBus(log *logger.Logger) *Bus {
	if log == nil {
		log = logger.NewNop()
	}
	return &Bus{log: log, subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers h for collection. The returned cancel func stops
// delivery and waits for an in-flight batch to finish; calling it twice is safe.
func (b *Bus) Subscribe(collection string, h Handler) (cancel func()) {
	s := &subscriber{ch: make(chan []Change, subscriberBuffer), done: make(chan struct{})}

	b.mu.Lock()
	if b.subs[collection] == nil {
		b.subs[collection] = make(map[*subscriber]struct{})
	}
	b.subs[collection][s] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer close(s.done)
		for batch := range s.ch {
			h(batch)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.subs[collection]; ok {
				delete(subs, s)
				if len(subs) == 0 {
					delete(b.subs, collection)
				}
			}
			close(s.ch)
			b.mu.Unlock()
			<-s.done
		})
	}
}

// Publish groups changes by collection and hands each group to that
// collection's subscribers as one batch.
func (b *Bus) Publish(changes ...Change) {
	if len(changes) == 0 {
		return
	}

	grouped := make(map[string][]Change)
	order := make([]string, 0, 1)
	for _, c := range changes {
		if c.At.IsZero() {
			c.At = time.Now().UTC()
		}
		if _, ok := grouped[c.Collection]; !ok {
			order = append(order, c.Collection)
		}
		grouped[c.Collection] = append(grouped[c.Collection], c)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, collection := range order {
		batch := grouped[collection]
		for s := range b.subs[collection] {
			select {
			case s.ch <- batch:
			default:
				b.log.Warn("dropping change batch for slow subscriber",
					zap.String("collection", collection),
					zap.Int("changes", len(batch)))
			}
		}
	}
}

// Subscribers returns how many subscribers a collection has
func (b *Bus) Subscribers(collection string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[collection])
}
