// Package events is a small in-process publish/subscribe bus. Handlers run
// synchronously on the publishing goroutine, in subscription order.
package events

import (
	"sort"
	"sync"
)

// TopicTokenRefreshFailed is published when the refresh token was rejected and
// the stored session has been discarded.
const TopicTokenRefreshFailed = "auth:token-refresh-failed"

type Publisher interface {
	Publish(topic string)
}

type Subscriber interface {
	Subscribe(topic string, fn func()) (unsubscribe func())
}

type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]func()
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[uint64]func())}
}

func (b *Bus) Subscribe(topic string, fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]func())
	}
	b.subs[topic][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[topic], id)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
		})
	}
}

func (b *Bus) Publish(topic string) {
	// Snapshot first so handlers may unsubscribe or publish again.
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.subs[topic]))
	for id := range b.subs[topic] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]func(), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.subs[topic][id])
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn()
	}
}

func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
