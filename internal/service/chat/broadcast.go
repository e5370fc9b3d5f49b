package chat

import (
	"sync"

	"ourofino-storefront/internal/domain"
)

// broadcaster fans state snapshots out to stream subscribers. Each subscriber
// holds at most one undelivered snapshot; a newer one replaces it.
type broadcaster[T any] struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan T
	closed bool
}

func newBroadcaster[T any]() *broadcaster[T] {
	return &broadcaster[T]{subs: make(map[int]chan T)}
}

func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

func (b *broadcaster[T]) subscribe(initial T) (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan T, 1)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	ch <- initial
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *broadcaster[T]) publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		offer(ch, v)
	}
}

func (b *broadcaster[T]) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *broadcaster[T]) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// reconcile re-applies optimistic messages the feed has not echoed yet and
// returns those still pending.
func reconcile(c *domain.Conversation, pending []domain.Message) []domain.Message {
	var still []domain.Message
	for _, m := range pending {
		if c.HasMessage(m.Key()) {
			continue
		}
		c.Messages = append(c.Messages, m)
		still = append(still, m)
	}
	return still
}
