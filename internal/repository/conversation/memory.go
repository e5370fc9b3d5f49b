package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"ourofino-storefront/internal/domain"
)

type watcher struct {
	ctx   context.Context
	query Query
	id    string
	many  chan []domain.Conversation
	one   chan domain.Conversation
}

// Memory keeps conversations in process. It backs development runs without
// a Firestore project and the package tests.
type Memory struct {
	mu       sync.Mutex
	docs     map[string]domain.Conversation
	watchers map[*watcher]struct{}
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		docs:     make(map[string]domain.Conversation),
		watchers: make(map[*watcher]struct{}),
		now:      time.Now,
	}
}

func (m *Memory) Create(_ context.Context, c domain.Conversation) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, exists := m.docs[c.ID]; exists {
		return nil, domain.ErrAlreadyExists
	}
	if c.Messages == nil {
		c.Messages = []domain.Message{}
	}
	m.docs[c.ID] = c.Clone()
	m.broadcastLocked()
	out := c.Clone()
	return &out, nil
}

func (m *Memory) Get(_ context.Context, id string) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := c.Clone()
	return &out, nil
}

func (m *Memory) AppendMessage(_ context.Context, id string, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if c.Status.Terminal() {
		return domain.ErrConversationTerminal
	}
	if c.HasMessage(msg.Key()) {
		return nil
	}
	c = c.Clone()
	c.Messages = append(c.Messages, msg)
	c.LastActivityAt = m.now()
	m.docs[id] = c
	m.broadcastLocked()
	return nil
}

func (m *Memory) Transition(_ context.Context, id string, to domain.ConversationStatus, agent *domain.Participant) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c = c.Clone()
	if err := applyTransition(&c, to, agent, m.now()); err != nil {
		return nil, err
	}
	m.docs[id] = c
	m.broadcastLocked()
	out := c.Clone()
	return &out, nil
}

func (m *Memory) MarkReadBefore(_ context.Context, id string, t time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.docs[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	c = c.Clone()
	n := markRead(c.Messages, t)
	if n > 0 {
		m.docs[id] = c
		m.broadcastLocked()
	}
	return n, nil
}

func (m *Memory) Watch(ctx context.Context, q Query) (<-chan []domain.Conversation, error) {
	w := &watcher{ctx: ctx, query: q, many: make(chan []domain.Conversation, 1)}
	m.register(w)
	return w.many, nil
}

func (m *Memory) WatchOne(ctx context.Context, id string) (<-chan domain.Conversation, error) {
	if _, err := m.Get(ctx, id); err != nil {
		return nil, err
	}
	w := &watcher{ctx: ctx, id: id, one: make(chan domain.Conversation, 1)}
	m.register(w)
	return w.one, nil
}

func (m *Memory) register(w *watcher) {
	m.mu.Lock()
	m.watchers[w] = struct{}{}
	m.sendLocked(w)
	m.mu.Unlock()

	go func() {
		<-w.ctx.Done()
		m.mu.Lock()
		delete(m.watchers, w)
		if w.many != nil {
			close(w.many)
		}
		if w.one != nil {
			close(w.one)
		}
		m.mu.Unlock()
	}()
}

func (m *Memory) broadcastLocked() {
	for w := range m.watchers {
		m.sendLocked(w)
	}
}

// sendLocked never blocks: deliver replaces a pending snapshot instead of
// waiting for the reader.
func (m *Memory) sendLocked(w *watcher) {
	if w.ctx.Err() != nil {
		return
	}
	if w.one != nil {
		if c, ok := m.docs[w.id]; ok {
			deliver(w.ctx, w.one, c.Clone())
		}
		return
	}
	list := make([]domain.Conversation, 0, len(m.docs))
	for _, c := range m.docs {
		if w.query.Matches(c) {
			list = append(list, c.Clone())
		}
	}
	sortNewestFirst(list)
	deliver(w.ctx, w.many, list)
}

// WatcherCount reports the live subscriptions.
func (m *Memory) WatcherCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}
