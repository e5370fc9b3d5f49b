package chat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
	"ourofino-storefront/internal/repository/conversation"
)

type hubEntry[V any] struct {
	view     V
	refs     int
	released time.Time
}

// Hub shares live views between the requests and streams of one viewer or
// agent. A view stays up while referenced and is closed once it has been
// idle longer than the configured TTL.
type Hub struct {
	repo      conversation.Repository
	templates Templates
	hours     BusinessHours
	idle      time.Duration
	logger    *zap.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	customers map[string]*hubEntry[*CustomerView]
	agents    map[string]*hubEntry[*AgentView]
}

func NewHub(ctx context.Context, repo conversation.Repository, templates Templates, hours BusinessHours, idle time.Duration, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Hub{
		repo:      repo,
		templates: templates,
		hours:     hours,
		idle:      idle,
		logger:    logger,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		customers: make(map[string]*hubEntry[*CustomerView]),
		agents:    make(map[string]*hubEntry[*AgentView]),
	}
}

func (h *Hub) Templates() Templates { return h.templates }

// Customer returns the viewer's view and a release func that must be called
// once the caller is done with it.
func (h *Hub) Customer(viewer domain.Participant) (*CustomerView, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.customers[viewer.ID]
	if !ok {
		v, err := NewCustomerView(h.ctx, h.repo, viewer, h.hours, h.logger)
		if err != nil {
			return nil, nil, err
		}
		e = &hubEntry[*CustomerView]{view: v}
		h.customers[viewer.ID] = e
	}
	e.refs++
	return e.view, h.releaser(func() { h.release(&e.refs, &e.released) }), nil
}

// Agent is Customer for support agents.
func (h *Hub) Agent(agent domain.Participant) (*AgentView, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.agents[agent.ID]
	if !ok {
		v, err := NewAgentView(h.ctx, h.repo, agent, h.templates, h.hours.Location, h.logger)
		if err != nil {
			return nil, nil, err
		}
		e = &hubEntry[*AgentView]{view: v}
		h.agents[agent.ID] = e
	}
	e.refs++
	return e.view, h.releaser(func() { h.release(&e.refs, &e.released) }), nil
}

func (h *Hub) releaser(fn func()) func() {
	var once sync.Once
	return func() { once.Do(fn) }
}

func (h *Hub) release(refs *int, released *time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if *refs > 0 {
		*refs--
	}
	if *refs == 0 {
		*released = h.now()
	}
}

// Sweep closes unreferenced views idle for longer than the TTL and returns
// how many were closed.
func (h *Hub) Sweep() int {
	cutoff := h.now().Add(-h.idle)
	var closers []func()

	h.mu.Lock()
	for id, e := range h.customers {
		if e.refs == 0 && e.released.Before(cutoff) {
			delete(h.customers, id)
			closers = append(closers, e.view.Close)
		}
	}
	for id, e := range h.agents {
		if e.refs == 0 && e.released.Before(cutoff) {
			delete(h.agents, id)
			closers = append(closers, e.view.Close)
		}
	}
	h.mu.Unlock()

	for _, c := range closers {
		c()
	}
	if len(closers) > 0 {
		h.logger.Debug("closed idle chat views", zap.Int("count", len(closers)))
	}
	return len(closers)
}

// Run sweeps periodically until ctx ends, then closes every view.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.idle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Close()
			return nil
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// Close stops every view.
func (h *Hub) Close() {
	h.mu.Lock()
	var closers []func()
	for id, e := range h.customers {
		delete(h.customers, id)
		closers = append(closers, e.view.Close)
	}
	for id, e := range h.agents {
		delete(h.agents, id)
		closers = append(closers, e.view.Close)
	}
	h.mu.Unlock()
	for _, c := range closers {
		c()
	}
	h.cancel()
}

// Active reports how many views are live.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.customers) + len(h.agents)
}
