package cart

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	cartrepo "ourofino-storefront/internal/repository/cart"
)

type session struct {
	store    *Store
	lastSeen time.Time
}

// Sessions owns one Store per browsing session, created on first use.
type Sessions struct {
	mu      sync.Mutex
	repo    cartrepo.Repository
	logger  *zap.Logger
	idle    time.Duration
	now     func() time.Time
	entries map[string]*session
	loads   singleflight.Group
}

func NewSessions(repo cartrepo.Repository, idle time.Duration, logger *zap.Logger) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &Sessions{
		repo:    repo,
		logger:  logger,
		idle:    idle,
		now:     time.Now,
		entries: make(map[string]*session),
	}
}

// Get returns the Store for key, loading it from the repository on first use.
// The load runs outside mu so a slow backend only delays callers of that key.
func (s *Sessions) Get(ctx context.Context, key string) *Store {
	if store := s.lookup(key); store != nil {
		return store
	}
	v, _, _ := s.loads.Do(key, func() (any, error) {
		if store := s.lookup(key); store != nil {
			return store, nil
		}
		store := Load(ctx, s.repo, key, s.logger, WithReloader(func(context.Context) { s.Evict(key) }))
		s.mu.Lock()
		s.entries[key] = &session{store: store, lastSeen: s.now()}
		s.mu.Unlock()
		return store, nil
	})
	return v.(*Store)
}

func (s *Sessions) lookup(key string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	e.lastSeen = s.now()
	return e.store
}

// Evict drops the in-memory Store so the next Get rebuilds it from storage.
func (s *Sessions) Evict(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len reports the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep evicts sessions idle for longer than the configured timeout.
func (s *Sessions) Sweep() int {
	cutoff := s.now().Add(-s.idle)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, e := range s.entries {
		if e.lastSeen.Before(cutoff) {
			delete(s.entries, key)
			n++
		}
	}
	return n
}

func (s *Sessions) rehydrate(ctx context.Context, key string) {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if ok {
		e.store.Rehydrate(ctx)
	}
}

// Run sweeps idle sessions and, when the repository is shared between
// processes, rehydrates sessions written elsewhere. It returns when ctx ends.
func (s *Sessions) Run(ctx context.Context) error {
	var changes <-chan string
	if feed, ok := s.repo.(cartrepo.ChangeFeed); ok {
		ch, err := feed.Changes(ctx)
		if err != nil {
			s.logger.Warn("cart sessions: change feed unavailable", zap.Error(err))
		} else {
			changes = ch
		}
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("cart sessions: swept idle", zap.Int("count", n))
			}
		case key, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			s.rehydrate(ctx, key)
		}
	}
}
