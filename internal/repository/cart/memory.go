package cart

import (
	"context"
	"encoding/json"
	"sync"

	"ourofino-storefront/internal/domain"
)

// Memory keeps serialized slots in process. Used for local runs and tests.
type Memory struct {
	mu     sync.Mutex
	slots  map[string][]byte
	writes int
}

func NewMemory() *Memory {
	return &Memory{slots: make(map[string][]byte)}
}

func (m *Memory) Load(_ context.Context, key string) (*domain.CartState, error) {
	m.mu.Lock()
	raw, ok := m.slots[key]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	var state domain.CartState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (m *Memory) Save(_ context.Context, key string, state domain.CartState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.slots[key] = raw
	m.writes++
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.slots, key)
	m.writes++
	m.mu.Unlock()
	return nil
}

// Raw returns the stored bytes for a slot.
func (m *Memory) Raw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.slots[key]
	return raw, ok
}

// WriteCount returns the number of Save and Delete calls.
func (m *Memory) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
