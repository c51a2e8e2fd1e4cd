package repo

import (
	"context"
	"sync"

	"github.com/Skotchmaster/pharmacy_shop/internal/cart"
)

// MemorySnapshots is process-local storage for development and tests.
type MemorySnapshots struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{data: make(map[string][]byte)}
}

func (m *MemorySnapshots) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, cart.ErrNoSnapshot
	}
	return append([]byte(nil), v...), nil
}

func (m *MemorySnapshots) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemorySnapshots) Ping(context.Context) error { return nil }
