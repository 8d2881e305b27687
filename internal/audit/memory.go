package audit

import (
	"context"
	"sync"
)

// MemoryStorage держит журнал в памяти (single-node и тесты).
type MemoryStorage struct {
	mu     sync.Mutex
	events []Transition
}

func (m *MemoryStorage) WriteBatch(_ context.Context, events []Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *MemoryStorage) ForRequest(id int64) []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transition
	for _, e := range m.events {
		if e.RequestID == id {
			out = append(out, e)
		}
	}
	return out
}
