package notify

import (
	"context"
	"sync"
)

// Registry знает, какие сессии состоят в группе. Член группы имеет вид "node/session".
type Registry interface {
	Add(ctx context.Context, group, member string) error
	Remove(ctx context.Context, group, member string) error
	Lookup(ctx context.Context, group string) ([]string, error)
}

// MemoryRegistry — реестр одного узла.
type MemoryRegistry struct {
	mu     sync.RWMutex
	groups map[string]map[string]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{groups: make(map[string]map[string]struct{})}
}

func (r *MemoryRegistry) Add(_ context.Context, group, member string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[group]
	if !ok {
		g = make(map[string]struct{})
		r.groups[group] = g
	}
	g[member] = struct{}{}
	return nil
}

func (r *MemoryRegistry) Remove(_ context.Context, group, member string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.groups[group]
	delete(g, member)
	if len(g) == 0 {
		delete(r.groups, group)
	}
	return nil
}

func (r *MemoryRegistry) Lookup(_ context.Context, group string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.groups[group]))
	for m := range r.groups[group] {
		out = append(out, m)
	}
	return out, nil
}
