package bus

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Memory — in-process шина для single-node запуска и тестов.
// Каждая группа получает свою копию сообщения (fan-out по группам).
type Memory struct {
	mu     sync.Mutex
	queues map[string]map[string]*memoryQueue // routingKey -> group -> queue
	groups map[string]*memoryQueue            // group -> queue
	wait   time.Duration
	closed bool
}

func NewMemory() *Memory {
	return &Memory{
		queues: make(map[string]map[string]*memoryQueue),
		groups: make(map[string]*memoryQueue),
		wait:   100 * time.Millisecond,
	}
}

type memoryQueue struct {
	mu     sync.Mutex
	items  []Message
	notify chan struct{}
}

func (q *memoryQueue) push(m Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (m *Memory) Publish(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("bus: memory broker closed")
	}
	for _, q := range m.queues[msg.RoutingKey] {
		q.push(msg)
	}
	return nil
}

// Subscribe привязывает очередь группы к ключам. Сообщения, опубликованные до привязки, не видны.
func (m *Memory) Subscribe(_ context.Context, group string, routingKeys ...string) (Source, error) {
	if len(routingKeys) == 0 {
		return nil, errors.New("bus: subscribe without routing keys")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.groups[group]
	if !ok {
		q = &memoryQueue{notify: make(chan struct{}, 1)}
		m.groups[group] = q
	}
	for _, k := range withRetryKeys(group, routingKeys) {
		if m.queues[k] == nil {
			m.queues[k] = make(map[string]*memoryQueue)
		}
		m.queues[k][group] = q
	}
	return &memorySource{q: q, group: group, wait: m.wait}, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

type memorySource struct {
	q     *memoryQueue
	group string
	wait  time.Duration
}

func (s *memorySource) Receive(ctx context.Context) ([]Delivery, error) {
	timer := time.NewTimer(s.wait)
	defer timer.Stop()

	for {
		s.q.mu.Lock()
		if len(s.q.items) > 0 {
			items := s.q.items
			s.q.items = nil
			s.q.mu.Unlock()

			out := make([]Delivery, len(items))
			for i, it := range items {
				out[i] = Delivery{Message: it}
			}
			return out, nil
		}
		s.q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-s.q.notify:
		}
	}
}

func (s *memorySource) Ack(context.Context, Delivery) error { return nil }
func (s *memorySource) Group() string                       { return s.group }
func (s *memorySource) Close() error                        { return nil }
