package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingStorage struct {
	mu      sync.Mutex
	batches [][]Transition
	fail    bool
}

func (c *countingStorage) WriteBatch(_ context.Context, events []Transition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]Transition, len(events))
	copy(cp, events)
	c.batches = append(c.batches, cp)
	if c.fail {
		return errors.New("db down")
	}
	return nil
}

func (c *countingStorage) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func TestTrailFlushesOnStop(t *testing.T) {
	store := &countingStorage{}
	trail := NewTrail(store, Options{BatchSize: 10, FlushInterval: time.Hour}, zap.NewNop())
	trail.Start()

	for i := 0; i < 25; i++ {
		trail.Log(Transition{RequestID: int64(i), ToStatus: "Pending"})
	}
	trail.Stop()

	assert.Equal(t, 25, store.total())
	require.GreaterOrEqual(t, len(store.batches), 3)
	for _, b := range store.batches {
		assert.LessOrEqual(t, len(b), 10)
	}
}

func TestTrailFlushesOnTicker(t *testing.T) {
	store := &countingStorage{}
	trail := NewTrail(store, Options{BatchSize: 100, FlushInterval: 10 * time.Millisecond}, zap.NewNop())
	trail.Start()
	defer trail.Stop()

	trail.Log(Transition{RequestID: 1, ToStatus: "Approved"})

	assert.Eventually(t, func() bool { return store.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestTrailDropsAfterStop(t *testing.T) {
	store := &countingStorage{}
	trail := NewTrail(store, Options{}, zap.NewNop())
	trail.Start()
	trail.Stop()
	trail.Stop()

	assert.NotPanics(t, func() { trail.Log(Transition{RequestID: 1}) })
	assert.Equal(t, 0, store.total())
}

func TestTrailSurvivesStorageFailure(t *testing.T) {
	store := &countingStorage{fail: true}
	trail := NewTrail(store, Options{BatchSize: 1}, zap.NewNop())
	trail.Start()

	trail.Log(Transition{RequestID: 1})
	trail.Log(Transition{RequestID: 2})
	trail.Stop()

	assert.Equal(t, 2, store.total())
}

func TestMemoryStorageForRequest(t *testing.T) {
	m := &MemoryStorage{}
	require.NoError(t, m.WriteBatch(context.Background(), []Transition{
		{RequestID: 9, ToStatus: "Pending"},
		{RequestID: 3, ToStatus: "Pending"},
		{RequestID: 9, FromStatus: "Pending", ToStatus: "Cancelled"},
	}))

	got := m.ForRequest(9)
	require.Len(t, got, 2)
	assert.Equal(t, "Cancelled", got[1].ToStatus)
}
