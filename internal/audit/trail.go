package audit

/*
Trail — неблокирующий журнал переходов заявок.

- Log не ждет БД: событие кладется в буферизованный канал, при переполнении
  сбрасывается с записью в лог (load shedding).
- Воркер пишет пачками по таймеру или при достижении BatchSize.
- Stop закрывает вход и дожидается финального flush (drain pattern).
*/

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Storage определяет, куда физически сохраняется журнал.
type Storage interface {
	WriteBatch(ctx context.Context, events []Transition) error
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	// BufferFill опционален
	BufferFill prometheus.Gauge
}

type Trail struct {
	ch     chan Transition
	repo   Storage
	opts   Options
	logger *zap.Logger
	wg     sync.WaitGroup

	// mu защищает закрытие канала от конкурентного Log
	mu     sync.RWMutex
	closed bool
}

func NewTrail(repo Storage, opts Options, logger *zap.Logger) *Trail {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	return &Trail{
		ch:     make(chan Transition, opts.BufferSize),
		repo:   repo,
		opts:   opts,
		logger: logger.With(zap.String("mod", "audit")),
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop закрывает вход и ждет, пока воркер все допишет.
func (t *Trail) Stop() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.ch)
	t.mu.Unlock()

	t.logger.Info("stopping audit trail: flushing buffer")
	t.wg.Wait()
	t.logger.Info("audit trail stopped")
}

func (t *Trail) Log(tr Transition) {
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	if tr.Timestamp.IsZero() {
		tr.Timestamp = time.Now()
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		t.logger.Warn("audit transition dropped: trail is stopping", zap.Int64("request_id", tr.RequestID))
		return
	}

	select {
	case t.ch <- tr:
		if t.opts.BufferFill != nil {
			t.opts.BufferFill.Set(float64(len(t.ch)))
		}
	default:
		t.logger.Error("audit_buffer_overflow",
			zap.Int64("request_id", tr.RequestID),
			zap.String("to_status", tr.ToStatus),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]Transition, 0, t.opts.BatchSize)
	ticker := time.NewTicker(t.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// основной контекст к этому моменту может быть отменен
		if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
			t.logger.Error("audit flush failed", zap.Int("size", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case tr, ok := <-t.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, tr)
			if len(batch) >= t.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
