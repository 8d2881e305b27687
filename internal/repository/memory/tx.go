package memory

import (
	"context"
	"sync"
)

// TxRunner сериализует "транзакции" in-memory сторов. Отката нет:
// операции внутри fn должны проверять предусловия до первой записи.
type TxRunner struct {
	mu sync.Mutex
}

func NewTxRunner() *TxRunner { return &TxRunner{} }

func (t *TxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}
