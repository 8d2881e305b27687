package propagator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/stockgate/internal/bus"
	"github.com/xela07ax/stockgate/internal/domain"
	"github.com/xela07ax/stockgate/internal/repository/memory"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newApplier(departments ...int64) (*Applier, *memory.AssetStore) {
	assets := memory.NewAssetStore(departments...)
	return NewApplier(assets, memory.NewTxRunner(), zap.NewNop()), assets
}

func transfer(id string, to int64, version int64) domain.ProductTransferredEvent {
	return domain.ProductTransferredEvent{
		EventID:          id,
		ProductID:        42,
		InventoryCode:    "4321",
		ProductName:      "Drill",
		FromDepartmentID: 2,
		ToDepartmentID:   to,
		TransferredAt:    t0.Add(time.Duration(version) * time.Second),
		Version:          version,
	}
}

func TestTransferReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	a, assets := newApplier(2, 3)

	msg, err := bus.NewMessage(domain.RoutingProductTransferred, "42", transfer("evt-1", 3, 2))
	require.NoError(t, err)

	require.NoError(t, a.Handle(ctx, msg))
	once, err := assets.Get(ctx, 42)
	require.NoError(t, err)

	require.NoError(t, a.Handle(ctx, msg))
	twice, err := assets.Get(ctx, 42)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, int64(3), twice.DepartmentID)

	list, err := assets.List(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTransferToUnknownDepartmentIsPermanent(t *testing.T) {
	a, assets := newApplier(2)

	err := a.ApplyTransfer(context.Background(), transfer("evt-1", 99, 2))
	require.ErrorIs(t, err, bus.ErrPermanent)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = assets.Get(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOlderTransferDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	a, assets := newApplier(2, 3, 4)

	require.NoError(t, a.ApplyTransfer(ctx, transfer("evt-2", 4, 3)))
	require.NoError(t, a.ApplyTransfer(ctx, transfer("evt-1", 3, 2)))

	got, err := assets.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.DepartmentID)
}

func TestUndecodableBodyIsPermanent(t *testing.T) {
	a, _ := newApplier(2)
	err := a.Handle(context.Background(), bus.Message{ID: "m-1", RoutingKey: domain.RoutingProductTransferred, Body: []byte(`[`)})
	assert.ErrorIs(t, err, bus.ErrPermanent)
}

func TestProductLifecycle(t *testing.T) {
	ctx := context.Background()
	a, assets := newApplier(2)

	require.NoError(t, a.ApplyChange(ctx, domain.ProductChangedEvent{
		EventID: "c-1", Kind: domain.ProductChangeCreated, ProductID: 42, InventoryCode: "4321",
		Name: "Drill", DepartmentID: 2, OccurredAt: t0, Version: 1,
	}))
	require.NoError(t, a.ApplyChange(ctx, domain.ProductChangedEvent{
		EventID: "c-2", Kind: domain.ProductChangeUpdated, ProductID: 42, InventoryCode: "4321",
		Name: "Hammer drill", DepartmentID: 2, OccurredAt: t0.Add(time.Second), Version: 2,
	}))
	got, err := assets.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Hammer drill", got.Name)

	require.NoError(t, a.ApplyChange(ctx, domain.ProductChangedEvent{
		EventID: "c-3", Kind: domain.ProductChangeDeleted, ProductID: 42, OccurredAt: t0.Add(2 * time.Second), Version: 3,
	}))
	_, err = assets.Get(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// опоздавшее обновление не воскрешает удаленный товар
	require.NoError(t, a.ApplyChange(ctx, domain.ProductChangedEvent{
		EventID: "c-2b", Kind: domain.ProductChangeUpdated, ProductID: 42, InventoryCode: "4321",
		Name: "Late", DepartmentID: 2, OccurredAt: t0.Add(3 * time.Second), Version: 2,
	}))
	_, err = assets.Get(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderingIgnoresClockSkew(t *testing.T) {
	ctx := context.Background()
	a, assets := newApplier(1, 2)

	require.NoError(t, a.ApplyChange(ctx, domain.ProductChangedEvent{
		EventID: "c-1", Kind: domain.ProductChangeCreated, ProductID: 42, InventoryCode: "4321",
		Name: "Drill", DepartmentID: 1, OccurredAt: t0, Version: 1,
	}))
	// часы БД отстают от часов приложения: перенос помечен более ранним временем
	ev := transfer("t-1", 2, 2)
	ev.TransferredAt = t0.Add(-time.Second)
	require.NoError(t, a.ApplyTransfer(ctx, ev))

	got, err := assets.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.DepartmentID)
	assert.Equal(t, int64(2), got.Version)
}

func TestDeleteBeforeCreateKeepsProductGone(t *testing.T) {
	ctx := context.Background()
	a, assets := newApplier(2)

	require.NoError(t, a.ApplyChange(ctx, domain.ProductChangedEvent{
		EventID: "c-2", Kind: domain.ProductChangeDeleted, ProductID: 42, DepartmentID: 2, Version: 2,
	}))
	require.NoError(t, a.ApplyChange(ctx, domain.ProductChangedEvent{
		EventID: "c-1", Kind: domain.ProductChangeCreated, ProductID: 42, InventoryCode: "4321",
		Name: "Drill", DepartmentID: 2, Version: 1,
	}))

	_, err := assets.Get(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConsumerAppliesRedeliveredEventOnce(t *testing.T) {
	b := bus.NewMemory()
	a, assets := newApplier(2, 3)

	src, err := b.Subscribe(context.Background(), "departments", RoutingKeys...)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.NewConsumer(src, b, a.Handle, bus.ConsumerOptions{MaxAttempts: 3}, zap.NewNop()).Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	msg, err := bus.NewMessage(domain.RoutingProductTransferred, "42", transfer("evt-1", 3, 2))
	require.NoError(t, err)
	// потеря ack: то же сообщение приходит дважды
	require.NoError(t, b.Publish(context.Background(), msg))
	require.NoError(t, b.Publish(context.Background(), msg))

	require.Eventually(t, func() bool {
		got, err := assets.Get(context.Background(), 42)
		return err == nil && got.DepartmentID == 3
	}, 2*time.Second, 10*time.Millisecond)

	list, err := assets.List(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
