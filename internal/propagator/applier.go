// Package propagator — подписчик сервиса подразделений. Применяет события товаров
// к локальной таблице закрепленных активов идемпотентно: повторная доставка того же
// события ничего не меняет.
package propagator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/stockgate/internal/bus"
	"github.com/xela07ax/stockgate/internal/domain"
)

type AssetStore interface {
	// MarkProcessed возвращает false, если событие уже применялось.
	MarkProcessed(ctx context.Context, eventID string, at time.Time) (bool, error)
	DepartmentExists(ctx context.Context, id int64) (bool, error)
	Upsert(ctx context.Context, a domain.DepartmentAsset) (bool, error)
	// Remove оставляет надгробие с версией, чтобы опоздавшее событие не воскресило товар
	Remove(ctx context.Context, a domain.DepartmentAsset) (bool, error)
}

type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RoutingKeys — на что подписывается сервис подразделений.
var RoutingKeys = []string{
	domain.RoutingProductTransferred,
	domain.RoutingProductCreated,
	domain.RoutingProductUpdated,
	domain.RoutingProductDeleted,
}

type Applier struct {
	assets AssetStore
	tx     TxRunner
	logger *zap.Logger
}

func NewApplier(assets AssetStore, tx TxRunner, logger *zap.Logger) *Applier {
	return &Applier{assets: assets, tx: tx, logger: logger.Named("propagator")}
}

// Handle — bus.Handler. Битый payload и неизвестное подразделение — Permanent:
// повтор ничего не исправит.
func (a *Applier) Handle(ctx context.Context, msg bus.Message) error {
	switch msg.RoutingKey {
	case domain.RoutingProductTransferred:
		var ev domain.ProductTransferredEvent
		if err := json.Unmarshal(msg.Body, &ev); err != nil {
			return bus.Permanent(fmt.Errorf("propagator: decode transfer: %w", err))
		}
		if ev.EventID == "" {
			ev.EventID = msg.ID
		}
		return a.ApplyTransfer(ctx, ev)

	case domain.RoutingProductCreated, domain.RoutingProductUpdated, domain.RoutingProductDeleted:
		var ev domain.ProductChangedEvent
		if err := json.Unmarshal(msg.Body, &ev); err != nil {
			return bus.Permanent(fmt.Errorf("propagator: decode product change: %w", err))
		}
		if ev.EventID == "" {
			ev.EventID = msg.ID
		}
		return a.ApplyChange(ctx, ev)
	}
	return bus.Permanent(fmt.Errorf("propagator: unexpected routing key %q", msg.RoutingKey))
}

// ApplyTransfer закрепляет товар за новым подразделением.
func (a *Applier) ApplyTransfer(ctx context.Context, ev domain.ProductTransferredEvent) error {
	return a.tx.InTx(ctx, func(ctx context.Context) error {
		// проверка до отметки: in-memory транзакция не откатывается
		if err := a.requireDepartment(ctx, ev.ToDepartmentID); err != nil {
			return err
		}
		fresh, err := a.assets.MarkProcessed(ctx, ev.EventID, ev.TransferredAt)
		if err != nil {
			return err
		}
		if !fresh {
			a.logger.Debug("duplicate event skipped", zap.String("event_id", ev.EventID))
			return nil
		}

		applied, err := a.assets.Upsert(ctx, domain.DepartmentAsset{
			ProductID:     ev.ProductID,
			DepartmentID:  ev.ToDepartmentID,
			InventoryCode: ev.InventoryCode,
			Name:          ev.ProductName,
			LastEventAt:   ev.TransferredAt,
			Version:       ev.Version,
		})
		if err != nil {
			return err
		}
		if !applied {
			a.logger.Info("stale transfer ignored",
				zap.String("event_id", ev.EventID), zap.Int64("product_id", ev.ProductID))
		}
		return nil
	})
}

func (a *Applier) ApplyChange(ctx context.Context, ev domain.ProductChangedEvent) error {
	return a.tx.InTx(ctx, func(ctx context.Context) error {
		if ev.Kind != domain.ProductChangeDeleted {
			if err := a.requireDepartment(ctx, ev.DepartmentID); err != nil {
				return err
			}
		}
		fresh, err := a.assets.MarkProcessed(ctx, ev.EventID, ev.OccurredAt)
		if err != nil || !fresh {
			return err
		}

		asset := domain.DepartmentAsset{
			ProductID:     ev.ProductID,
			DepartmentID:  ev.DepartmentID,
			InventoryCode: ev.InventoryCode,
			Name:          ev.Name,
			LastEventAt:   ev.OccurredAt,
			Version:       ev.Version,
		}
		var applied bool
		if ev.Kind == domain.ProductChangeDeleted {
			applied, err = a.assets.Remove(ctx, asset)
		} else {
			applied, err = a.assets.Upsert(ctx, asset)
		}
		if err == nil && !applied {
			a.logger.Info("stale product change ignored",
				zap.String("event_id", ev.EventID), zap.Int64("product_id", ev.ProductID), zap.Int64("version", ev.Version))
		}
		return err
	})
}

func (a *Applier) requireDepartment(ctx context.Context, id int64) error {
	ok, err := a.assets.DepartmentExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return bus.Permanent(fmt.Errorf("propagator: department %d: %w", id, domain.ErrNotFound))
	}
	return nil
}
