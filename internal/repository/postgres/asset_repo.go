package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/stockgate/internal/domain"
)

// AssetRepo — локальные таблицы сервиса подразделений: закрепленные товары
// и журнал примененных событий.
type AssetRepo struct {
	pool *pgxpool.Pool
}

func NewAssetRepo(pool *pgxpool.Pool) *AssetRepo {
	return &AssetRepo{pool: pool}
}

func (r *AssetRepo) MarkProcessed(ctx context.Context, eventID string, at time.Time) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO processed_events (event_id, processed_at) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING`, eventID, at)
	if err != nil {
		return false, fmt.Errorf("postgres: mark event processed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *AssetRepo) DepartmentExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM departments WHERE id = $1)`, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("postgres: department lookup: %w", err)
	}
	return ok, nil
}

// upsertAsset пишет строку, только если версия события выше сохраненной.
// Удаление оставляет строку-надгробие с deleted = TRUE.
const upsertAsset = `
	INSERT INTO department_assets (product_id, department_id, inventory_code, name, last_event_at, version, deleted)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (product_id) DO UPDATE
	SET department_id = EXCLUDED.department_id,
	    inventory_code = EXCLUDED.inventory_code,
	    name = EXCLUDED.name,
	    last_event_at = EXCLUDED.last_event_at,
	    version = EXCLUDED.version,
	    deleted = EXCLUDED.deleted
	WHERE department_assets.version < EXCLUDED.version`

// Upsert не откатывает запись назад: событие с версией не выше сохраненной игнорируется.
func (r *AssetRepo) Upsert(ctx context.Context, a domain.DepartmentAsset) (bool, error) {
	return r.write(ctx, a, false)
}

func (r *AssetRepo) Remove(ctx context.Context, a domain.DepartmentAsset) (bool, error) {
	return r.write(ctx, a, true)
}

func (r *AssetRepo) write(ctx context.Context, a domain.DepartmentAsset, deleted bool) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, upsertAsset,
		a.ProductID, a.DepartmentID, a.InventoryCode, a.Name, a.LastEventAt, a.Version, deleted)
	if err != nil {
		return false, fmt.Errorf("postgres: write asset: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *AssetRepo) Get(ctx context.Context, productID int64) (*domain.DepartmentAsset, error) {
	var a domain.DepartmentAsset
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT product_id, department_id, inventory_code, name, last_event_at, version
		FROM department_assets WHERE product_id = $1 AND NOT deleted`, productID,
	).Scan(&a.ProductID, &a.DepartmentID, &a.InventoryCode, &a.Name, &a.LastEventAt, &a.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: asset %d: %w", productID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: get asset: %w", err)
	}
	return &a, nil
}

func (r *AssetRepo) List(ctx context.Context, departmentID int64) ([]domain.DepartmentAsset, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT product_id, department_id, inventory_code, name, last_event_at, version
		FROM department_assets WHERE department_id = $1 AND NOT deleted ORDER BY product_id`, departmentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list assets: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DepartmentAsset, 0)
	for rows.Next() {
		var a domain.DepartmentAsset
		if err := rows.Scan(&a.ProductID, &a.DepartmentID, &a.InventoryCode, &a.Name, &a.LastEventAt, &a.Version); err != nil {
			return nil, fmt.Errorf("postgres: scan asset: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
