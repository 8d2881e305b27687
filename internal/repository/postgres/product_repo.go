package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/stockgate/internal/domain"
)

const productCodeConstraint = "products_inventory_code_key"

type ProductRepo struct {
	pool *pgxpool.Pool
}

func NewProductRepo(pool *pgxpool.Pool) *ProductRepo {
	return &ProductRepo{pool: pool}
}

func (r *ProductRepo) Create(ctx context.Context, p *domain.Product) error {
	name, ctype, data := imageColumns(p.Image)
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO products (inventory_code, name, description, category_id, department_id, image_name, image_content_type, image_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at, version`,
		p.InventoryCode, p.Name, p.Description, p.CategoryID, p.DepartmentID, name, ctype, data,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt, &p.Version)
	if err != nil {
		if isUniqueViolation(err, productCodeConstraint) {
			return fmt.Errorf("postgres: inventory code %s: %w", p.InventoryCode, domain.ErrConflict)
		}
		return fmt.Errorf("postgres: create product: %w", err)
	}
	return nil
}

func (r *ProductRepo) Get(ctx context.Context, id int64) (*domain.Product, error) {
	var (
		p           domain.Product
		name, ctype *string
		data        []byte
	)
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, inventory_code, name, description, category_id, department_id,
		       image_name, image_content_type, image_data, created_at, updated_at, version
		FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.InventoryCode, &p.Name, &p.Description, &p.CategoryID, &p.DepartmentID,
		&name, &ctype, &data, &p.CreatedAt, &p.UpdatedAt, &p.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: product %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: get product: %w", err)
	}
	if name != nil {
		p.Image = &domain.Attachment{FileName: *name, Data: data}
		if ctype != nil {
			p.Image.ContentType = *ctype
		}
	}
	return &p, nil
}

func (r *ProductRepo) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE inventory_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: product code lookup: %w", err)
	}
	return exists, nil
}

func (r *ProductRepo) Update(ctx context.Context, p *domain.Product) error {
	name, ctype, data := imageColumns(p.Image)
	err := conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE products
		SET inventory_code = $2, name = $3, description = $4, category_id = $5, department_id = $6,
		    image_name = $7, image_content_type = $8, image_data = $9, updated_at = NOW(),
		    version = version + 1
		WHERE id = $1
		RETURNING created_at, updated_at, version`,
		p.ID, p.InventoryCode, p.Name, p.Description, p.CategoryID, p.DepartmentID, name, ctype, data,
	).Scan(&p.CreatedAt, &p.UpdatedAt, &p.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("postgres: product %d: %w", p.ID, domain.ErrNotFound)
		}
		if isUniqueViolation(err, productCodeConstraint) {
			return fmt.Errorf("postgres: inventory code %s: %w", p.InventoryCode, domain.ErrConflict)
		}
		return fmt.Errorf("postgres: update product: %w", err)
	}
	return nil
}

// Delete возвращает версию удаленной строки.
func (r *ProductRepo) Delete(ctx context.Context, id int64) (int64, error) {
	var version int64
	err := conn(ctx, r.pool).QueryRow(ctx, `DELETE FROM products WHERE id = $1 RETURNING version`, id).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("postgres: product %d: %w", id, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("postgres: delete product: %w", err)
	}
	return version, nil
}

func imageColumns(a *domain.Attachment) (*string, *string, []byte) {
	if a == nil {
		return nil, nil, nil
	}
	return &a.FileName, &a.ContentType, a.Data
}

// CatalogRepo читает имена подразделений и категорий для обогащения payload.
type CatalogRepo struct {
	pool *pgxpool.Pool
}

func NewCatalogRepo(pool *pgxpool.Pool) *CatalogRepo {
	return &CatalogRepo{pool: pool}
}

func (r *CatalogRepo) DepartmentName(ctx context.Context, id int64) (string, error) {
	return r.name(ctx, "departments", id)
}

func (r *CatalogRepo) CategoryName(ctx context.Context, id int64) (string, error) {
	return r.name(ctx, "categories", id)
}

func (r *CatalogRepo) name(ctx context.Context, table string, id int64) (string, error) {
	var name string
	// table — константа из этого файла, не пользовательский ввод
	err := conn(ctx, r.pool).QueryRow(ctx, `SELECT name FROM `+table+` WHERE id = $1`, id).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("postgres: %s %d: %w", table, id, domain.ErrNotFound)
		}
		return "", fmt.Errorf("postgres: %s lookup: %w", table, err)
	}
	return name, nil
}

// LedgerRepo — журнал исполненных ключей идемпотентности привилегированного маршрута.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

func (r *LedgerRepo) Lookup(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var res []byte
	err := conn(ctx, r.pool).QueryRow(ctx, `SELECT result FROM executed_actions WHERE idempotency_key = $1`, key).Scan(&res)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("postgres: ledger lookup: %w", err)
	}
	return res, true, nil
}

// Record пишется в той же транзакции, что и мутация.
func (r *LedgerRepo) Record(ctx context.Context, key string, rt domain.RequestType, result json.RawMessage) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO executed_actions (idempotency_key, request_type, result) VALUES ($1, $2, $3)`, key, rt, []byte(result))
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("postgres: idempotency key %s: %w", key, domain.ErrConflict)
		}
		return fmt.Errorf("postgres: ledger record: %w", err)
	}
	return nil
}
