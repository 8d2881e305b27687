package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/stockgate/internal/domain"
)

// ApprovalRepo — хранилище заявок. Переходы статуса идут через compare-and-swap
// по (id, version, status), поэтому двойное решение по одной заявке невозможно.
type ApprovalRepo struct {
	pool *pgxpool.Pool
}

func NewApprovalRepo(pool *pgxpool.Pool) *ApprovalRepo {
	return &ApprovalRepo{pool: pool}
}

const approvalColumns = `id, request_type, entity_type, entity_id, action_data,
	requested_by_id, requested_by_name, approved_by_id, approved_by_name,
	status, rejection_reason, version, created_at, processed_at, executed_at`

func (r *ApprovalRepo) Create(ctx context.Context, req *domain.ApprovalRequest) error {
	query := `INSERT INTO approval_requests
	          (request_type, entity_type, entity_id, action_data, requested_by_id, requested_by_name, status, version, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8)
	          RETURNING id, version`

	err := conn(ctx, r.pool).QueryRow(ctx, query,
		req.RequestType, req.EntityType, req.EntityID, req.ActionData,
		req.RequestedBy.ID, req.RequestedBy.Name, req.Status, req.CreatedAt,
	).Scan(&req.ID, &req.Version)
	if err != nil {
		if isUniqueViolation(err, "approval_requests_one_pending") {
			return fmt.Errorf("postgres: create approval for %s %v: %w", req.RequestType, derefID(req.EntityID), domain.ErrDuplicatePending)
		}
		return fmt.Errorf("postgres: failed to create approval request: %w", err)
	}
	return nil
}

func (r *ApprovalRepo) Get(ctx context.Context, id int64) (*domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE id = $1`

	req, err := scanApproval(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: approval %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: get approval: %w", err)
	}
	return req, nil
}

// List — очередь решений, новые сверху.
func (r *ApprovalRepo) List(ctx context.Context, f domain.ApprovalFilter) ([]*domain.ApprovalRequest, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	} else {
		// отмененные видны только при явном фильтре
		where = append(where, "status <> 'Cancelled'")
	}
	if f.RequestedBy != "" {
		args = append(args, f.RequestedBy)
		where = append(where, fmt.Sprintf("requested_by_id = $%d", len(args)))
	}

	query := `SELECT ` + approvalColumns + ` FROM approval_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query approvals: %w", err)
	}
	defer rows.Close()

	// пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.ApprovalRequest, 0)
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan approval: %w", err)
		}
		results = append(results, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// Transition сохраняет новое состояние заявки, только если в БД она все еще в статусе from
// с той же версией. Иначе ErrInvalidState (или ErrNotFound, если строки нет).
func (r *ApprovalRepo) Transition(ctx context.Context, req *domain.ApprovalRequest, from domain.ApprovalStatus) error {
	var approvedID, approvedName *string
	if req.ApprovedBy != nil {
		approvedID, approvedName = &req.ApprovedBy.ID, &req.ApprovedBy.Name
	}

	query := `
		UPDATE approval_requests
		SET status = $1,
		    approved_by_id = $2,
		    approved_by_name = $3,
		    rejection_reason = $4,
		    processed_at = $5,
		    executed_at = $6,
		    version = version + 1
		WHERE id = $7 AND version = $8 AND status = $9
		RETURNING version`

	var version int64
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		req.Status, approvedID, approvedName, req.RejectionReason, req.ProcessedAt, req.ExecutedAt,
		req.ID, req.Version, from,
	).Scan(&version)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("postgres: failed to update approval status: %w", err)
		}
		// ни одной строки: либо id неверный, либо решение уже принято
		var cur domain.ApprovalStatus
		if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT status FROM approval_requests WHERE id = $1`, req.ID).Scan(&cur); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("postgres: approval %d: %w", req.ID, domain.ErrNotFound)
			}
			return fmt.Errorf("postgres: reread approval: %w", err)
		}
		return fmt.Errorf("postgres: approval %d is %s, expected %s: %w", req.ID, cur, from, domain.ErrInvalidState)
	}

	req.Version = version
	return nil
}

func scanApproval(row pgx.Row) (*domain.ApprovalRequest, error) {
	var (
		req                      domain.ApprovalRequest
		approvedID, approvedName *string
	)
	err := row.Scan(
		&req.ID, &req.RequestType, &req.EntityType, &req.EntityID, &req.ActionData,
		&req.RequestedBy.ID, &req.RequestedBy.Name, &approvedID, &approvedName,
		&req.Status, &req.RejectionReason, &req.Version, &req.CreatedAt, &req.ProcessedAt, &req.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}
	if approvedID != nil {
		req.ApprovedBy = &domain.Actor{ID: *approvedID}
		if approvedName != nil {
			req.ApprovedBy.Name = *approvedName
		}
	}
	return &req, nil
}

func derefID(id *int64) any {
	if id == nil {
		return "<nil>"
	}
	return *id
}
