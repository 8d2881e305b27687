package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/stockgate/internal/audit"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// WriteBatch — пакетная вставка одним INSERT ... VALUES (...), (...).
func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.Transition) error {
	if len(events) == 0 {
		return nil
	}

	const numFields = 9
	placeholders := make([]string, 0, len(events))
	vals := make([]any, 0, len(events)*numFields)

	for i, e := range events {
		p := i * numFields
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9))

		var reason *string
		if e.Reason != "" {
			reason = &e.Reason
		}
		vals = append(vals,
			e.ID, e.RequestID, e.RequestType, e.FromStatus, e.ToStatus,
			e.ActorID, e.ActorName, reason, e.Timestamp,
		)
	}

	query := "INSERT INTO approval_audit (id, request_id, request_type, from_status, to_status, actor_id, actor_name, reason, timestamp) VALUES " +
		strings.Join(placeholders, ",") + " ON CONFLICT (id) DO NOTHING"

	if _, err := r.pool.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: audit batch insert: %w", err)
	}
	return nil
}

// History — журнал переходов заявки, включая отмененные.
func (r *AuditRepo) History(ctx context.Context, requestID int64) ([]audit.Transition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, request_id, request_type, from_status, to_status, actor_id, actor_name, COALESCE(reason, ''), timestamp
		FROM approval_audit WHERE request_id = $1 ORDER BY timestamp, id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("postgres: audit history: %w", err)
	}
	defer rows.Close()

	out := make([]audit.Transition, 0)
	for rows.Next() {
		var t audit.Transition
		if err := rows.Scan(&t.ID, &t.RequestID, &t.RequestType, &t.FromStatus, &t.ToStatus,
			&t.ActorID, &t.ActorName, &t.Reason, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan audit: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
