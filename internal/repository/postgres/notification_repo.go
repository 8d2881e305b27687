package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/stockgate/internal/domain"
)

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

const notificationColumns = `id, user_id, type, title, message, data, is_read, created_at, read_at`

// Create вставляет уведомление. При повторной доставке события (тот же dedup_key)
// возвращает уже существующую запись и created=false.
func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) (bool, error) {
	var dedup *string
	if n.DedupKey != "" {
		dedup = &n.DedupKey
	}
	var data []byte
	if len(n.Data) > 0 {
		data = n.Data
	}

	query := `INSERT INTO notifications (user_id, type, title, message, data, dedup_key)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          ON CONFLICT (user_id, dedup_key) WHERE dedup_key IS NOT NULL DO NOTHING
	          RETURNING id, created_at`

	err := conn(ctx, r.pool).QueryRow(ctx, query, n.UserID, n.Type, n.Title, n.Message, data, dedup).
		Scan(&n.ID, &n.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("postgres: create notification: %w", err)
	}

	existing, err := scanNotification(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = $1 AND dedup_key = $2`, n.UserID, n.DedupKey))
	if err != nil {
		return false, fmt.Errorf("postgres: read deduplicated notification: %w", err)
	}
	existing.DedupKey = n.DedupKey
	*n = *existing
	return false, nil
}

func (r *NotificationRepo) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*domain.Notification, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications
	          WHERE user_id = $1 AND ($2 = FALSE OR is_read = FALSE)
	          ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`
	return r.query(ctx, query, userID, unreadOnly, limit, offset)
}

func (r *NotificationRepo) ListUnreadOldestFirst(ctx context.Context, userID string) ([]*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
	          WHERE user_id = $1 AND is_read = FALSE
	          ORDER BY created_at, id`
	return r.query(ctx, query, userID)
}

func (r *NotificationRepo) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count unread: %w", err)
	}
	return n, nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, userID string, id int64) error {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, NOW()) WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("postgres: mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: notification %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = NOW() WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("postgres: mark all read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepo) query(ctx context.Context, query string, args ...any) ([]*domain.Notification, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return out, nil
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var (
		n    domain.Notification
		data []byte
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &data, &n.IsRead, &n.CreatedAt, &n.ReadAt); err != nil {
		return nil, err
	}
	n.Data = data
	return &n, nil
}
