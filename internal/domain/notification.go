package domain

import (
	"encoding/json"
	"time"
)

const (
	NotificationApprovalCreated   = "approval_created"
	NotificationApprovalProcessed = "approval_processed"
	NotificationApprovalCancelled = "approval_cancelled"
)

// Notification — запись во входящих пользователя. Меняется только отметкой "прочитано".
type Notification struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	IsRead    bool            `json:"is_read"`
	CreatedAt time.Time       `json:"created_at"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`

	// DedupKey не дает повторной доставке события размножить уведомление.
	DedupKey string `json:"-"`
}
