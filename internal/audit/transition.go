package audit

import "time"

// Transition — одна смена статуса заявки. Пишется и для Cancelled,
// поэтому история переживает отмену.
type Transition struct {
	ID          string    `json:"id"`
	RequestID   int64     `json:"request_id"`
	RequestType string    `json:"request_type"`
	FromStatus  string    `json:"from_status"` // пусто при создании
	ToStatus    string    `json:"to_status"`
	ActorID     string    `json:"actor_id"`
	ActorName   string    `json:"actor_name"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
