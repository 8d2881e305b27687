package domain

import (
	"fmt"
	"time"
)

// ApprovalStatus статусы State Machine
type ApprovalStatus string

const (
	StatusPending   ApprovalStatus = "Pending"
	StatusApproved  ApprovalStatus = "Approved"
	StatusRejected  ApprovalStatus = "Rejected"
	StatusExecuted  ApprovalStatus = "Executed"
	StatusFailed    ApprovalStatus = "Failed"
	StatusCancelled ApprovalStatus = "Cancelled" // мягкая отмена, строка остается для аудита
)

// Terminal сообщает, что из статуса больше нет переходов.
func (s ApprovalStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusExecuted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func (s ApprovalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved:
		return true
	}
	return s.Terminal()
}

// RequestType — вид мутации: "<сущность>.<глагол>".
type RequestType string

const (
	RequestProductCreate   RequestType = "product.create"
	RequestProductUpdate   RequestType = "product.update"
	RequestProductDelete   RequestType = "product.delete"
	RequestProductTransfer RequestType = "product.transfer"
)

const EntityProduct = "Product"

var requestEntities = map[RequestType]string{
	RequestProductCreate:   EntityProduct,
	RequestProductUpdate:   EntityProduct,
	RequestProductDelete:   EntityProduct,
	RequestProductTransfer: EntityProduct,
}

func (t RequestType) Valid() bool {
	_, ok := requestEntities[t]
	return ok
}

// EntityType возвращает тип сущности, которой владеет сервис-исполнитель.
func (t RequestType) EntityType() string {
	return requestEntities[t]
}

// RequestPermission — право только на заявку (через апрув).
func (t RequestType) RequestPermission() string {
	return string(t)
}

// DirectPermission — право на немедленное выполнение.
func (t RequestType) DirectPermission() string {
	return string(t) + ".direct"
}

// Actor — пользователь, денормализованный до id+имени.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ApprovalRequest struct {
	ID          int64       `json:"id"`
	RequestType RequestType `json:"request_type"`
	EntityType  string      `json:"entity_type"`
	EntityID    *int64      `json:"entity_id"` // nil, пока сущность не создана
	ActionData  string      `json:"action_data"`

	RequestedBy Actor  `json:"requested_by"`
	ApprovedBy  *Actor `json:"approved_by,omitempty"`

	Status          ApprovalStatus `json:"status"`
	RejectionReason *string        `json:"rejection_reason,omitempty"` // также причина сбоя исполнения

	// Version сравнивается при записи (optimistic concurrency).
	Version int64 `json:"version"`

	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	ExecutedAt  *time.Time `json:"executed_at,omitempty"`
}

// NewApprovalRequest собирает заявку в статусе Pending.
func NewApprovalRequest(rt RequestType, entityID *int64, actionData string, requester Actor, now time.Time) *ApprovalRequest {
	return &ApprovalRequest{
		RequestType: rt,
		EntityType:  rt.EntityType(),
		EntityID:    entityID,
		ActionData:  actionData,
		RequestedBy: requester,
		Status:      StatusPending,
		CreatedAt:   now,
	}
}

func (a *ApprovalRequest) Approve(by Actor, now time.Time) error {
	if a.Status != StatusPending {
		return fmt.Errorf("%w: cannot approve request %d in status %s", ErrInvalidState, a.ID, a.Status)
	}
	a.Status = StatusApproved
	a.ApprovedBy = &by
	a.ProcessedAt = &now
	return nil
}

func (a *ApprovalRequest) Reject(by Actor, reason string, now time.Time) error {
	if a.Status != StatusPending {
		return fmt.Errorf("%w: cannot reject request %d in status %s", ErrInvalidState, a.ID, a.Status)
	}
	a.Status = StatusRejected
	a.ApprovedBy = &by
	a.RejectionReason = &reason
	a.ProcessedAt = &now
	return nil
}

func (a *ApprovalRequest) MarkExecuted(now time.Time) error {
	if a.Status != StatusApproved {
		return fmt.Errorf("%w: cannot mark request %d executed in status %s", ErrInvalidState, a.ID, a.Status)
	}
	a.Status = StatusExecuted
	a.ExecutedAt = &now
	return nil
}

func (a *ApprovalRequest) MarkFailed(reason string) error {
	if a.Status != StatusApproved {
		return fmt.Errorf("%w: cannot mark request %d failed in status %s", ErrInvalidState, a.ID, a.Status)
	}
	a.Status = StatusFailed
	a.RejectionReason = &reason
	return nil
}

// Cancel доступен только автору заявки и только пока она Pending.
func (a *ApprovalRequest) Cancel(by Actor) error {
	if a.Status != StatusPending {
		return fmt.Errorf("%w: cannot cancel request %d in status %s", ErrInvalidState, a.ID, a.Status)
	}
	if by.ID != a.RequestedBy.ID {
		return fmt.Errorf("%w: only the requester can cancel request %d", ErrInsufficientPermission, a.ID)
	}
	a.Status = StatusCancelled
	return nil
}

// Clone нужен in-memory хранилищам, чтобы не отдавать наружу внутренние указатели.
func (a *ApprovalRequest) Clone() *ApprovalRequest {
	cp := *a
	if a.EntityID != nil {
		v := *a.EntityID
		cp.EntityID = &v
	}
	if a.ApprovedBy != nil {
		v := *a.ApprovedBy
		cp.ApprovedBy = &v
	}
	if a.RejectionReason != nil {
		v := *a.RejectionReason
		cp.RejectionReason = &v
	}
	if a.ProcessedAt != nil {
		v := *a.ProcessedAt
		cp.ProcessedAt = &v
	}
	if a.ExecutedAt != nil {
		v := *a.ExecutedAt
		cp.ExecutedAt = &v
	}
	return &cp
}

// ApprovalFilter фильтр очереди решений.
type ApprovalFilter struct {
	Status      ApprovalStatus
	RequestedBy string
	Limit       int
	Offset      int
}
