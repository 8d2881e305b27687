package domain

import "time"

// Ключи маршрутизации брокера: "<сущность>.<глагол>".
const (
	RoutingApprovalCreated   = "approval.request.created"
	RoutingApprovalProcessed = "approval.request.processed"
	RoutingApprovalCancelled = "approval.request.cancelled"

	RoutingProductCreated     = "product.created"
	RoutingProductUpdated     = "product.updated"
	RoutingProductDeleted     = "product.deleted"
	RoutingProductTransferred = "product.transferred"
)

// События несут денормализованный снимок, чтобы консьюмерам не нужен был синхронный обратный вызов.

type ApprovalCreatedEvent struct {
	EventID     string      `json:"event_id"`
	RequestID   int64       `json:"request_id"`
	RequestType RequestType `json:"request_type"`
	EntityType  string      `json:"entity_type"`
	EntityID    *int64      `json:"entity_id,omitempty"`
	RequestedBy Actor       `json:"requested_by"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ApprovalProcessedEvent публикуется после Reject, после успешного исполнения (Status="Approved")
// и после сбоя исполнения (Status="Failed", Reason заполнен).
type ApprovalProcessedEvent struct {
	EventID     string      `json:"event_id"`
	RequestID   int64       `json:"request_id"`
	RequestType RequestType `json:"request_type"`
	EntityType  string      `json:"entity_type"`
	EntityID    *int64      `json:"entity_id,omitempty"`
	Status      string      `json:"status"`
	RequestedBy Actor       `json:"requested_by"`
	ApprovedBy  *Actor      `json:"approved_by,omitempty"`
	Reason      *string     `json:"reason,omitempty"`
	ProcessedAt *time.Time  `json:"processed_at,omitempty"`
	ExecutedAt  *time.Time  `json:"executed_at,omitempty"`
}

type ApprovalCancelledEvent struct {
	EventID     string      `json:"event_id"`
	RequestID   int64       `json:"request_id"`
	RequestType RequestType `json:"request_type"`
	EntityType  string      `json:"entity_type"`
	EntityID    *int64      `json:"entity_id,omitempty"`
	CancelledBy Actor       `json:"cancelled_by"`
	CancelledAt time.Time   `json:"cancelled_at"`
}

const (
	ProductChangeCreated = "created"
	ProductChangeUpdated = "updated"
	ProductChangeDeleted = "deleted"
)

type ProductChangedEvent struct {
	EventID       string    `json:"event_id"`
	Kind          string    `json:"kind"`
	ProductID     int64     `json:"product_id"`
	InventoryCode string    `json:"inventory_code"`
	Name          string    `json:"name"`
	DepartmentID  int64     `json:"department_id"`
	Actor         Actor     `json:"actor"`
	OccurredAt    time.Time `json:"occurred_at"`
	// Version товара после изменения; у удаления на единицу больше последней версии строки
	Version int64 `json:"version"`
}

type ProductTransferredEvent struct {
	EventID          string    `json:"event_id"`
	ProductID        int64     `json:"product_id"`
	InventoryCode    string    `json:"inventory_code"`
	ProductName      string    `json:"product_name"`
	FromDepartmentID int64     `json:"from_department_id"`
	ToDepartmentID   int64     `json:"to_department_id"`
	TransferredBy    Actor     `json:"transferred_by"`
	TransferredAt    time.Time `json:"transferred_at"`
	Version          int64     `json:"version"`
}

// DepartmentAsset — локальная запись сервиса подразделений о закрепленном товаре.
type DepartmentAsset struct {
	ProductID     int64     `json:"product_id"`
	DepartmentID  int64     `json:"department_id"`
	InventoryCode string    `json:"inventory_code"`
	Name          string    `json:"name"`
	LastEventAt   time.Time `json:"last_event_at"`
	// Version — версия товара в последнем примененном событии. Часы сервисов не сравниваются.
	Version int64 `json:"version"`
}
