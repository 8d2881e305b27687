package domain

import "time"

type Product struct {
	ID            int64       `json:"id"`
	InventoryCode string      `json:"inventory_code"`
	Name          string      `json:"name"`
	Description   string      `json:"description,omitempty"`
	CategoryID    int64       `json:"category_id"`
	DepartmentID  int64       `json:"department_id"`
	Image         *Attachment `json:"image,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	// Version растет на единицу с каждой мутацией. По нему подписчики упорядочивают события.
	Version int64 `json:"version"`
}

// Attachment — бинарное вложение (картинка товара).
// В JSON байты уходят base64-строкой, поэтому payload безопасен для транспорта и БД.
type Attachment struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Параметры мутаций. *Name поля заполняет оркестратор перед сохранением заявки,
// чтобы ревьюеру не нужно было сверяться с другими сервисами.

type CreateProductAction struct {
	InventoryCode  string      `json:"inventory_code"`
	Name           string      `json:"name"`
	Description    string      `json:"description,omitempty"`
	CategoryID     int64       `json:"category_id"`
	CategoryName   string      `json:"category_name,omitempty"`
	DepartmentID   int64       `json:"department_id"`
	DepartmentName string      `json:"department_name,omitempty"`
	Image          *Attachment `json:"image,omitempty"`
}

type UpdateProductAction struct {
	ProductID     int64       `json:"product_id"`
	Name          string      `json:"name"`
	Description   string      `json:"description,omitempty"`
	CategoryID    int64       `json:"category_id"`
	CategoryName  string      `json:"category_name,omitempty"`
	Image         *Attachment `json:"image,omitempty"`
	PreviousName  string      `json:"previous_name,omitempty"`
	InventoryCode string      `json:"inventory_code,omitempty"`
}

type DeleteProductAction struct {
	ProductID     int64  `json:"product_id"`
	InventoryCode string `json:"inventory_code,omitempty"`
	Name          string `json:"name,omitempty"`
}

type TransferProductAction struct {
	ProductID          int64  `json:"product_id"`
	ToDepartmentID     int64  `json:"to_department_id"`
	ToDepartmentName   string `json:"to_department_name,omitempty"`
	FromDepartmentID   int64  `json:"from_department_id,omitempty"`
	FromDepartmentName string `json:"from_department_name,omitempty"`
	Note               string `json:"note,omitempty"`
	InventoryCode      string `json:"inventory_code,omitempty"`
	ProductName        string `json:"product_name,omitempty"`
}

// Command — сериализованная мутация, одинаковая для прямого пути и для повтора после апрува.
type Command struct {
	RequestType RequestType `json:"request_type"`
	EntityID    *int64      `json:"entity_id,omitempty"`
	ActionData  string      `json:"action_data"`
	Actor       Actor       `json:"actor"`

	// IdempotencyKey проставляет исполнитель после апрува ("approval-<id>").
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}
