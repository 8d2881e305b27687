package executor

import (
	"encoding/json"

	"github.com/xela07ax/stockgate/internal/domain"
)

// ExecutePath — привилегированный маршрут сервиса-владельца. Доступен только со служебным токеном.
const ExecutePath = "/internal/v1/actions/execute"

// HeaderIdempotencyKey повторный вызов с тем же ключом возвращает сохраненный результат.
const HeaderIdempotencyKey = "Idempotency-Key"

type ExecuteRequest struct {
	RequestType    domain.RequestType `json:"request_type"`
	EntityID       *int64             `json:"entity_id,omitempty"`
	ActionData     string             `json:"action_data"`
	ActingUserID   string             `json:"acting_user_id"`
	ActingUserName string             `json:"acting_user_name"`
}

type ExecuteResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
