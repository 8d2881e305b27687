package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/stockgate/internal/domain"
	"github.com/xela07ax/stockgate/internal/executor"
)

type CommandExecutor interface {
	Execute(ctx context.Context, caller domain.Caller, cmd domain.Command) (json.RawMessage, error)
}

// ExecuteHandler — привилегированный маршрут, на который исполнитель повторяет
// одобренную мутацию. Маршрут закрыт auth.RequireInternal.
type ExecuteHandler struct {
	exec    CommandExecutor
	schemas SchemaValidator
	logger  *zap.Logger
}

func NewExecuteHandler(exec CommandExecutor, schemas SchemaValidator, logger *zap.Logger) *ExecuteHandler {
	return &ExecuteHandler{exec: exec, schemas: schemas, logger: logger.Named("internal-execute")}
}

func (h *ExecuteHandler) Execute(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req executor.ExecuteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}
	if err := h.schemas.Validate(req.RequestType, req.ActionData); err != nil {
		writeError(w, h.logger, err)
		return
	}

	cmd := domain.Command{
		RequestType:    req.RequestType,
		EntityID:       req.EntityID,
		ActionData:     req.ActionData,
		Actor:          domain.Actor{ID: req.ActingUserID, Name: req.ActingUserName},
		IdempotencyKey: r.Header.Get(executor.HeaderIdempotencyKey),
	}
	res, err := h.exec.Execute(r.Context(), caller, cmd)
	if err != nil {
		h.logger.Warn("replay failed",
			zap.String("request_type", string(req.RequestType)),
			zap.String("idempotency_key", cmd.IdempotencyKey),
			zap.Error(err))
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, executor.ExecuteResponse{Result: res})
}
