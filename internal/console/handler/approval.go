package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/stockgate/internal/domain"
)

type ApprovalService interface {
	Get(ctx context.Context, caller domain.Caller, id int64) (*domain.ApprovalRequest, error)
	List(ctx context.Context, caller domain.Caller, f domain.ApprovalFilter) ([]*domain.ApprovalRequest, error)
	Approve(ctx context.Context, caller domain.Caller, id int64) (*domain.ApprovalRequest, error)
	Reject(ctx context.Context, caller domain.Caller, id int64, reason string) (*domain.ApprovalRequest, error)
	Cancel(ctx context.Context, caller domain.Caller, id int64) error
}

type ApprovalHandler struct {
	service ApprovalService
	logger  *zap.Logger
}

func NewApprovalHandler(s ApprovalService, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{service: s, logger: logger.Named("approvals")}
}

// List GET /v1/approvals?status=Pending&requested_by=...&limit=&offset=
func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	f := domain.ApprovalFilter{
		Status:      domain.ApprovalStatus(r.URL.Query().Get("status")),
		RequestedBy: r.URL.Query().Get("requested_by"),
		Limit:       limit,
		Offset:      offset,
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, h.logger, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, f.Status))
		return
	}

	list, err := h.service.List(r.Context(), caller, f)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Get GET /v1/approvals/{id}
func (h *ApprovalHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.withRequest(w, r, func(caller domain.Caller, id int64) (any, error) {
		return h.service.Get(r.Context(), caller, id)
	})
}

// Approve POST /v1/approvals/{id}/approve
// Сбой повтора не ошибка запроса: заявка возвращается со статусом Failed и причиной.
func (h *ApprovalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.withRequest(w, r, func(caller domain.Caller, id int64) (any, error) {
		return h.service.Approve(r.Context(), caller, id)
	})
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

// Reject POST /v1/approvals/{id}/reject
func (h *ApprovalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var body RejectRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
			writeError(w, h.logger, fmt.Errorf("%w: invalid request body", domain.ErrValidation))
			return
		}
	}
	h.withRequest(w, r, func(caller domain.Caller, id int64) (any, error) {
		return h.service.Reject(r.Context(), caller, id, body.Reason)
	})
}

// Cancel DELETE /v1/approvals/{id}
func (h *ApprovalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.service.Cancel(r.Context(), caller, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ApprovalHandler) withRequest(w http.ResponseWriter, r *http.Request, fn func(caller domain.Caller, id int64) (any, error)) {
	caller, err := callerOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out, err := fn(caller, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
