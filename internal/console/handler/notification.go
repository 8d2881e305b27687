package handler

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/xela07ax/stockgate/internal/domain"
	"github.com/xela07ax/stockgate/internal/notify"
)

type NotificationInbox interface {
	List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, userID string, id int64) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type SessionHub interface {
	Connect(ctx context.Context, userID string, conn notify.Conn) (*notify.Session, error)
}

type NotificationHandler struct {
	inbox   NotificationInbox
	hub     SessionHub
	origins []string
	logger  *zap.Logger
}

// NewNotificationHandler origins: разрешенные Origin для WebSocket; пустой список пускает только свой хост.
func NewNotificationHandler(inbox NotificationInbox, hub SessionHub, origins []string, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{inbox: inbox, hub: hub, origins: origins, logger: logger.Named("notifications")}
}

// List GET /v1/notifications?unread=true
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
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
	list, err := h.inbox.List(r.Context(), caller.Actor.ID, r.URL.Query().Get("unread") == "true", limit, offset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// UnreadCount GET /v1/notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	n, err := h.inbox.CountUnread(r.Context(), caller.Actor.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unread": n})
}

// MarkRead POST /v1/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
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
	if err := h.inbox.MarkRead(r.Context(), caller.Actor.ID, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead POST /v1/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	n, err := h.inbox.MarkAllRead(r.Context(), caller.Actor.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}

// Stream GET /v1/notifications/ws: живой канал. Сначала приходит непрочитанное,
// дальше новые уведомления по мере появления.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		// Accept уже ответил клиенту
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}

	// клиент ничего не шлет, чтение нужно только ради close-фреймов
	ctx := c.CloseRead(r.Context())

	sess, err := h.hub.Connect(ctx, caller.Actor.ID, notify.WebSocket(c))
	if err != nil {
		h.logger.Warn("push session failed", zap.String("user_id", caller.Actor.ID), zap.Error(err))
		return
	}
	<-ctx.Done()
	sess.Close()
}
