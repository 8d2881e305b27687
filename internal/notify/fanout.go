// Package notify доставляет уведомления: запись во входящие каждого адресата
// и push живым сессиям. Без сессии запись дойдет при следующем подключении.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xela07ax/stockgate/internal/bus"
	"github.com/xela07ax/stockgate/internal/domain"
)

type Inbox interface {
	// Create возвращает false, если уведомление с тем же DedupKey у пользователя уже есть.
	Create(ctx context.Context, n *domain.Notification) (bool, error)
}

// Directory резолвит роль в пользователей.
type Directory interface {
	UsersForRole(ctx context.Context, role string) ([]string, error)
}

type Pusher interface {
	SendToGroup(ctx context.Context, group string, data []byte) error
}

// RoutingKeys — события, на которые подписан fan-out.
var RoutingKeys = []string{
	domain.RoutingApprovalCreated,
	domain.RoutingApprovalProcessed,
	domain.RoutingApprovalCancelled,
}

// Template — уведомление без адресата.
type Template struct {
	Type     string
	Title    string
	Message  string
	Data     json.RawMessage
	DedupKey string
}

type FanOut struct {
	inbox  Inbox
	dir    Directory
	push   Pusher
	logger *zap.Logger
}

func NewFanOut(inbox Inbox, dir Directory, push Pusher, logger *zap.Logger) *FanOut {
	return &FanOut{inbox: inbox, dir: dir, push: push, logger: logger.Named("fanout")}
}

// ToUser сохраняет уведомление и пушит его. Ошибка push не ошибка доставки:
// запись уже во входящих.
func (f *FanOut) ToUser(ctx context.Context, userID string, t Template) error {
	n := &domain.Notification{
		UserID:   userID,
		Type:     t.Type,
		Title:    t.Title,
		Message:  t.Message,
		Data:     t.Data,
		DedupKey: t.DedupKey,
	}
	fresh, err := f.inbox.Create(ctx, n)
	if err != nil {
		return fmt.Errorf("notify: store for %s: %w", userID, err)
	}
	if !fresh {
		f.logger.Debug("duplicate notification skipped", zap.String("user_id", userID), zap.String("dedup_key", t.DedupKey))
		return nil
	}

	data, err := json.Marshal(Push{Kind: PushNotification, Notification: n})
	if err != nil {
		return err
	}
	if err := f.push.SendToGroup(ctx, UserGroup(userID), data); err != nil {
		f.logger.Warn("live push failed", zap.String("user_id", userID), zap.Int64("notification_id", n.ID), zap.Error(err))
	}
	return nil
}

// ToRole доставляет каждому пользователю роли отдельную запись.
// Сбой одного адресата не останавливает остальных.
func (f *FanOut) ToRole(ctx context.Context, role string, t Template) error {
	users, err := f.dir.UsersForRole(ctx, role)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		f.logger.Warn("role has no users", zap.String("role", role))
		return nil
	}
	var errs []error
	for _, u := range users {
		if err := f.ToUser(ctx, u, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleEvent — bus.Handler для событий заявок.
func (f *FanOut) HandleEvent(ctx context.Context, msg bus.Message) error {
	switch msg.RoutingKey {
	case domain.RoutingApprovalCreated:
		var ev domain.ApprovalCreatedEvent
		if err := decode(msg, &ev); err != nil {
			return err
		}
		return f.ToRole(ctx, domain.RoleAdmin, Template{
			Type:     domain.NotificationApprovalCreated,
			Title:    "Approval requested",
			Message:  fmt.Sprintf("%s requested %s (request #%d)", ev.RequestedBy.Name, ev.RequestType, ev.RequestID),
			Data:     msg.Body,
			DedupKey: dedupKey(ev.EventID, msg),
		})

	case domain.RoutingApprovalProcessed:
		var ev domain.ApprovalProcessedEvent
		if err := decode(msg, &ev); err != nil {
			return err
		}
		text := fmt.Sprintf("Your %s request #%d: %s", ev.RequestType, ev.RequestID, ev.Status)
		if ev.Reason != nil && *ev.Reason != "" {
			text += " (" + *ev.Reason + ")"
		}
		return f.ToUser(ctx, ev.RequestedBy.ID, Template{
			Type:     domain.NotificationApprovalProcessed,
			Title:    "Request " + ev.Status,
			Message:  text,
			Data:     msg.Body,
			DedupKey: dedupKey(ev.EventID, msg),
		})

	case domain.RoutingApprovalCancelled:
		var ev domain.ApprovalCancelledEvent
		if err := decode(msg, &ev); err != nil {
			return err
		}
		return f.ToRole(ctx, domain.RoleAdmin, Template{
			Type:     domain.NotificationApprovalCancelled,
			Title:    "Approval request cancelled",
			Message:  fmt.Sprintf("%s cancelled %s (request #%d)", ev.CancelledBy.Name, ev.RequestType, ev.RequestID),
			Data:     msg.Body,
			DedupKey: dedupKey(ev.EventID, msg),
		})
	}
	return bus.Permanent(fmt.Errorf("notify: unexpected routing key %q", msg.RoutingKey))
}

func decode(msg bus.Message, v any) error {
	if err := json.Unmarshal(msg.Body, v); err != nil {
		return bus.Permanent(fmt.Errorf("notify: decode %s: %w", msg.RoutingKey, err))
	}
	return nil
}

func dedupKey(eventID string, msg bus.Message) string {
	if eventID != "" {
		return eventID
	}
	return msg.ID
}
