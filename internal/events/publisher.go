// Package events публикует доменные события на шину.
// Публикация идет после коммита локального состояния и не откатывает его:
// транзиентные ошибки повторяются, окончательная ошибка возвращается вызывающему для лога.
package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xela07ax/stockgate/internal/bus"
	"github.com/xela07ax/stockgate/internal/domain"
)

type Options struct {
	Attempts uint
	Delay    time.Duration
	// Published опционален: метки routing_key, result = ok|failed
	Published *prometheus.CounterVec
}

type Publisher struct {
	bus    bus.Publisher
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

func NewPublisher(b bus.Publisher, opts Options, logger *zap.Logger) *Publisher {
	if opts.Attempts == 0 {
		opts.Attempts = 3
	}
	if opts.Delay <= 0 {
		opts.Delay = 100 * time.Millisecond
	}
	return &Publisher{bus: b, opts: opts, logger: logger.Named("events"), now: time.Now}
}

// Publish кладет payload на шину под ключом маршрутизации. eventID становится id сообщения,
// по нему консьюмеры отсеивают повторные доставки.
func (p *Publisher) Publish(ctx context.Context, routingKey, key, eventID string, payload any) error {
	msg, err := bus.NewMessage(routingKey, key, payload)
	if err != nil {
		p.count(routingKey, "failed")
		return err
	}
	if eventID != "" {
		msg.ID = eventID
	}

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(p.opts.Attempts),
		retry.Delay(p.opts.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Warn("publish retry", zap.String("routing_key", routingKey), zap.Uint("n", n), zap.Error(err))
		}),
	)
	if err := r.Do(func() error { return p.bus.Publish(ctx, msg) }); err != nil {
		p.count(routingKey, "failed")
		return fmt.Errorf("events: publish %s: %w", routingKey, err)
	}
	p.count(routingKey, "ok")
	return nil
}

func (p *Publisher) ApprovalCreated(ctx context.Context, req *domain.ApprovalRequest) error {
	ev := domain.ApprovalCreatedEvent{
		EventID:     uuid.NewString(),
		RequestID:   req.ID,
		RequestType: req.RequestType,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		RequestedBy: req.RequestedBy,
		CreatedAt:   req.CreatedAt,
	}
	return p.Publish(ctx, domain.RoutingApprovalCreated, requestKey(req.ID), ev.EventID, ev)
}

// ApprovalProcessed публикует итог решения. Executed уходит как "Approved":
// для подписчиков важен исход апрува, а не внутренняя стадия исполнения.
func (p *Publisher) ApprovalProcessed(ctx context.Context, req *domain.ApprovalRequest) error {
	status := string(req.Status)
	if req.Status == domain.StatusExecuted {
		status = string(domain.StatusApproved)
	}
	ev := domain.ApprovalProcessedEvent{
		EventID:     uuid.NewString(),
		RequestID:   req.ID,
		RequestType: req.RequestType,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		Status:      status,
		RequestedBy: req.RequestedBy,
		ApprovedBy:  req.ApprovedBy,
		Reason:      req.RejectionReason,
		ProcessedAt: req.ProcessedAt,
		ExecutedAt:  req.ExecutedAt,
	}
	return p.Publish(ctx, domain.RoutingApprovalProcessed, requestKey(req.ID), ev.EventID, ev)
}

func (p *Publisher) ApprovalCancelled(ctx context.Context, req *domain.ApprovalRequest, by domain.Actor) error {
	ev := domain.ApprovalCancelledEvent{
		EventID:     uuid.NewString(),
		RequestID:   req.ID,
		RequestType: req.RequestType,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		CancelledBy: by,
		CancelledAt: p.now().UTC(),
	}
	return p.Publish(ctx, domain.RoutingApprovalCancelled, requestKey(req.ID), ev.EventID, ev)
}

func (p *Publisher) ProductChanged(ctx context.Context, kind string, prod *domain.Product, actor domain.Actor) error {
	var routingKey string
	switch kind {
	case domain.ProductChangeCreated:
		routingKey = domain.RoutingProductCreated
	case domain.ProductChangeUpdated:
		routingKey = domain.RoutingProductUpdated
	case domain.ProductChangeDeleted:
		routingKey = domain.RoutingProductDeleted
	default:
		return fmt.Errorf("events: unknown product change %q", kind)
	}
	// время строки, а не часы этого процесса; у удаленной строки его нет
	occurred := prod.UpdatedAt
	if kind == domain.ProductChangeDeleted || occurred.IsZero() {
		occurred = p.now()
	}
	ev := domain.ProductChangedEvent{
		EventID:       uuid.NewString(),
		Kind:          kind,
		ProductID:     prod.ID,
		InventoryCode: prod.InventoryCode,
		Name:          prod.Name,
		DepartmentID:  prod.DepartmentID,
		Actor:         actor,
		OccurredAt:    occurred.UTC(),
		Version:       prod.Version,
	}
	return p.Publish(ctx, routingKey, requestKey(prod.ID), ev.EventID, ev)
}

func (p *Publisher) ProductTransferred(ctx context.Context, ev domain.ProductTransferredEvent) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.TransferredAt.IsZero() {
		ev.TransferredAt = p.now().UTC()
	}
	return p.Publish(ctx, domain.RoutingProductTransferred, requestKey(ev.ProductID), ev.EventID, ev)
}

func (p *Publisher) count(key, result string) {
	if p.opts.Published != nil {
		p.opts.Published.WithLabelValues(key, result).Inc()
	}
}

func requestKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
