// Package engine — оркестратор апрувов: выбирает между немедленным исполнением
// и заявкой, ведет заявку по State Machine и запускает повтор после одобрения.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xela07ax/stockgate/internal/audit"
	"github.com/xela07ax/stockgate/internal/domain"
	"github.com/xela07ax/stockgate/internal/infra"
)

//go:generate mockgen -source=orchestrator.go -destination=mocks/mocks.go -package=mocks

// ApprovalStore — хранилище заявок. Transition пишет только если строка все еще
// в статусе from с той же версией.
type ApprovalStore interface {
	Create(ctx context.Context, req *domain.ApprovalRequest) error
	Get(ctx context.Context, id int64) (*domain.ApprovalRequest, error)
	List(ctx context.Context, f domain.ApprovalFilter) ([]*domain.ApprovalRequest, error)
	Transition(ctx context.Context, req *domain.ApprovalRequest, from domain.ApprovalStatus) error
}

// ActionHandler — мутации сервиса-владельца: подготовка параметров и исполнение
// с проверкой прав вызывающего.
type ActionHandler interface {
	Prepare(ctx context.Context, rt domain.RequestType, payload any, actor domain.Actor) (domain.Command, error)
	Execute(ctx context.Context, caller domain.Caller, cmd domain.Command) (json.RawMessage, error)
}

// Dispatcher повторяет одобренную команду на сервисе-владельце.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd domain.Command) (json.RawMessage, error)
}

type EventPublisher interface {
	ApprovalCreated(ctx context.Context, req *domain.ApprovalRequest) error
	ApprovalProcessed(ctx context.Context, req *domain.ApprovalRequest) error
	ApprovalCancelled(ctx context.Context, req *domain.ApprovalRequest, by domain.Actor) error
}

type Auditor interface {
	Log(t audit.Transition)
}

type OutcomeStatus string

const (
	OutcomeExecuted OutcomeStatus = "executed"
	// OutcomePending — не ошибка: мутация отложена до решения, RequestID заполнен.
	OutcomePending OutcomeStatus = "pending_approval"
)

type Outcome struct {
	Status    OutcomeStatus   `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	RequestID int64           `json:"approval_request_id,omitempty"`
}

// Action — мутация, которую хочет выполнить вызывающий. Payload — типизированные
// параметры (*domain.CreateProductAction и т.д.).
type Action struct {
	Type    domain.RequestType
	Payload any
}

type Orchestrator struct {
	store      ApprovalStore
	handler    ActionHandler
	dispatcher Dispatcher
	events     EventPublisher
	auditor    Auditor
	metrics    *infra.Metrics
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

func NewOrchestrator(store ApprovalStore, handler ActionHandler, dispatcher Dispatcher, events EventPublisher, auditor Auditor, metrics *infra.Metrics, logger *zap.Logger) *Orchestrator {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &Orchestrator{
		store:      store,
		handler:    handler,
		dispatcher: dispatcher,
		events:     events,
		auditor:    auditor,
		metrics:    metrics,
		logger:     logger.Named("orchestrator"),
		tracer:     otel.Tracer("stockgate/engine"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Submit исполняет мутацию сразу, если у вызывающего есть право ".direct",
// иначе сохраняет заявку Pending и возвращает OutcomePending с ее id.
func (o *Orchestrator) Submit(ctx context.Context, caller domain.Caller, action Action) (Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.Submit",
		trace.WithAttributes(attribute.String("request_type", string(action.Type))))
	defer span.End()

	rt := action.Type
	if !rt.Valid() {
		return Outcome{}, fmt.Errorf("%w: unknown request type %q", domain.ErrValidation, rt)
	}

	// Проверка прав до предусловий: без прав не раскрываем, существует ли сущность
	direct := caller.Permissions.Has(rt.DirectPermission())
	if !direct && !caller.Permissions.Has(rt.RequestPermission()) {
		o.metrics.Approvals.WithLabelValues(string(rt), "denied").Inc()
		return Outcome{}, fmt.Errorf("%w: %s", domain.ErrInsufficientPermission, rt)
	}

	cmd, err := o.handler.Prepare(ctx, rt, action.Payload, caller.Actor)
	if err != nil {
		return Outcome{}, err
	}

	if direct {
		res, err := o.handler.Execute(ctx, caller, cmd)
		if err != nil {
			return Outcome{}, err
		}
		o.metrics.Approvals.WithLabelValues(string(rt), "direct").Inc()
		return Outcome{Status: OutcomeExecuted, Result: res}, nil
	}

	req := domain.NewApprovalRequest(rt, cmd.EntityID, cmd.ActionData, caller.Actor, o.now())
	if err := o.store.Create(ctx, req); err != nil {
		return Outcome{}, err
	}
	span.SetAttributes(attribute.Int64("approval_request_id", req.ID))
	o.audit(req, "", caller.Actor, "")
	o.metrics.Approvals.WithLabelValues(string(rt), "pending").Inc()

	// Запись уже закоммичена: сбой публикации только логируем
	if err := o.events.ApprovalCreated(ctx, req); err != nil {
		o.logger.Error("publish created event failed", zap.Int64("request_id", req.ID), zap.Error(err))
	}

	o.logger.Info("approval requested",
		zap.Int64("request_id", req.ID),
		zap.String("request_type", string(rt)),
		zap.String("requested_by", caller.Actor.ID))
	return Outcome{Status: OutcomePending, RequestID: req.ID}, nil
}

// Approve фиксирует решение и сразу повторяет действие на сервисе-владельце.
// Сбой повтора не ошибка вызова: заявка становится Failed с текстом ошибки.
func (o *Orchestrator) Approve(ctx context.Context, caller domain.Caller, id int64) (*domain.ApprovalRequest, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.Approve", trace.WithAttributes(attribute.Int64("approval_request_id", id)))
	defer span.End()

	req, err := o.reviewable(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if err := req.Approve(caller.Actor, o.now()); err != nil {
		return nil, err
	}
	if err := o.store.Transition(ctx, req, domain.StatusPending); err != nil {
		return nil, err
	}
	o.audit(req, domain.StatusPending, caller.Actor, "")

	// Решение принято: исход повтора должен записаться даже если клиент отключился
	persistCtx := context.WithoutCancel(ctx)

	cmd := domain.Command{
		RequestType:    req.RequestType,
		EntityID:       req.EntityID,
		ActionData:     req.ActionData,
		Actor:          caller.Actor,
		IdempotencyKey: IdempotencyKey(req.ID),
	}
	start := time.Now()
	_, execErr := o.dispatcher.Dispatch(persistCtx, cmd)

	if execErr != nil {
		span.SetStatus(codes.Error, execErr.Error())
		_ = req.MarkFailed(execErr.Error())
		o.logger.Warn("approved action failed",
			zap.Int64("request_id", req.ID), zap.String("request_type", string(req.RequestType)), zap.Error(execErr))
	} else {
		_ = req.MarkExecuted(o.now())
	}
	o.metrics.ExecutionDuration.WithLabelValues(string(req.RequestType), string(req.Status)).Observe(time.Since(start).Seconds())

	if err := o.store.Transition(persistCtx, req, domain.StatusApproved); err != nil {
		// Действие могло выполниться, а исход не записан: заявка остается Approved
		o.logger.Error("record execution outcome failed",
			zap.Int64("request_id", req.ID), zap.String("outcome", string(req.Status)), zap.Error(err))
		return nil, err
	}
	o.audit(req, domain.StatusApproved, caller.Actor, reasonOf(req))
	o.metrics.Approvals.WithLabelValues(string(req.RequestType), string(req.Status)).Inc()

	if err := o.events.ApprovalProcessed(persistCtx, req); err != nil {
		o.logger.Error("publish processed event failed", zap.Int64("request_id", req.ID), zap.Error(err))
	}
	return req, nil
}

func (o *Orchestrator) Reject(ctx context.Context, caller domain.Caller, id int64, reason string) (*domain.ApprovalRequest, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.Reject", trace.WithAttributes(attribute.Int64("approval_request_id", id)))
	defer span.End()

	req, err := o.reviewable(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if err := req.Reject(caller.Actor, reason, o.now()); err != nil {
		return nil, err
	}
	if err := o.store.Transition(ctx, req, domain.StatusPending); err != nil {
		return nil, err
	}
	o.audit(req, domain.StatusPending, caller.Actor, reason)
	o.metrics.Approvals.WithLabelValues(string(req.RequestType), string(req.Status)).Inc()

	if err := o.events.ApprovalProcessed(context.WithoutCancel(ctx), req); err != nil {
		o.logger.Error("publish processed event failed", zap.Int64("request_id", req.ID), zap.Error(err))
	}
	return req, nil
}

// Cancel доступен только автору Pending-заявки. Событие публикуется до записи:
// если публикация не удалась, заявка остается Pending.
func (o *Orchestrator) Cancel(ctx context.Context, caller domain.Caller, id int64) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.Cancel", trace.WithAttributes(attribute.Int64("approval_request_id", id)))
	defer span.End()

	req, err := o.visible(ctx, id)
	if err != nil {
		return err
	}
	if err := req.Cancel(caller.Actor); err != nil {
		return err
	}

	if err := o.events.ApprovalCancelled(ctx, req, caller.Actor); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("engine: cancel %d aborted, event not published: %w", id, err)
	}
	if err := o.store.Transition(ctx, req, domain.StatusPending); err != nil {
		// компенсирующего события нет: подписчики уже видели отмену, а заявку решил ревьюер
		o.logger.Warn("cancel lost race after event publish: cancelled event already sent, no compensating event",
			zap.Int64("request_id", id),
			zap.String("published_status", string(domain.StatusCancelled)),
			zap.Error(err))
		return err
	}
	o.audit(req, domain.StatusPending, caller.Actor, "")
	o.metrics.Approvals.WithLabelValues(string(req.RequestType), string(req.Status)).Inc()
	return nil
}

// Get отдает заявку ревьюеру или ее автору. Отмененная заявка не существует для API.
func (o *Orchestrator) Get(ctx context.Context, caller domain.Caller, id int64) (*domain.ApprovalRequest, error) {
	req, err := o.visible(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Permissions.Has(domain.PermissionApprovalReview) && req.RequestedBy.ID != caller.Actor.ID {
		return nil, fmt.Errorf("%w: request %d belongs to another user", domain.ErrInsufficientPermission, id)
	}
	return req, nil
}

// List — ревьюер видит очередь целиком, остальные только свои заявки.
func (o *Orchestrator) List(ctx context.Context, caller domain.Caller, f domain.ApprovalFilter) ([]*domain.ApprovalRequest, error) {
	if f.Status == domain.StatusCancelled {
		return []*domain.ApprovalRequest{}, nil
	}
	if !caller.Permissions.Has(domain.PermissionApprovalReview) {
		f.RequestedBy = caller.Actor.ID
	}
	return o.store.List(ctx, f)
}

func (o *Orchestrator) reviewable(ctx context.Context, caller domain.Caller, id int64) (*domain.ApprovalRequest, error) {
	if !caller.Permissions.Has(domain.PermissionApprovalReview) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInsufficientPermission, domain.PermissionApprovalReview)
	}
	return o.visible(ctx, id)
}

func (o *Orchestrator) visible(ctx context.Context, id int64) (*domain.ApprovalRequest, error) {
	req, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == domain.StatusCancelled {
		return nil, fmt.Errorf("engine: approval %d: %w", id, domain.ErrNotFound)
	}
	return req, nil
}

func (o *Orchestrator) audit(req *domain.ApprovalRequest, from domain.ApprovalStatus, by domain.Actor, reason string) {
	if o.auditor == nil {
		return
	}
	o.auditor.Log(audit.Transition{
		ID:          uuid.NewString(),
		RequestID:   req.ID,
		RequestType: string(req.RequestType),
		FromStatus:  string(from),
		ToStatus:    string(req.Status),
		ActorID:     by.ID,
		ActorName:   by.Name,
		Reason:      reason,
		Timestamp:   o.now(),
	})
}

func reasonOf(req *domain.ApprovalRequest) string {
	if req.RejectionReason == nil {
		return ""
	}
	return *req.RejectionReason
}

// IdempotencyKey — ключ повтора заявки на сервисе-владельце.
func IdempotencyKey(requestID int64) string {
	return "approval-" + strconv.FormatInt(requestID, 10)
}
