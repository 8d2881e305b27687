// Package executor повторяет одобренное действие на сервисе-владельце сущности
// через привилегированный маршрут, от имени одобрившего.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/xela07ax/stockgate/internal/domain"
	"github.com/xela07ax/stockgate/internal/infra"
)

// TokenIssuer выпускает служебный токен от имени одобрившего.
type TokenIssuer interface {
	Issue(actor domain.Actor) (string, error)
}

type Options struct {
	Routes  map[string]string // entityType -> base URL сервиса-владельца
	Timeout time.Duration

	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
	CBFailures    uint32

	// BreakerState опционален: 0 - closed, 1 - half-open, 2 - open
	BreakerState *prometheus.GaugeVec
}

// RemoteError — сервис-владелец ответил не 2xx.
type RemoteError struct {
	Target string
	Status int
	Msg    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("executor: %s responded %d: %s", e.Target, e.Status, e.Msg)
}

// HTTPDispatcher вызывает сервис-владельца ровно один раз на переход Approve.
// Повторов нет: таймаут и сбой становятся Failed у заявки.
type HTTPDispatcher struct {
	client   *http.Client
	issuer   TokenIssuer
	opts     Options
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *zap.Logger
}

func NewHTTPDispatcher(client *http.Client, issuer TokenIssuer, opts Options, logger *zap.Logger) *HTTPDispatcher {
	if client == nil {
		client = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CBFailures == 0 {
		opts.CBFailures = 5
	}
	// viper приводит ключи map к нижнему регистру
	routes := make(map[string]string, len(opts.Routes))
	for entity, base := range opts.Routes {
		routes[strings.ToLower(entity)] = base
	}
	opts.Routes = routes

	d := &HTTPDispatcher{
		client:   client,
		issuer:   issuer,
		opts:     opts,
		breakers: make(map[string]*gobreaker.CircuitBreaker, len(opts.Routes)),
		logger:   logger.Named("executor"),
	}

	// Предохранитель на каждый целевой сервис: отказ одного не блокирует остальные
	for entity := range opts.Routes {
		d.breakers[entity] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        entity,
			MaxRequests: opts.CBMaxRequests,
			Interval:    opts.CBInterval,
			Timeout:     opts.CBTimeout, // Время, через которое CB попробует "закрыться"
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= opts.CBFailures
			},
			// 4xx: бизнес-отказ, сервис жив
			IsSuccessful: func(err error) bool {
				var re *RemoteError
				return err == nil || (errors.As(err, &re) && re.Status < http.StatusInternalServerError)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				d.logger.Warn("breaker state changed",
					zap.String("target", name), zap.String("from", from.String()), zap.String("to", to.String()))
				if opts.BreakerState != nil {
					opts.BreakerState.WithLabelValues(name).Set(float64(to))
				}
			},
		})
	}
	return d
}

// Dispatch отправляет команду на сервис-владелец. Ошибка означает, что надо пометить заявку Failed,
// ее текст становится причиной.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, cmd domain.Command) (json.RawMessage, error) {
	entity := strings.ToLower(cmd.RequestType.EntityType())
	ctx, span := otel.Tracer("stockgate/executor").Start(ctx, "executor.Dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("request_type", string(cmd.RequestType)),
		attribute.String("idempotency_key", cmd.IdempotencyKey),
	)

	base, ok := d.opts.Routes[entity]
	if !ok {
		err := fmt.Errorf("executor: no route for entity %q", entity)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res, err := d.breakers[entity].Execute(func() (interface{}, error) {
		return d.call(ctx, entity, base, cmd)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warn("dispatch failed",
			zap.String("target", entity),
			zap.String("idempotency_key", cmd.IdempotencyKey),
			zap.Error(err))
		return nil, err
	}
	return res.(json.RawMessage), nil
}

func (d *HTTPDispatcher) call(ctx context.Context, target, base string, cmd domain.Command) (json.RawMessage, error) {
	tCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	token, err := d.issuer.Issue(cmd.Actor)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(ExecuteRequest{
		RequestType:    cmd.RequestType,
		EntityID:       cmd.EntityID,
		ActionData:     cmd.ActionData,
		ActingUserID:   cmd.Actor.ID,
		ActingUserName: cmd.Actor.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("executor: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(tCtx, http.MethodPost, strings.TrimRight(base, "/")+ExecutePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("executor: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if cmd.IdempotencyKey != "" {
		req.Header.Set(HeaderIdempotencyKey, cmd.IdempotencyKey)
	}
	if id := infra.TraceIDFrom(ctx); id != "" {
		req.Header.Set(infra.HeaderTraceID, id)
	}
	otel.GetTextMapPropagator().Inject(tCtx, propagation.HeaderCarrier(req.Header))

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("executor: %s timed out after %s: %w", target, d.opts.Timeout, err)
		}
		return nil, fmt.Errorf("executor: call %s: %w", target, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("executor: read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		msg := strings.TrimSpace(string(raw))
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil && er.Error != "" {
			msg = er.Error
		}
		return nil, &RemoteError{Target: target, Status: resp.StatusCode, Msg: msg}
	}

	var out ExecuteResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("executor: decode response: %w", err)
		}
	}
	return out.Result, nil
}
