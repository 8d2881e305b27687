package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/stockgate/internal/infra"
)

// sessionTTL — страховка от членов группы, оставшихся после падения узла.
const sessionTTL = 24 * time.Hour

// RedisRegistry — общий для всех узлов реестр сессий (Set на группу)
// и ретранслятор push-сообщений через Pub/Sub.
type RedisRegistry struct {
	rdb    *redis.Client
	node   string
	logger *zap.Logger

	// паузы цикла подписки, в тестах укорачиваются
	retryDelay     time.Duration
	reconnectDelay time.Duration
}

func NewRedisRegistry(rdb *redis.Client, node string, logger *zap.Logger) *RedisRegistry {
	return &RedisRegistry{
		rdb:            rdb,
		node:           node,
		logger:         logger.Named("registry"),
		retryDelay:     5 * time.Second,
		reconnectDelay: time.Second,
	}
}

func (r *RedisRegistry) Add(ctx context.Context, group, member string) error {
	key := infra.SessionGroupKey(group)
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, key, member)
		p.Expire(ctx, key, sessionTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("notify: registry add %s: %w", group, err)
	}
	return nil
}

func (r *RedisRegistry) Remove(ctx context.Context, group, member string) error {
	if err := r.rdb.SRem(ctx, infra.SessionGroupKey(group), member).Err(); err != nil {
		return fmt.Errorf("notify: registry remove %s: %w", group, err)
	}
	return nil
}

func (r *RedisRegistry) Lookup(ctx context.Context, group string) ([]string, error) {
	members, err := r.rdb.SMembers(ctx, infra.SessionGroupKey(group)).Result()
	if err != nil {
		return nil, fmt.Errorf("notify: registry lookup %s: %w", group, err)
	}
	return members, nil
}

type envelope struct {
	Node  string          `json:"node"`
	Group string          `json:"group"`
	Data  json.RawMessage `json:"data"`
}

func (r *RedisRegistry) Broadcast(ctx context.Context, group string, data []byte) error {
	raw, err := json.Marshal(envelope{Node: r.node, Group: group, Data: data})
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, infra.RedisChanPush, raw).Err(); err != nil {
		return fmt.Errorf("notify: broadcast %s: %w", group, err)
	}
	return nil
}

// Listen — "живучая" подписка на канал ретрансляции. resync вызывается при каждом
// успешном подключении, deliver получает сообщения других узлов.
func (r *RedisRegistry) Listen(ctx context.Context, resync func(ctx context.Context) error, deliver func(group string, data []byte)) {
	for {
		pubsub := r.rdb.Subscribe(ctx, infra.RedisChanPush)

		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("failed to subscribe", zap.String("chan", infra.RedisChanPush), zap.Error(err))
			if !sleep(ctx, r.retryDelay) {
				return
			}
			continue
		}

		// реестр мог потеряться вместе с Redis
		if err := resync(ctx); err != nil {
			r.logger.Error("resync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.logger.Error("invalid push envelope", zap.Error(err))
					continue
				}
				if env.Node == r.node {
					continue
				}
				deliver(env.Group, env.Data)
			}
		}

		pubsub.Close()
		if !sleep(ctx, r.reconnectDelay) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
