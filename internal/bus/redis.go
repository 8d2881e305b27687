package bus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/stockgate/internal/infra"
)

// RedisOptions настраивает чтение из Redis Streams.
type RedisOptions struct {
	Block time.Duration
	// Consumer — имя в группе. Оно же ключ PEL, поэтому должно переживать рестарт.
	Consumer string
	// ClaimIdle — порог простоя, после которого чужие неподтвержденные сообщения
	// забираются себе (упавший узел с другим именем)
	ClaimIdle time.Duration
}

// RedisStreams: один stream на ключ маршрутизации, группа консьюмеров на очередь.
// Неподтвержденные сообщения остаются в PEL консьюмера: при старте он дочитывает
// свой PEL и забирает через XAUTOCLAIM то, что зависло у других.
type RedisStreams struct {
	rdb    *redis.Client
	opts   RedisOptions
	maxLen int64
}

func NewRedisStreams(rdb *redis.Client, opts RedisOptions) *RedisStreams {
	if opts.Block <= 0 {
		opts.Block = 2 * time.Second
	}
	if opts.Consumer == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "stockgate"
		}
		opts.Consumer = host
	}
	if opts.ClaimIdle <= 0 {
		opts.ClaimIdle = time.Minute
	}
	return &RedisStreams{rdb: rdb, opts: opts, maxLen: 100_000}
}

func (b *RedisStreams) Publish(ctx context.Context, msg Message) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: infra.StreamKey(msg.RoutingKey),
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]any{"data": string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("bus: xadd %s: %w", msg.RoutingKey, err)
	}
	return nil
}

func (b *RedisStreams) Subscribe(ctx context.Context, group string, routingKeys ...string) (Source, error) {
	if len(routingKeys) == 0 {
		return nil, errors.New("bus: subscribe without routing keys")
	}
	keys := withRetryKeys(group, routingKeys)
	streams := make([]string, 0, len(keys))
	for _, k := range keys {
		s := infra.StreamKey(k)
		// "0": группа видит и то, что успели опубликовать до первого подписчика
		if err := b.rdb.XGroupCreateMkStream(ctx, s, group, "0").Err(); err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return nil, fmt.Errorf("bus: create group %s on %s: %w", group, s, err)
		}
		streams = append(streams, s)
	}

	return &redisSource{
		rdb:       b.rdb,
		group:     group,
		consumer:  b.opts.Consumer,
		streams:   streams,
		block:     b.opts.Block,
		claimIdle: b.opts.ClaimIdle,
		pending:   true,
	}, nil
}

func (b *RedisStreams) Close() error { return nil }

type redisSource struct {
	rdb       *redis.Client
	group     string
	consumer  string
	streams   []string
	block     time.Duration
	claimIdle time.Duration

	mu        sync.Mutex
	pending   bool // сначала дочитываем собственный PEL
	lastClaim time.Time
}

type redisToken struct {
	stream string
	id     string
}

func (s *redisSource) Receive(ctx context.Context) ([]Delivery, error) {
	s.mu.Lock()
	claim := s.lastClaim.IsZero() || time.Since(s.lastClaim) >= s.claimIdle
	s.mu.Unlock()

	if claim {
		n, err := s.claim(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.lastClaim = time.Now()
		if n > 0 {
			s.pending = true
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	drain := s.pending
	s.mu.Unlock()

	if drain {
		out, err := s.read(ctx, "0", 0)
		if err != nil {
			return nil, err
		}
		if len(out) > 0 {
			return out, nil
		}
		s.mu.Lock()
		s.pending = false
		s.mu.Unlock()
	}
	return s.read(ctx, ">", s.block)
}

// claim переводит в свой PEL сообщения, которые дольше claimIdle висят у других
// консьюмеров группы. Возвращает, сколько забрано.
func (s *redisSource) claim(ctx context.Context) (int, error) {
	total := 0
	for _, stream := range s.streams {
		start := "0-0"
		for {
			msgs, next, err := s.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   stream,
				Group:    s.group,
				Consumer: s.consumer,
				MinIdle:  s.claimIdle,
				Start:    start,
				Count:    100,
			}).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					break
				}
				return total, fmt.Errorf("bus: xautoclaim %s: %w", stream, err)
			}
			total += len(msgs)
			if next == "" || next == "0-0" {
				break
			}
			start = next
		}
	}
	return total, nil
}

func (s *redisSource) read(ctx context.Context, id string, block time.Duration) ([]Delivery, error) {
	args := make([]string, 0, len(s.streams)*2)
	args = append(args, s.streams...)
	for range s.streams {
		args = append(args, id)
	}

	xa := &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  args,
		Count:    100,
		Block:    block,
	}
	if block == 0 {
		// Block=0 в redis означает "ждать бесконечно"; для PEL ждать не нужно
		xa.Block = -1
	}

	res, err := s.rdb.XReadGroup(ctx, xa).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("bus: xreadgroup: %w", err)
	}

	var out []Delivery
	for _, str := range res {
		for _, xm := range str.Messages {
			tok := redisToken{stream: str.Stream, id: xm.ID}
			raw, _ := xm.Values["data"].(string)
			if raw == "" {
				// запись вытеснена MaxLen или чужой формат: подтверждаем, чтобы не застрять
				_ = s.rdb.XAck(ctx, str.Stream, s.group, xm.ID).Err()
				continue
			}
			msg, err := decodeMessage([]byte(raw))
			if err != nil {
				_ = s.rdb.XAck(ctx, str.Stream, s.group, xm.ID).Err()
				continue
			}
			out = append(out, Delivery{Message: msg, token: tok})
		}
	}
	return out, nil
}

func (s *redisSource) Ack(ctx context.Context, d Delivery) error {
	tok, ok := d.token.(redisToken)
	if !ok {
		return errors.New("bus: foreign delivery")
	}
	if err := s.rdb.XAck(ctx, tok.stream, s.group, tok.id).Err(); err != nil {
		return fmt.Errorf("bus: xack %s: %w", tok.id, err)
	}
	return nil
}

func (s *redisSource) Group() string { return s.group }
func (s *redisSource) Close() error  { return nil }
