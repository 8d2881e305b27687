package bus

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/stockgate/internal/infra"
)

// Open выбирает бэкенд по секции broker. rdb нужен только для redis.
func Open(cfg infra.BrokerConfig, rdb *redis.Client) (Broker, error) {
	switch cfg.Backend {
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("bus: redis backend without redis client")
		}
		return NewRedisStreams(rdb, RedisOptions{
			Block:     cfg.Block,
			Consumer:  cfg.Consumer,
			ClaimIdle: cfg.ClaimIdle,
		}), nil
	case "kafka":
		return NewKafka(cfg.Brokers, cfg.Block), nil
	case "memory":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("bus: unknown backend %q", cfg.Backend)
}
