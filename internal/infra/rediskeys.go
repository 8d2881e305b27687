package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "stockgate"
)

// Streams шины событий: один stream на routing key.
const RedisStreamPrefix = RedisNamespace + ":events:"

// Каналы Pub/Sub
const (
	// RedisChanPush — межузловая ретрансляция push-сообщений в группы.
	RedisChanPush = RedisNamespace + ":push"
)

func StreamKey(routingKey string) string {
	return RedisStreamPrefix + routingKey
}

// SessionGroupKey — Set узлов, на которых есть живые сессии группы.
func SessionGroupKey(group string) string {
	return fmt.Sprintf("%s:sessions:%s", RedisNamespace, group)
}
