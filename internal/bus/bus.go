// Package bus — шина доменных событий с маршрутизацией по ключу "<сущность>.<глагол>".
// Доставка at-least-once: консьюмер подтверждает сообщение только после обработки,
// повторной публикации на retry или отправки в dead-letter.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeadLetterSuffix добавляется к ключу маршрутизации для недоставляемых сообщений.
const DeadLetterSuffix = ".dead"

const retryInfix = ".retry."

// RetryKey — очередь повторов одной группы. Повтор не должен доходить до групп,
// которые сообщение уже обработали.
func RetryKey(routingKey, group string) string {
	return routingKey + retryInfix + group
}

// withRetryKeys дополняет подписку группы ее очередями повторов.
func withRetryKeys(group string, routingKeys []string) []string {
	out := make([]string, 0, len(routingKeys)*2)
	out = append(out, routingKeys...)
	for _, k := range routingKeys {
		out = append(out, RetryKey(k, group))
	}
	return out
}

// Message — конверт события на шине.
type Message struct {
	ID          string          `json:"id"`
	RoutingKey  string          `json:"routing_key"`
	Key         string          `json:"key,omitempty"` // ключ партиционирования (порядок в пределах сущности)
	Body        json.RawMessage `json:"body"`
	Attempt     int             `json:"attempt"`
	PublishedAt time.Time       `json:"published_at"`
	LastError   string          `json:"last_error,omitempty"`
	// Origin — исходный ключ, если сообщение опубликовано в очередь повторов
	Origin string `json:"origin,omitempty"`
}

// NewMessage сериализует payload в конверт с новым id.
func NewMessage(routingKey, key string, payload any) (Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("bus: marshal %s: %w", routingKey, err)
	}
	return Message{
		ID:          uuid.NewString(),
		RoutingKey:  routingKey,
		Key:         key,
		Body:        body,
		Attempt:     1,
		PublishedAt: time.Now().UTC(),
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Delivery — полученное сообщение и служебный токен бэкенда для ack.
type Delivery struct {
	Message Message
	token   any
}

// Source — очередь одной группы консьюмеров, привязанная к набору ключей.
type Source interface {
	// Receive ждет сообщения не дольше настроенного окна; пустой результат без ошибки означает таймаут.
	Receive(ctx context.Context) ([]Delivery, error)
	Ack(ctx context.Context, d Delivery) error
	// Group — группа консьюмеров, ей адресуются повторы.
	Group() string
	Close() error
}

// Broker — общий контракт бэкендов (Redis Streams, Kafka, memory).
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, group string, routingKeys ...string) (Source, error)
	Close() error
}

// ErrPermanent помечает ошибку, повтор которой бессмыслен (сущность не найдена,
// битый payload). Такое сообщение подтверждается и отбрасывается.
var ErrPermanent = errors.New("permanent failure")

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() []error {
	return []error{ErrPermanent, e.err}
}

// Permanent оборачивает err так, что errors.Is(err, ErrPermanent) == true.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func encodeMessage(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("bus: encode message: %w", err)
	}
	return b, nil
}

func decodeMessage(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("bus: decode message: %w", err)
	}
	return m, nil
}
