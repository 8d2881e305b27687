package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

// Kafka: топик на ключ маршрутизации, consumer group на очередь.
// Ключом сообщения служит Message.Key, поэтому события одной сущности попадают в одну партицию.
type Kafka struct {
	brokers []string
	writer  *kafka.Writer
	maxWait time.Duration
}

func NewKafka(brokers []string, maxWait time.Duration) *Kafka {
	if maxWait <= 0 {
		maxWait = 2 * time.Second
	}
	// Writer без Topic: топик задается в каждом сообщении. Безопасен для конкурентного использования
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return &Kafka{brokers: brokers, writer: w, maxWait: maxWait}
}

func (k *Kafka) Publish(ctx context.Context, msg Message) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	km := kafka.Message{
		Topic: msg.RoutingKey,
		Key:   []byte(msg.Key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "message_id", Value: []byte(msg.ID)},
		},
	}
	if err := k.writer.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("bus: kafka write %s: %w", msg.RoutingKey, err)
	}
	return nil
}

func (k *Kafka) Subscribe(ctx context.Context, group string, routingKeys ...string) (Source, error) {
	if len(routingKeys) == 0 {
		return nil, errors.New("bus: subscribe without routing keys")
	}
	topics := withRetryKeys(group, routingKeys)
	if err := k.ensureTopics(ctx, topics); err != nil {
		return nil, err
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.brokers,
		GroupID:     group,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     k.maxWait,
		StartOffset: kafka.FirstOffset,
		// топик повторов может появиться позже подписки
		WatchPartitionChanges: true,
	})
	return &kafkaSource{reader: r, group: group, wait: k.maxWait}, nil
}

// ensureTopics запрашивает метаданные топиков, брокер с auto.create.topics создает недостающие.
func (k *Kafka) ensureTopics(ctx context.Context, topics []string) error {
	conn, err := kafka.DialContext(ctx, "tcp", k.brokers[0])
	if err != nil {
		return fmt.Errorf("bus: kafka dial: %w", err)
	}
	defer conn.Close()
	// только что созданный топик еще без лидера, читатель дождется его сам
	if _, err := conn.ReadPartitions(topics...); err != nil && !errors.Is(err, kafka.LeaderNotAvailable) {
		return fmt.Errorf("bus: kafka topics %v: %w", topics, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

type kafkaSource struct {
	reader *kafka.Reader
	group  string
	wait   time.Duration
}

// Receive отдает по одному сообщению: offset коммитится строго по порядку.
func (s *kafkaSource) Receive(ctx context.Context) ([]Delivery, error) {
	fctx, cancel := context.WithTimeout(ctx, s.wait)
	defer cancel()

	km, err := s.reader.FetchMessage(fctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("bus: kafka fetch: %w", err)
	}

	msg, err := decodeMessage(km.Value)
	if err != nil {
		// битое сообщение не должно блокировать партицию
		if cerr := s.reader.CommitMessages(ctx, km); cerr != nil {
			return nil, fmt.Errorf("bus: kafka commit undecodable: %w", cerr)
		}
		return nil, nil
	}
	return []Delivery{{Message: msg, token: km}}, nil
}

func (s *kafkaSource) Ack(ctx context.Context, d Delivery) error {
	km, ok := d.token.(kafka.Message)
	if !ok {
		return errors.New("bus: foreign delivery")
	}
	if err := s.reader.CommitMessages(ctx, km); err != nil {
		return fmt.Errorf("bus: kafka commit: %w", err)
	}
	return nil
}

func (s *kafkaSource) Group() string { return s.group }

func (s *kafkaSource) Close() error {
	return s.reader.Close()
}
