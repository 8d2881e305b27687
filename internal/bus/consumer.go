package bus

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Handler обрабатывает одно сообщение. nil: успех; Permanent(err): отбросить;
// любая другая ошибка: повторить позже.
type Handler func(ctx context.Context, msg Message) error

type ConsumerOptions struct {
	MaxAttempts int
	// Messages опционален: метка result = ok|retry|dead|dropped
	Messages *prometheus.CounterVec
}

// Consumer обрабатывает очередь строго последовательно, чтобы сохранить порядок
// событий в пределах очереди. Параллелизм достигается за счет нескольких консьюмеров.
type Consumer struct {
	src     Source
	pub     Publisher
	handler Handler
	opts    ConsumerOptions
	logger  *zap.Logger
}

func NewConsumer(src Source, pub Publisher, h Handler, opts ConsumerOptions, logger *zap.Logger) *Consumer {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 5
	}
	return &Consumer{src: src, pub: pub, handler: h, opts: opts, logger: logger.Named("consumer")}
}

// Run крутит цикл до отмены ctx. Ошибки обработки не роняют цикл.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		deliveries, err := c.src.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("receive failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, d := range deliveries {
			if err := c.process(ctx, d); err != nil {
				// ctx отменен посреди обработки: сообщение останется неподтвержденным и придет снова
				return nil
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, d Delivery) error {
	msg := d.Message
	if msg.Origin != "" {
		msg.RoutingKey = msg.Origin
		msg.Origin = ""
	}
	log := c.logger.With(
		zap.String("routing_key", msg.RoutingKey),
		zap.String("message_id", msg.ID),
		zap.Int("attempt", msg.Attempt),
	)

	herr := c.handler(ctx, msg)
	switch {
	case herr == nil:
		c.count(msg.RoutingKey, "ok")

	case errors.Is(herr, ErrPermanent):
		log.Warn("dropping message after permanent failure", zap.Error(herr))
		c.count(msg.RoutingKey, "dropped")

	case msg.Attempt >= c.opts.MaxAttempts:
		dead := msg
		dead.RoutingKey = msg.RoutingKey + DeadLetterSuffix
		dead.LastError = herr.Error()
		if err := c.republish(ctx, dead); err != nil {
			return err
		}
		log.Error("message moved to dead letter", zap.Error(herr))
		c.count(msg.RoutingKey, "dead")

	default:
		// повтор только своей группе: остальные уже обработали оригинал
		next := msg
		next.Origin = msg.RoutingKey
		next.RoutingKey = RetryKey(msg.RoutingKey, c.src.Group())
		next.Attempt++
		next.LastError = herr.Error()
		if err := c.republish(ctx, next); err != nil {
			return err
		}
		log.Warn("message scheduled for retry", zap.Error(herr))
		c.count(msg.RoutingKey, "retry")
	}

	if err := c.src.Ack(ctx, d); err != nil {
		// повторная доставка безопасна: обработчики идемпотентны
		log.Error("ack failed", zap.Error(err))
	}
	return nil
}

// republish не отпускает сообщение, пока копия не легла в брокер.
func (c *Consumer) republish(ctx context.Context, msg Message) error {
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(0), // до успеха или отмены ctx
		retry.Delay(200*time.Millisecond),
		retry.MaxDelay(10*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("republish failed", zap.String("routing_key", msg.RoutingKey), zap.Uint("n", n), zap.Error(err))
		}),
	)
	return r.Do(func() error {
		return c.pub.Publish(ctx, msg)
	})
}

func (c *Consumer) count(key, result string) {
	if c.opts.Messages != nil {
		c.opts.Messages.WithLabelValues(key, result).Inc()
	}
}
