package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// ErrPoison помечает сообщение, которое никогда не обработается (битый JSON,
// удалённый заказ). Такое сообщение коммитится и пропускается.
var ErrPoison = errors.New("poison message")

const (
	defaultHandlerRetries = 3
	defaultRetryBackoff   = 500 * time.Millisecond
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer читает topic в consumer group и коммитит offset только после
// обработки. Временные ошибки handler'а ретраятся с линейной паузой.
type Consumer struct {
	r messageReader

	retries     int
	backoff     time.Duration
	startOffset int64
	sleep       func(ctx context.Context, d time.Duration) error
}

type ConsumerOption func(*Consumer)

// WithHandlerRetries задаёт число повторов handler'а на одном сообщении.
func WithHandlerRetries(n int, backoff time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if n >= 0 {
			c.retries = n
		}
		if backoff >= 0 {
			c.backoff = backoff
		}
	}
}

// WithStartOffset: kafka.FirstOffset или kafka.LastOffset для новой группы.
func WithStartOffset(offset int64) ConsumerOption {
	return func(c *Consumer) { c.startOffset = offset }
}

func NewConsumer(brokers []string, topic, groupID string, opts ...ConsumerOption) *Consumer {
	c := newConsumerWithReader(nil, opts...)

	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		StartOffset:       c.startOffset,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	c.r = kafka.NewReader(cfg)
	return c
}

func newConsumerWithReader(r messageReader, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		r:           r,
		retries:     defaultHandlerRetries,
		backoff:     defaultRetryBackoff,
		startOffset: kafka.FirstOffset,
		sleep:       sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume читает сообщения до ошибки. Если handler так и не справился после
// ретраев, Consume возвращает его ошибку без commit.
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if err := c.handle(ctx, msg, handler); err != nil {
			if !errors.Is(err, ErrPoison) {
				return errors.Wrapf(err, "handle %s@%d", msg.Topic, msg.Offset)
			}
			slog.Warn("skip poison message", "topic", msg.Topic, "offset", msg.Offset, "err", err)
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler func(key, value []byte) error) error {
	for attempt := 0; ; attempt++ {
		err := handler(msg.Key, msg.Value)
		if err == nil || errors.Is(err, ErrPoison) || attempt >= c.retries {
			return err
		}
		slog.Warn("message handler failed, retrying",
			"topic", msg.Topic, "offset", msg.Offset, "attempt", attempt+1, "err", err)
		if c.sleep(ctx, c.backoff*time.Duration(attempt+1)) != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
