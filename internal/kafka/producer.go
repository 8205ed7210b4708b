package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration // default 10ms
	Async        bool          // fire-and-forget writes
	OnError      func(err error)
}

// Producer is a thin wrapper around segmentio/kafka-go Writer.
type Producer struct {
	w *kafka.Writer
}

func NewProducerFromConfig(c ProducerConfig) *Producer {
	bt := c.BatchTimeout
	if bt <= 0 {
		bt = 10 * time.Millisecond
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        c.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: bt,
		Async:        c.Async,
		RequiredAcks: kafka.RequireOne,
	}
	if c.Async && c.OnError != nil {
		onErr := c.OnError
		w.Completion = func(_ []kafka.Message, err error) {
			if err != nil {
				onErr(err)
			}
		}
	}

	return &Producer{w: w}
}

// Publish writes one message keyed by key (hash-balanced across partitions).
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	return p.w.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

func (p *Producer) Close() error { return p.w.Close() }
