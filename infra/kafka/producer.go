// Package kafka wraps the notification producer. Notifications are
// best-effort fan-out: a failed write is logged and dropped, never
// retried, and never blocks the event queue for long.
package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Send publishes one message keyed by instrument so per-instrument
// ordering survives partitioning.
func (p *Producer) Send(ctx context.Context, symbol string, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(symbol),
		Value: value,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
