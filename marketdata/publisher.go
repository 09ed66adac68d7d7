// Package marketdata publishes live trade ticks. The stream is best effort;
// the outbox in package events is the durable audit record.
package marketdata

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Tick struct {
	TakerID uint64 `json:"taker_id"`
	MakerID uint64 `json:"maker_id"`
	Price   int64  `json:"price"`
	Amount  int64  `json:"amount"`
	Time    int64  `json:"ts"`
}

type Publisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewPublisher(brokers []string, topic string, log *zap.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			BatchTimeout: 10 * time.Millisecond,
		},
		log: log.Named("marketdata"),
	}
}

// Publish sends a trade tick keyed by taker id so a partition preserves
// per-order ordering.
func (p *Publisher) Publish(ctx context.Context, t Tick) {
	value, err := json.Marshal(t)
	if err != nil {
		p.log.Error("encode tick", zap.Error(err))
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(t.TakerID, 10)),
		Value: value,
	})
	if err != nil {
		p.log.Warn("publish tick", zap.Error(err))
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
