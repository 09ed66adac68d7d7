package events

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Broadcaster drains the outbox to the audit Kafka topic.
//
// Delivery is at-least-once: a record is marked SENT before the publish and
// ACKED after, so a crash between the two replays the event on restart.
type Broadcaster struct {
	outbox   *Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *zap.Logger
}

func NewBroadcaster(outbox *Outbox, brokers []string, topic string, interval time.Duration, log *zap.Logger) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &Broadcaster{
		outbox:   outbox,
		producer: producer,
		topic:    topic,
		interval: interval,
		log:      log.Named("broadcaster"),
	}, nil
}

func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("started", zap.String("topic", b.topic))

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.drainOnce()
		}
	}
}

func (b *Broadcaster) drainOnce() {
	err := b.outbox.ScanPending(func(rec *Record) error {
		if rec.State == StateNew {
			if err := b.outbox.MarkSent(rec.Seq); err != nil {
				return err
			}
		}

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Value: sarama.ByteEncoder(rec.Payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			// leave SENT; redelivered on the next tick
			b.log.Warn("publish failed", zap.Uint64("seq", rec.Seq), zap.Error(err))
			return nil
		}

		return b.outbox.MarkAcked(rec.Seq)
	})
	if err != nil {
		b.log.Error("outbox scan failed", zap.Error(err))
	}
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
