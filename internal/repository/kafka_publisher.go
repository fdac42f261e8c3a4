package repository

import (
	"context"
	"fmt"

	"github.com/Vestika/portfolio-sub001/internal/domain/models"
	domrepo "github.com/Vestika/portfolio-sub001/internal/domain/repository"
	pkgkafka "github.com/Vestika/portfolio-sub001/pkg/kafka"
)

// KafkaPublisher ships archived-bar events to a Kafka topic. Messages are
// keyed by symbol for per-symbol ordering and carry the (symbol, day) pair so
// consumers can dedupe; redelivery after a retry is harmless.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) domrepo.Publisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishBars(ctx context.Context, bars []models.HistoricalBar) error {
	if len(bars) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(bars))
	for _, b := range bars {
		msgs = append(msgs, pkgkafka.Message{
			Key: []byte(b.Symbol),
			Value: map[string]interface{}{
				"event_id": fmt.Sprintf("%s-%s", b.Symbol, b.Day.Format("2006-01-02")),
				"symbol":   b.Symbol,
				"day":      b.Day.Format("2006-01-02"),
				"open":     b.Open,
				"high":     b.High,
				"low":      b.Low,
				"close":    b.Close,
				"volume":   b.Volume,
			},
		})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopPublisher is used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishBars(ctx context.Context, bars []models.HistoricalBar) error { return nil }
func (NoopPublisher) Close() error                                                       { return nil }
