package repository

import (
	"context"

	"MarketStructure/internal/domain/models"
	domrepo "MarketStructure/internal/domain/repository"
	pkgkafka "MarketStructure/pkg/kafka"
)

// KafkaSignalPublisher publishes signals keyed by instrument.
type KafkaSignalPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) Publish(ctx context.Context, s *models.Signal) error {
	return p.producer.Publish(ctx, p.topic, []byte(s.Candidate.Instrument), s)
}

// Close is a no-op; the producer is shared with the log digest and closed by
// its owner.
func (p *KafkaSignalPublisher) Close() error { return nil }

var _ domrepo.SignalPublisher = (*KafkaSignalPublisher)(nil)
