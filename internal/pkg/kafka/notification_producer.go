package kafka

import (
	"Huddle/internal/api/config"
	"Huddle/internal/pkg/logger"
	"Huddle/internal/service"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// NotificationProducer publishes notifications for push delivery, keyed by
// recipient.
type NotificationProducer struct {
	producer sarama.SyncProducer
	topic    string
}

var _ service.Notifier = (*NotificationProducer)(nil)

func NewNotificationProducer(cfg config.KafkaConfig) (*NotificationProducer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, newSaramaConfig(cfg))
	if err != nil {
		return nil, err
	}
	log.Info("Kafka notification producer initialized", "topic", cfg.NotificationTopic)
	return NewNotificationProducerFrom(producer, cfg.NotificationTopic), nil
}

func NewNotificationProducerFrom(producer sarama.SyncProducer, topic string) *NotificationProducer {
	return &NotificationProducer{producer: producer, topic: topic}
}

func (p *NotificationProducer) Notify(ctx context.Context, n service.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "encode notification")
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(n.RecipientID),
		Value: sarama.ByteEncoder(payload),
	}
	if traceID := logger.TraceID(ctx); traceID != "" {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{
			Key:   []byte(logger.TraceIDKey),
			Value: []byte(traceID),
		})
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return errors.Wrap(err, "publish notification")
	}
	log.DebugContext(ctx, "notification published",
		"kind", n.Kind, "recipient", n.RecipientID, "partition", partition, "offset", offset)
	return nil
}

func (p *NotificationProducer) Close() error {
	return p.producer.Close()
}
