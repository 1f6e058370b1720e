package kafka

import (
	"Huddle/internal/pkg/logger"
	"Huddle/internal/service"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/goccy/go-json"
)

func TestNotifyPublishesKeyedByRecipient(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)

	n := service.Notification{
		Kind:           service.NotifyMessage,
		RecipientID:    "u2",
		ConversationID: "general",
		SenderID:       "u1",
		Title:          "#general - Ana",
		Body:           "hi",
		At:             time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "chat.notifications" {
			return errors.New("wrong topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "u2" {
			return errors.New("wrong key " + string(key))
		}
		raw, _ := msg.Value.Encode()
		var got service.Notification
		if err := json.Unmarshal(raw, &got); err != nil {
			return err
		}
		if got.Title != n.Title || !got.At.Equal(n.At) {
			return errors.New("payload mismatch")
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "trace-1" {
			return errors.New("trace header missing")
		}
		return nil
	})

	p := NewNotificationProducerFrom(producer, "chat.notifications")
	ctx := logger.WithTrace(context.Background(), "trace-1")
	if err := p.Notify(ctx, n); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNotifyReturnsSendError(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewNotificationProducerFrom(producer, "chat.notifications")
	err := p.Notify(context.Background(), service.Notification{RecipientID: "u2"})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Errorf("Notify() = %v", err)
	}
	_ = p.Close()
}
