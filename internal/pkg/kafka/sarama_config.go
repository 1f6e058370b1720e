package kafka

import (
	"Huddle/internal/api/config"
	"time"

	"github.com/IBM/sarama"
)

// newSaramaConfig builds the producer config shared by every publisher.
func newSaramaConfig(kafkaCfg config.KafkaConfig) *sarama.Config {
	c := sarama.NewConfig()

	if kafkaCfg.Sasl.Enable {
		c.Net.SASL.Enable = true
		c.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		c.Net.SASL.User = kafkaCfg.Sasl.Username
		c.Net.SASL.Password = kafkaCfg.Sasl.Password
	}

	// SyncProducer requires both
	c.Producer.Return.Successes = true
	c.Producer.Return.Errors = true

	c.Producer.RequiredAcks = sarama.WaitForLocal
	c.Producer.Retry.Max = 3
	c.Producer.Retry.Backoff = 200 * time.Millisecond
	c.Producer.Timeout = 5 * time.Second
	// one recipient keeps its notifications in order
	c.Producer.Partitioner = sarama.NewHashPartitioner

	return c
}
