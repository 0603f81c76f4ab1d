package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/config"
)

// SaramaSyncProducer writes records to a single topic and waits for the
// broker acknowledgement.
type SaramaSyncProducer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaSyncProducer(cfg *config.Config) (*SaramaSyncProducer, error) {
	producer, err := sarama.NewSyncProducer(cfg.KafkaBrokers, NewSaramaConfig())
	if err != nil {
		return nil, err
	}
	return NewSaramaSyncProducer(producer, cfg.KafkaTopicFootprint), nil
}

func NewSaramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Return.Errors = true
	config.Producer.Return.Successes = true
	return config
}

func NewSaramaSyncProducer(producer sarama.SyncProducer, topic string) *SaramaSyncProducer {
	return &SaramaSyncProducer{
		producer: producer,
		topic:    topic,
	}
}

// Produce sends one record keyed by key. The context is checked before
// sending; sarama bounds the send itself with its own timeouts.
func (p *SaramaSyncProducer) Produce(ctx context.Context, key string, value []byte, ts time.Time) (int32, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	return p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Timestamp: ts,
	})
}

func (p *SaramaSyncProducer) Close() error {
	return p.producer.Close()
}
