package forwarder

import (
	"context"
	"encoding/json"

	"github.com/Shopify/sarama"

	"github.com/i474232898/solar-data-aggregation/internal/solar"
)

const messageKey = "solar"

// KafkaForwarder publishes readings to a Kafka topic.
type KafkaForwarder struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaForwarder dials the brokers with a synchronous producer that waits
// for all in-sync replicas.
func NewKafkaForwarder(brokers []string, topic string) (*KafkaForwarder, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return newKafkaForwarder(producer, topic), nil
}

func newKafkaForwarder(producer sarama.SyncProducer, topic string) *KafkaForwarder {
	return &KafkaForwarder{producer: producer, topic: topic}
}

func (f *KafkaForwarder) Name() string {
	return "kafka:" + f.topic
}

func (f *KafkaForwarder) Forward(ctx context.Context, payload solar.ForwardPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, _, err = f.producer.SendMessage(&sarama.ProducerMessage{
		Topic: f.topic,
		Key:   sarama.StringEncoder(messageKey),
		Value: sarama.ByteEncoder(body),
	})
	return err
}

func (f *KafkaForwarder) Close() error {
	return f.producer.Close()
}
