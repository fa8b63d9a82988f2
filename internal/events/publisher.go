package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"storefront-wallet/internal/config"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// Publisher writes envelopes to Kafka. Producers outside this repo own
// publishing in production; walletctl uses it for replaying missed events.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(cfg config.KafkaConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 || len(cfg.Topics) == 0 {
		return nil, errors.New("kafka: brokers and topics are required")
	}
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewPublisherWithProducer(producer, cfg.Topics[0]), nil
}

func NewPublisherWithProducer(p sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: p, topic: topic}
}

// Publish sends env keyed by its id, assigning one when missing.
func (p *Publisher) Publish(env Envelope) (partition int32, offset int64, err error) {
	if env.Type == "" {
		return 0, 0, fmt.Errorf("%w: type is required", ErrMalformedEvent)
	}
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	body, err := json.Marshal(env)
	if err != nil {
		return 0, 0, err
	}
	return p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(env.ID),
		Value: sarama.ByteEncoder(body),
	})
}

func (p *Publisher) Close() error { return p.producer.Close() }
