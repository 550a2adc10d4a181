package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaStore publishes events as JSON records keyed by email, so every event
// for one identity lands on the same partition.
type KafkaStore struct {
	client *kgo.Client
	topic  string
}

// NewKafkaStore connects a producer to brokers.
func NewKafkaStore(brokers []string, topic string, opts ...kgo.Opt) (*KafkaStore, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	opts = append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
	}, opts...)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka: new client: %w", err)
	}
	return &KafkaStore{client: client, topic: topic}, nil
}

// EnsureTopic creates the topic with one partition if it does not exist.
func (s *KafkaStore) EnsureTopic(ctx context.Context) error {
	admin := kadm.NewClient(s.client)
	resp, err := admin.CreateTopic(ctx, 1, -1, nil, s.topic)
	if err != nil {
		return fmt.Errorf("kafka: create topic: %w", err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("kafka: create topic %s: %w", s.topic, resp.Err)
	}
	return nil
}

func (s *KafkaStore) Append(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}
	record := &kgo.Record{Key: []byte(event.Email), Value: value}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("kafka: produce %s: %w", event.Action, err)
	}
	return nil
}

// Close flushes buffered records and closes the client.
func (s *KafkaStore) Close() error {
	s.client.Close()
	return nil
}
