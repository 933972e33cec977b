package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
)

// KafkaNotifier publishes boost events to a Kafka topic keyed by category
type KafkaNotifier struct {
	client      *kgo.Client
	topic       string
	serviceName string
}

// KafkaNotifierConfig contains configuration for the Kafka notifier
type KafkaNotifierConfig struct {
	Brokers     []string
	Topic       string
	ClientID    string
	ServiceName string
}

// NewKafkaNotifier creates a Kafka notifier
func NewKafkaNotifier(cfg *KafkaNotifierConfig) (*KafkaNotifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("kafka notifier config is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "boost-events"
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "boost-service-producer"
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "boost-service"
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(clientID),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &KafkaNotifier{
		client:      client,
		topic:       topic,
		serviceName: serviceName,
	}, nil
}

// Notify produces the event synchronously
func (n *KafkaNotifier) Notify(ctx context.Context, recipient string, event *domain.BoostEvent) error {
	record, err := n.record(recipient, event)
	if err != nil {
		return err
	}
	if err := n.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

// Close flushes and closes the client
func (n *KafkaNotifier) Close() error {
	n.client.Close()
	return nil
}

func (n *KafkaNotifier) record(recipient string, event *domain.BoostEvent) (*kgo.Record, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &kgo.Record{
		Topic: n.topic,
		// per-category ordering
		Key:   []byte(event.Category),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "recipient", Value: []byte(recipient)},
			{Key: "source", Value: []byte(n.serviceName)},
			{Key: "content_type", Value: []byte("application/json")},
		},
		Timestamp: event.OccurredAt,
	}, nil
}
