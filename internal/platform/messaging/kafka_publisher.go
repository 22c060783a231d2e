package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ehr/patient-service/internal/domain/patient"
)

const headerEventType = "event_type"

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher writes patient.created events to a Kafka topic, keyed by
// patient id so all events of one patient land on the same partition.
type KafkaPublisher struct {
	client producer
	closer func()
	topic  string
	logger zerolog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &KafkaPublisher{client: client, closer: client.Close, topic: topic, logger: logger}, nil
}

func (p *KafkaPublisher) PublishPatientCreated(ctx context.Context, event patient.PatientCreatedEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.PatientID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: headerEventType, Value: []byte(patient.EventPatientCreated)},
		},
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}
	p.logger.Debug().
		Str("topic", p.topic).
		Str("patient_id", event.PatientID).
		Msg("published patient created event")
	return nil
}

func (p *KafkaPublisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}
