package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ehr/patient-service/internal/domain/patient"
)

// PatientCreatedHandler processes one decoded patient.created event.
type PatientCreatedHandler interface {
	HandlePatientCreated(ctx context.Context, event patient.PatientCreatedEvent) error
}

type poller interface {
	PollFetches(ctx context.Context) kgo.Fetches
	Close()
}

// Consumer reads patient.created events as a member of a consumer group.
// Handler failures are logged and the record is skipped; there is no retry.
type Consumer struct {
	client  poller
	handler PatientCreatedHandler
	logger  zerolog.Logger
}

func NewConsumer(brokers []string, topic, group string, handler PatientCreatedHandler, logger zerolog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{client: client, handler: handler, logger: logger}, nil
}

// Run polls until ctx is cancelled or the client is closed.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error().Err(err).Str("topic", topic).Int32("partition", partition).Msg("fetch failed")
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			if err := c.HandleRecord(ctx, rec); err != nil {
				c.logger.Error().Err(err).
					Str("topic", rec.Topic).
					Int64("offset", rec.Offset).
					Msg("patient created event not processed")
			}
		})
	}
}

// HandleRecord decodes a record and passes it to the handler. Records whose
// event_type header names another event are ignored.
func (c *Consumer) HandleRecord(ctx context.Context, rec *kgo.Record) error {
	for _, h := range rec.Headers {
		if h.Key == headerEventType && string(h.Value) != patient.EventPatientCreated {
			return nil
		}
	}
	var event patient.PatientCreatedEvent
	if err := json.Unmarshal(rec.Value, &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if event.PatientID == "" {
		return errors.New("decode event: missing patientId")
	}
	return c.handler.HandlePatientCreated(ctx, event)
}
