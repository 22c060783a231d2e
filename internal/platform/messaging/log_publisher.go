// Package messaging carries patient events from the service to the broker
// and from the broker to the notification consumer.
package messaging

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/ehr/patient-service/internal/domain/patient"
)

// LogPublisher records events in the log instead of sending them anywhere.
// It is the default publisher when no broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishPatientCreated(_ context.Context, event patient.PatientCreatedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	p.logger.Info().
		Str("event", patient.EventPatientCreated).
		Str("patient_id", event.PatientID).
		RawJSON("payload", payload).
		Msg("published patient created event (log only)")
	return nil
}
