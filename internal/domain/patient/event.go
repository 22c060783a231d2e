package patient

import "context"

// EventPatientCreated is the routing key / topic patient creations are published on.
const EventPatientCreated = "patient.created"

// PatientCreatedEvent is a snapshot of a newly registered patient.
// Birthdate is the string exactly as the client submitted it.
type PatientCreatedEvent struct {
	PatientID string `json:"patientId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Birthdate string `json:"birthdate"`
	CreatedAt string `json:"createdAt"`
}

// NewPatientCreatedEvent builds the event for a saved patient.
func NewPatientCreatedEvent(p *Patient, submittedBirthdate string) PatientCreatedEvent {
	return PatientCreatedEvent{
		PatientID: p.ID(),
		Name:      p.Name(),
		Email:     p.Email(),
		Birthdate: submittedBirthdate,
		CreatedAt: FormatISO(p.CreatedAt()),
	}
}

// EventPublisher delivers patient lifecycle events to interested parties.
type EventPublisher interface {
	PublishPatientCreated(ctx context.Context, event PatientCreatedEvent) error
}
