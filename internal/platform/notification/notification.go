// Package notification turns patient lifecycle events into outbound notices.
// Rendering uses {{key}} templates; delivery is delegated to a Sender.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/patient-service/internal/domain/patient"
	"github.com/ehr/patient-service/internal/platform/metrics"
)

const TemplatePatientRegistered = "patient-registered"

// Notification is a rendered message ready for delivery.
type Notification struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	PatientID string    `json:"patient_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Sender delivers a rendered notification (email, SMS, push...).
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// -- Templates --

type Template struct {
	ID      string
	Subject string
	Body    string
}

type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateEngine returns an engine with the patient-registered template.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	e.Register(Template{
		ID:      TemplatePatientRegistered,
		Subject: "Welcome, {{patient_name}}",
		Body:    "Dear {{patient_name}}, your patient record was created on {{created_at}}. Your patient ID is {{patient_id}}.",
	})
	return e
}

func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render replaces {{key}} placeholders with data. Unknown keys are left as-is.
func (e *TemplateEngine) Render(id string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", id)
	}

	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// -- Senders --

// LogSender writes notifications to the log instead of delivering them.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.logger.Info().
		Str("notification_id", n.ID).
		Str("recipient", n.Recipient).
		Str("subject", n.Subject).
		Str("body", n.Body).
		Msg("notification sent")
	return nil
}

// -- Notifier --

// Notifier handles patient.created events.
type Notifier struct {
	templates *TemplateEngine
	sender    Sender
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewNotifier(templates *TemplateEngine, sender Sender, m *metrics.Metrics, logger zerolog.Logger) *Notifier {
	return &Notifier{templates: templates, sender: sender, metrics: m, logger: logger}
}

func (n *Notifier) HandlePatientCreated(ctx context.Context, event patient.PatientCreatedEvent) error {
	n.logger.Info().Str("patient_id", event.PatientID).Msgf("New patient registered: %s", event.Name)

	subject, body, err := n.templates.Render(TemplatePatientRegistered, map[string]string{
		"patient_name": event.Name,
		"patient_id":   event.PatientID,
		"created_at":   event.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("render notification: %w", err)
	}

	msg := Notification{
		ID:        uuid.New().String(),
		Recipient: event.Email,
		Subject:   subject,
		Body:      body,
		PatientID: event.PatientID,
		CreatedAt: time.Now().UTC(),
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send notification for patient %s: %w", event.PatientID, err)
	}
	n.metrics.IncConsumed()

	n.logger.Info().Msgf("Notification processed for patient %s", event.PatientID)
	return nil
}
