package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ehr/patient-service/internal/platform/clock"
	"github.com/ehr/patient-service/internal/platform/metrics"
)

const tracerName = "github.com/ehr/patient-service/internal/domain/patient"

// CreatePatientRequest carries the client's registration input. Birthdate is
// kept as a string so the event can echo exactly what was submitted.
type CreatePatientRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Birthdate string `json:"birthdate"`
}

// Validate applies the same field rules as NewPatient, in the same order,
// plus birthdate parseability. It never touches a collaborator.
func (r CreatePatientRequest) Validate(c clock.Clock) error {
	if err := validateName(r.Name); err != nil {
		return err
	}
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if r.Birthdate == "" {
		return &ValidationError{Field: "birthdate", Message: "Birthdate is required"}
	}
	bd, err := ParseBirthdate(r.Birthdate)
	if err != nil {
		return &ValidationError{Field: "birthdate", Message: "Invalid birthdate format"}
	}
	return validateBirthdate(bd, c.Now())
}

type Service struct {
	patients Repository
	events   EventPublisher
	clock    clock.Clock
	newID    func() string
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	tracer   trace.Tracer
}

type Option func(*Service)

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithIDGenerator(fn func() string) Option { return func(s *Service) { s.newID = fn } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(patients Repository, events EventPublisher, opts ...Option) *Service {
	s := &Service{
		patients: patients,
		events:   events,
		clock:    clock.NewSystem(),
		newID:    func() string { return uuid.New().String() },
		logger:   zerolog.Nop(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePatient registers a new patient and publishes a patient.created
// event. The steps run strictly in order: uniqueness check, id generation,
// entity construction, save, publish.
//
// A publish failure is returned as *PublishError even though the patient has
// already been saved; the record is not rolled back.
func (s *Service) CreatePatient(ctx context.Context, req CreatePatientRequest) (*Patient, error) {
	ctx, span := s.tracer.Start(ctx, "patient.CreatePatient")
	defer span.End()

	p, err := s.createPatient(ctx, req)
	if err != nil {
		s.metrics.IncCreateFailure(failureReason(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("patient.id", p.ID()))
	return p, nil
}

func (s *Service) createPatient(ctx context.Context, req CreatePatientRequest) (*Patient, error) {
	if err := req.Validate(s.clock); err != nil {
		return nil, err
	}

	existing, err := s.patients.FindByEmail(ctx, req.Email)
	switch {
	case err == nil && existing != nil:
		return nil, &DuplicateEmailError{Email: req.Email}
	case err != nil && !errors.Is(err, ErrPatientNotFound):
		return nil, &RepositoryError{Op: "find by email", Err: err}
	}

	id := s.newID()

	birthdate, err := ParseBirthdate(req.Birthdate)
	if err != nil {
		return nil, &ValidationError{Field: "birthdate", Message: "Invalid birthdate format"}
	}
	now := s.clock.Now()
	p, err := newPatientAt(id, req.Name, req.Email, birthdate, now, now)
	if err != nil {
		return nil, err
	}

	saved, err := s.patients.Save(ctx, p)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, &DuplicateEmailError{Email: req.Email}
		}
		return nil, &RepositoryError{Op: "save", Err: err}
	}
	s.metrics.IncCreated()

	event := NewPatientCreatedEvent(saved, req.Birthdate)
	if err := s.events.PublishPatientCreated(ctx, event); err != nil {
		s.logger.Error().Err(err).
			Str("patient_id", saved.ID()).
			Msg("patient persisted but patient.created event was not published")
		return nil, &PublishError{PatientID: saved.ID(), Err: err}
	}
	s.metrics.IncPublished()

	s.logger.Info().Str("patient_id", saved.ID()).Msg("patient created")
	return saved, nil
}

// ListPatients returns every patient, most recently created first.
func (s *Service) ListPatients(ctx context.Context) ([]*Patient, error) {
	ctx, span := s.tracer.Start(ctx, "patient.ListPatients")
	defer span.End()

	patients, err := s.patients.FindAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &RetrievalError{Err: err}
	}
	return patients, nil
}

func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	ctx, span := s.tracer.Start(ctx, "patient.GetPatient")
	defer span.End()

	p, err := s.patients.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, ErrPatientNotFound
		}
		span.RecordError(err)
		return nil, &RepositoryError{Op: "find by id", Err: err}
	}
	return p, nil
}

func failureReason(err error) string {
	var (
		ve *ValidationError
		de *DuplicateEmailError
		pe *PublishError
	)
	switch {
	case errors.As(err, &ve):
		return metrics.ReasonValidation
	case errors.As(err, &de):
		return metrics.ReasonDuplicate
	case errors.As(err, &pe):
		return metrics.ReasonPublish
	default:
		return metrics.ReasonRepository
	}
}
