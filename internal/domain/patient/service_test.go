package patient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ehr/patient-service/internal/platform/clock"
	"github.com/ehr/patient-service/internal/platform/metrics"
)

// -- Mock Repository --

type mockRepo struct {
	inner Repository

	saveErr    error
	findErr    error
	listErr    error
	saveCalls  int
	findCalls  int
	listCalls  int
	byIDCalls  int
	lastSaved  *Patient
	hideEmails bool // FindByEmail misses even when the email is stored
}

func newMockRepo() *mockRepo {
	return &mockRepo{inner: NewMemoryRepo()}
}

func (m *mockRepo) Save(ctx context.Context, p *Patient) (*Patient, error) {
	m.saveCalls++
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	m.lastSaved = p
	return m.inner.Save(ctx, p)
}

func (m *mockRepo) FindByID(ctx context.Context, id string) (*Patient, error) {
	m.byIDCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.inner.FindByID(ctx, id)
}

func (m *mockRepo) FindByEmail(ctx context.Context, email string) (*Patient, error) {
	m.findCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.hideEmails {
		return nil, ErrPatientNotFound
	}
	return m.inner.FindByEmail(ctx, email)
}

func (m *mockRepo) FindAll(ctx context.Context) ([]*Patient, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.inner.FindAll(ctx)
}

func (m *mockRepo) calls() int {
	return m.saveCalls + m.findCalls + m.listCalls + m.byIDCalls
}

// -- Mock Publisher --

type mockPublisher struct {
	err    error
	events []PatientCreatedEvent
}

func (m *mockPublisher) PublishPatientCreated(_ context.Context, event PatientCreatedEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

var testNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	repo    *mockRepo
	pub     *mockPublisher
	metrics *metrics.Metrics
	svc     *Service
	ids     int
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:    newMockRepo(),
		pub:     &mockPublisher{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	env.svc = NewService(env.repo, env.pub,
		WithClock(clock.NewFixed(testNow)),
		WithMetrics(env.metrics),
		WithIDGenerator(func() string {
			env.ids++
			return fmt.Sprintf("patient-%d", env.ids)
		}),
	)
	return env
}

func johnSmith() CreatePatientRequest {
	return CreatePatientRequest{Name: "John Smith", Email: "john@example.com", Birthdate: "1990-05-15"}
}

func TestService_CreatePatient(t *testing.T) {
	env := newTestEnv()

	p, err := env.svc.CreatePatient(context.Background(), johnSmith())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID() != "patient-1" {
		t.Errorf("id = %q, want patient-1", p.ID())
	}
	if p.Name() != "John Smith" || p.Email() != "john@example.com" {
		t.Errorf("unexpected patient %+v", p.View())
	}
	if !p.Birthdate().Equal(birth1990) {
		t.Errorf("birthdate = %v", p.Birthdate())
	}
	if !p.CreatedAt().Equal(testNow) {
		t.Errorf("createdAt = %v, want %v", p.CreatedAt(), testNow)
	}

	if env.repo.findCalls != 1 || env.repo.saveCalls != 1 {
		t.Errorf("expected one lookup and one save, got %d/%d", env.repo.findCalls, env.repo.saveCalls)
	}
	if len(env.pub.events) != 1 {
		t.Fatalf("expected one event, got %d", len(env.pub.events))
	}
	ev := env.pub.events[0]
	want := PatientCreatedEvent{
		PatientID: "patient-1",
		Name:      "John Smith",
		Email:     "john@example.com",
		Birthdate: "1990-05-15",
		CreatedAt: "2024-06-01T09:00:00.000Z",
	}
	if ev != want {
		t.Errorf("event = %+v, want %+v", ev, want)
	}

	if got := testutil.ToFloat64(env.metrics.PatientsCreated); got != 1 {
		t.Errorf("PatientsCreated = %v", got)
	}
	if got := testutil.ToFloat64(env.metrics.EventsPublished); got != 1 {
		t.Errorf("EventsPublished = %v", got)
	}
}

func TestService_CreatePatient_DuplicateEmail(t *testing.T) {
	env := newTestEnv()
	if _, err := env.svc.CreatePatient(context.Background(), johnSmith()); err != nil {
		t.Fatalf("first create: %v", err)
	}

	second := johnSmith()
	second.Name = "Johnny Smith"
	_, err := env.svc.CreatePatient(context.Background(), second)

	var de *DuplicateEmailError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DuplicateEmailError, got %v", err)
	}
	if err.Error() != "Patient with email john@example.com already exists" {
		t.Errorf("message = %q", err.Error())
	}
	if env.repo.saveCalls != 1 {
		t.Errorf("duplicate should not be saved, save calls = %d", env.repo.saveCalls)
	}
	if len(env.pub.events) != 1 {
		t.Errorf("duplicate should not be published, events = %d", len(env.pub.events))
	}
	if env.ids != 1 {
		t.Errorf("no id should be generated for a duplicate, generated %d", env.ids)
	}
	if got := testutil.ToFloat64(env.metrics.CreateFailures.WithLabelValues(metrics.ReasonDuplicate)); got != 1 {
		t.Errorf("duplicate failures = %v", got)
	}
}

func TestService_CreatePatient_ConcurrentDuplicateCaughtBySave(t *testing.T) {
	env := newTestEnv()
	env.repo.hideEmails = true
	if _, err := env.svc.CreatePatient(context.Background(), johnSmith()); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := env.svc.CreatePatient(context.Background(), johnSmith())
	var de *DuplicateEmailError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DuplicateEmailError from Save, got %v", err)
	}
	if len(env.pub.events) != 1 {
		t.Errorf("expected only the first event, got %d", len(env.pub.events))
	}
}

func TestService_CreatePatient_InvalidInputNeverReachesRepository(t *testing.T) {
	tests := []struct {
		name    string
		req     CreatePatientRequest
		wantMsg string
	}{
		{"empty name", CreatePatientRequest{Name: "", Email: "a@b.co", Birthdate: "1990-01-01"}, "Patient name cannot be empty"},
		{"invalid email", CreatePatientRequest{Name: "John", Email: "invalid-email", Birthdate: "1990-01-01"}, "Invalid email format"},
		{"missing birthdate", CreatePatientRequest{Name: "John", Email: "a@b.co"}, "Birthdate is required"},
		{"unparseable birthdate", CreatePatientRequest{Name: "John", Email: "a@b.co", Birthdate: "yesterday"}, "Invalid birthdate format"},
		{"future birthdate", CreatePatientRequest{Name: "John", Email: "a@b.co", Birthdate: "2024-06-02"}, "Birthdate cannot be in the future"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			_, err := env.svc.CreatePatient(context.Background(), tt.req)

			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if ve.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", ve.Message, tt.wantMsg)
			}
			if env.repo.calls() != 0 {
				t.Errorf("repository was called %d times", env.repo.calls())
			}
			if len(env.pub.events) != 0 {
				t.Error("publisher should not be called")
			}
			if got := testutil.ToFloat64(env.metrics.CreateFailures.WithLabelValues(metrics.ReasonValidation)); got != 1 {
				t.Errorf("validation failures = %v", got)
			}
		})
	}
}

func TestService_CreatePatient_LookupFailure(t *testing.T) {
	env := newTestEnv()
	env.repo.findErr = errors.New("connection reset")

	_, err := env.svc.CreatePatient(context.Background(), johnSmith())
	var re *RepositoryError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RepositoryError, got %v", err)
	}
	if IsClientError(err) {
		t.Error("lookup failure must not be a client error")
	}
	if env.repo.saveCalls != 0 {
		t.Error("save should not run after a failed lookup")
	}
}

func TestService_CreatePatient_SaveFailure(t *testing.T) {
	env := newTestEnv()
	env.repo.saveErr = errors.New("disk full")

	_, err := env.svc.CreatePatient(context.Background(), johnSmith())
	var re *RepositoryError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RepositoryError, got %v", err)
	}
	if re.Op != "save" {
		t.Errorf("op = %q, want save", re.Op)
	}
	if len(env.pub.events) != 0 {
		t.Error("nothing should be published when save fails")
	}
	if got := testutil.ToFloat64(env.metrics.CreateFailures.WithLabelValues(metrics.ReasonRepository)); got != 1 {
		t.Errorf("repository failures = %v", got)
	}
}

func TestService_CreatePatient_PublishFailureKeepsRecord(t *testing.T) {
	env := newTestEnv()
	env.pub.err = errors.New("broker unavailable")

	_, err := env.svc.CreatePatient(context.Background(), johnSmith())
	var pe *PublishError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PublishError, got %v", err)
	}
	if pe.PatientID != "patient-1" {
		t.Errorf("PublishError.PatientID = %q", pe.PatientID)
	}

	stored, err := env.repo.inner.FindByID(context.Background(), "patient-1")
	if err != nil {
		t.Fatalf("patient should remain persisted: %v", err)
	}
	if stored.Email() != "john@example.com" {
		t.Errorf("stored email = %q", stored.Email())
	}
	if got := testutil.ToFloat64(env.metrics.CreateFailures.WithLabelValues(metrics.ReasonPublish)); got != 1 {
		t.Errorf("publish failures = %v", got)
	}
	if got := testutil.ToFloat64(env.metrics.EventsPublished); got != 0 {
		t.Errorf("EventsPublished = %v, want 0", got)
	}
}

func TestService_ListPatients(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		env := newTestEnv()
		got, err := env.svc.ListPatients(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("expected empty non-nil slice, got %v", got)
		}
	})

	t.Run("newest first", func(t *testing.T) {
		env := newTestEnv()
		for i, day := range []int{1, 3, 2} {
			p, _ := NewPatient(fmt.Sprintf("p-%d", i), "Patient", fmt.Sprintf("p%d@example.com", i), birth1990,
				time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC))
			if _, err := env.repo.inner.Save(ctx, p); err != nil {
				t.Fatalf("seed: %v", err)
			}
		}

		got, err := env.svc.ListPatients(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 patients, got %d", len(got))
		}
		wantOrder := []string{"p-1", "p-2", "p-0"}
		for i, id := range wantOrder {
			if got[i].ID() != id {
				t.Errorf("position %d = %s, want %s", i, got[i].ID(), id)
			}
		}
	})

	t.Run("repository failure", func(t *testing.T) {
		env := newTestEnv()
		env.repo.listErr = errors.New("timeout")
		_, err := env.svc.ListPatients(ctx)
		var re *RetrievalError
		if !errors.As(err, &re) {
			t.Fatalf("expected *RetrievalError, got %v", err)
		}
		if err.Error() != "Failed to retrieve patients" {
			t.Errorf("message = %q", err.Error())
		}
	})
}

func TestService_GetPatient(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	created, err := env.svc.CreatePatient(ctx, johnSmith())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := env.svc.GetPatient(ctx, created.ID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Email() != "john@example.com" {
		t.Errorf("email = %q", got.Email())
	}

	if _, err := env.svc.GetPatient(ctx, "missing"); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}

	env.repo.findErr = errors.New("boom")
	_, err = env.svc.GetPatient(ctx, created.ID())
	var re *RepositoryError
	if !errors.As(err, &re) {
		t.Errorf("expected *RepositoryError, got %v", err)
	}
}

func TestCreatePatientRequest_Validate(t *testing.T) {
	c := clock.NewFixed(testNow)
	if err := johnSmith().Validate(c); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
	today := CreatePatientRequest{Name: "New Born", Email: "baby@example.com", Birthdate: "2024-06-01"}
	if err := today.Validate(c); err != nil {
		t.Errorf("birthdate equal to today should be accepted: %v", err)
	}
}
