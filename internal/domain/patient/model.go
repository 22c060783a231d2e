package patient

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxNameLength = 255

	// isoLayout matches the millisecond UTC form clients of the form expect,
	// e.g. 1990-01-01T00:00:00.000Z.
	isoLayout = "2006-01-02T15:04:05.000Z"
)

// \p{Z} covers the Unicode space separators that \s misses in RE2.
var emailPattern = regexp.MustCompile(`^[^\s\p{Z}@]+@[^\s\p{Z}@]+\.[^\s\p{Z}@]+$`)

// Patient is a registered individual. Fields are unexported so a constructed
// value cannot change; NewPatient is the only way to build one.
type Patient struct {
	id        string
	name      string
	email     string
	birthdate time.Time
	createdAt time.Time
}

// NewPatient validates its arguments and returns an immutable Patient.
// A zero createdAt is replaced with the current time.
func NewPatient(id, name, email string, birthdate, createdAt time.Time) (*Patient, error) {
	return newPatientAt(id, name, email, birthdate, createdAt, time.Now())
}

// newPatientAt is NewPatient with an explicit "now" for the future-birthdate
// check and the createdAt default.
func newPatientAt(id, name, email string, birthdate, createdAt, now time.Time) (*Patient, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateBirthdate(birthdate, now); err != nil {
		return nil, err
	}
	if createdAt.IsZero() {
		createdAt = now
	}
	return &Patient{
		id:        id,
		name:      name,
		email:     email,
		birthdate: birthdate,
		createdAt: createdAt,
	}, nil
}

func (p *Patient) ID() string           { return p.id }
func (p *Patient) Name() string         { return p.name }
func (p *Patient) Email() string        { return p.email }
func (p *Patient) Birthdate() time.Time { return p.birthdate }
func (p *Patient) CreatedAt() time.Time { return p.createdAt }

// View is the external representation of a Patient.
type View struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Birthdate string `json:"birthdate"`
	CreatedAt string `json:"createdAt"`
}

func (p *Patient) View() View {
	return View{
		ID:        p.id,
		Name:      p.name,
		Email:     p.email,
		Birthdate: FormatISO(p.birthdate),
		CreatedAt: FormatISO(p.createdAt),
	}
}

func (p *Patient) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.View())
}

// FormatISO renders t as an ISO-8601 UTC timestamp with millisecond precision.
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// localBirthdateLayouts are ISO-8601 date-times without an offset.
var localBirthdateLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseBirthdate accepts a calendar date (2006-01-02), an RFC 3339
// timestamp, or an ISO-8601 date-time without offset. Values without an
// offset, plain dates included, are read as UTC.
func ParseBirthdate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t, nil
	}
	for _, layout := range localBirthdateLayouts {
		if lt, lerr := time.ParseInLocation(layout, s, time.UTC); lerr == nil {
			return lt, nil
		}
	}
	return time.Time{}, err
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Message: "Patient name cannot be empty"}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return &ValidationError{Field: "name", Message: "Patient name cannot exceed 255 characters"}
	}
	return nil
}

func validateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return &ValidationError{Field: "email", Message: "Invalid email format"}
	}
	return nil
}

func validateBirthdate(birthdate, now time.Time) error {
	if birthdate.IsZero() {
		return &ValidationError{Field: "birthdate", Message: "Birthdate is required"}
	}
	if birthdate.After(now) {
		return &ValidationError{Field: "birthdate", Message: "Birthdate cannot be in the future"}
	}
	return nil
}
