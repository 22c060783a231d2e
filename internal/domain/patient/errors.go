package patient

import (
	"errors"
	"fmt"
)

var (
	// ErrPatientNotFound is returned by repository lookups that match nothing.
	ErrPatientNotFound = errors.New("patient not found")
	// ErrEmailTaken is returned by Save when the store already holds the email.
	ErrEmailTaken = errors.New("email already registered")
)

// ValidationError reports a field value rejected by NewPatient or by
// request validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// DuplicateEmailError reports an attempt to register an email twice.
type DuplicateEmailError struct {
	Email string
}

func (e *DuplicateEmailError) Error() string {
	return fmt.Sprintf("Patient with email %s already exists", e.Email)
}

// RepositoryError wraps a failure of the persistence collaborator.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string { return fmt.Sprintf("patient repository %s: %v", e.Op, e.Err) }
func (e *RepositoryError) Unwrap() error { return e.Err }

// PublishError wraps a failure to publish the patient.created event. The
// patient identified by PatientID has already been persisted.
type PublishError struct {
	PatientID string
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish patient created event for %s: %v", e.PatientID, e.Err)
}
func (e *PublishError) Unwrap() error { return e.Err }

// RetrievalError wraps a failure to list patients.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return "Failed to retrieve patients" }
func (e *RetrievalError) Unwrap() error { return e.Err }

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	var ve *ValidationError
	var de *DuplicateEmailError
	return errors.As(err, &ve) || errors.As(err, &de)
}
