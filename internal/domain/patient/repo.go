package patient

import "context"

// Repository persists patients. Implementations hold at most one record per
// email and return ErrEmailTaken from Save when that constraint fires.
type Repository interface {
	Save(ctx context.Context, p *Patient) (*Patient, error)
	FindByID(ctx context.Context, id string) (*Patient, error)
	FindByEmail(ctx context.Context, email string) (*Patient, error)
	// FindAll returns every patient, most recently created first.
	FindAll(ctx context.Context) ([]*Patient, error)
}
