package patient

import (
	"context"
	"sort"
	"sync"
)

type patientRepoMemory struct {
	mu      sync.RWMutex
	byID    map[string]*Patient
	byEmail map[string]string
	order   []string // insertion order, used to break createdAt ties
}

// NewMemoryRepo returns a Repository held in process memory. It enforces
// email uniqueness atomically in Save.
func NewMemoryRepo() Repository {
	return &patientRepoMemory{
		byID:    make(map[string]*Patient),
		byEmail: make(map[string]string),
	}
}

func (r *patientRepoMemory) Save(_ context.Context, p *Patient) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[p.Email()]; taken {
		return nil, ErrEmailTaken
	}
	r.byID[p.ID()] = p
	r.byEmail[p.Email()] = p.ID()
	r.order = append(r.order, p.ID())
	return p, nil
}

func (r *patientRepoMemory) FindByID(_ context.Context, id string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

func (r *patientRepoMemory) FindByEmail(_ context.Context, email string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return r.byID[id], nil
}

func (r *patientRepoMemory) FindAll(_ context.Context) ([]*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Patient, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		result = append(result, r.byID[r.order[i]])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt().After(result[j].CreatedAt())
	})
	return result, nil
}
