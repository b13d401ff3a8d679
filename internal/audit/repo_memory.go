package audit

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory append-only repository for tests and local runs
// without a database.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns every event in append order.
func (r *MemoryRepo) Events() []Event {
	return r.filter(func(Event) bool { return true })
}

// ForConsultation returns the trail of one consultation in append order.
func (r *MemoryRepo) ForConsultation(consultationID string) []Event {
	return r.filter(func(e Event) bool { return e.ConsultationID == consultationID })
}

// ForCollaborator returns events touching one collaborator's balance.
func (r *MemoryRepo) ForCollaborator(collaboratorID string) []Event {
	return r.filter(func(e Event) bool { return e.CollaboratorID == collaboratorID })
}

func (r *MemoryRepo) filter(keep func(Event) bool) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
