package reporting

import (
	"context"
	"sync"
	"time"

	"audit-portal/internal/consultation"
	"audit-portal/internal/ledger"
)

// MemoryRepo is a simple in-memory reporting repository for tests and early development.
type MemoryRepo struct {
	mu sync.Mutex

	Entries       []ledger.Entry
	Consultations []consultation.Consultation
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func (r *MemoryRepo) ListLedgerEntries(ctx context.Context, from, to time.Time, collaboratorID string) ([]ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledger.Entry, 0)
	for _, e := range r.Entries {
		if !inRange(e.CreatedAt, from, to) {
			continue
		}
		if collaboratorID != "" && e.CollaboratorID != collaboratorID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *MemoryRepo) ListConsultationsCreated(ctx context.Context, from, to time.Time, ownerID string) ([]consultation.Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]consultation.Consultation, 0)
	for _, c := range r.Consultations {
		if !inRange(c.CreatedAt, from, to) {
			continue
		}
		if ownerID != "" && c.OwnerID != ownerID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
