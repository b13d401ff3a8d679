package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"audit-portal/internal/audit"
	"audit-portal/internal/consultation"
	"audit-portal/internal/ledger"
	"audit-portal/internal/quoting"
)

// Memory is an in-process store. Transactions are serialized by one mutex and
// work on a copy of the state that replaces the original only on success, so a
// failed operation leaves nothing behind.
type Memory struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	consultations map[string]consultation.Consultation
	categories    map[string]quoting.Category
	balances      map[string]ledger.Balance
	entries       []ledger.Entry
	messages      []consultation.Message
	events        []audit.Event
}

func NewMemory() *Memory {
	return &Memory{state: memState{
		consultations: map[string]consultation.Consultation{},
		categories:    map[string]quoting.Category{},
		balances:      map[string]ledger.Balance{},
	}}
}

func (s memState) clone() memState {
	out := memState{
		consultations: make(map[string]consultation.Consultation, len(s.consultations)),
		categories:    s.categories,
		balances:      make(map[string]ledger.Balance, len(s.balances)),
		// append-only; capping capacity makes appends copy
		entries:  s.entries[:len(s.entries):len(s.entries)],
		messages: s.messages[:len(s.messages):len(s.messages)],
		events:   s.events,
	}
	for k, v := range s.consultations {
		out.consultations[k] = v
	}
	for k, v := range s.balances {
		out.balances[k] = v
	}
	return out
}

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx consultation.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(ctx, &memTx{st: &work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) SeedCategories(ctx context.Context, cats []quoting.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make(map[string]quoting.Category, len(m.state.categories)+len(cats))
	for k, v := range m.state.categories {
		next[k] = v
	}
	for _, c := range cats {
		next[c.ID] = c
	}
	m.state.categories = next
	return nil
}

func (m *Memory) ListCategories(ctx context.Context) ([]quoting.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]quoting.Category, 0, len(m.state.categories))
	for _, c := range m.state.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) Get(ctx context.Context, id string) (consultation.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.consultations[id]
	if !ok {
		return consultation.Consultation{}, consultation.ErrNotFound
	}
	return c, nil
}

func (m *Memory) List(ctx context.Context, f consultation.Filter) ([]consultation.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]consultation.Consultation, 0)
	for _, c := range m.state.consultations {
		if f.OwnerID != "" && c.OwnerID != f.OwnerID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) ListMessages(ctx context.Context, consultationID string) ([]consultation.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]consultation.Message, 0)
	for _, msg := range m.state.messages {
		if msg.ConsultationID == consultationID {
			out = append(out, msg)
		}
	}
	// insertion order is creation order; stable keeps equal timestamps in it
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Append satisfies audit.Repository.
func (m *Memory) Append(ctx context.Context, e audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.events = append(m.state.events, e)
	return nil
}

// AuditEvents lists events for one consultation, oldest first. An empty id lists all.
func (m *Memory) AuditEvents(ctx context.Context, consultationID string) ([]audit.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Event, 0, len(m.state.events))
	for _, e := range m.state.events {
		if consultationID == "" || e.ConsultationID == consultationID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListLedgerEntries satisfies reporting.Repository.
func (m *Memory) ListLedgerEntries(ctx context.Context, from, to time.Time, collaboratorID string) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.Entry, 0)
	for _, e := range m.state.entries {
		if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		if collaboratorID != "" && e.CollaboratorID != collaboratorID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) ListConsultationsCreated(ctx context.Context, from, to time.Time, ownerID string) ([]consultation.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]consultation.Consultation, 0)
	for _, c := range m.state.consultations {
		if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
			continue
		}
		if ownerID != "" && c.OwnerID != ownerID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Ledger returns the ledger.Store view of m.
func (m *Memory) Ledger() ledger.Store { return memLedger{m: m} }

type memLedger struct{ m *Memory }

func (l memLedger) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return l.m.InTx(ctx, func(ctx context.Context, tx consultation.Tx) error { return fn(ctx, tx) })
}

func (l memLedger) GetBalance(ctx context.Context, collaboratorID string) (ledger.Balance, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	b, ok := l.m.state.balances[collaboratorID]
	if !ok {
		return ledger.Balance{}, ledger.ErrNotFound
	}
	return b, nil
}

func (l memLedger) ListEntries(ctx context.Context, collaboratorID string, limit int) ([]ledger.Entry, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	out := make([]ledger.Entry, 0)
	for i := len(l.m.state.entries) - 1; i >= 0; i-- {
		e := l.m.state.entries[i]
		if e.CollaboratorID != collaboratorID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type memTx struct {
	st *memState
}

func (t *memTx) LockConsultation(ctx context.Context, id string) (consultation.Consultation, error) {
	c, ok := t.st.consultations[id]
	if !ok {
		return consultation.Consultation{}, consultation.ErrNotFound
	}
	return c, nil
}

func (t *memTx) InsertConsultation(ctx context.Context, c consultation.Consultation) error {
	if _, exists := t.st.consultations[c.ID]; exists {
		return ErrDuplicate
	}
	t.st.consultations[c.ID] = c
	return nil
}

func (t *memTx) CompareAndSwap(ctx context.Context, next consultation.Consultation, prevStatus consultation.Status, prevMeeting consultation.MeetingStatus) error {
	cur, ok := t.st.consultations[next.ID]
	if !ok {
		return consultation.ErrNotFound
	}
	if cur.Status != prevStatus || cur.MeetingStatus != prevMeeting {
		return consultation.ErrStaleState
	}
	// hours_assigned is write-once
	if cur.HoursAssigned != nil {
		next.HoursAssigned = cur.HoursAssigned
	}
	t.st.consultations[next.ID] = next
	return nil
}

func (t *memTx) GetCategory(ctx context.Context, id string) (quoting.Category, error) {
	c, ok := t.st.categories[id]
	if !ok {
		return quoting.Category{}, consultation.ErrNotFound
	}
	return c, nil
}

func (t *memTx) InsertMessage(ctx context.Context, m consultation.Message) error {
	t.st.messages = append(t.st.messages, m)
	return nil
}

func (t *memTx) Touch(ctx context.Context, id string, at time.Time) error {
	c, ok := t.st.consultations[id]
	if !ok {
		return consultation.ErrNotFound
	}
	c.UpdatedAt = at
	t.st.consultations[id] = c
	return nil
}

func (t *memTx) LockBalance(ctx context.Context, collaboratorID string) (ledger.Balance, error) {
	b, ok := t.st.balances[collaboratorID]
	if !ok {
		return ledger.Balance{}, ledger.ErrNotFound
	}
	return b, nil
}

func (t *memTx) EnsureBalance(ctx context.Context, collaboratorID string, now time.Time) error {
	if _, ok := t.st.balances[collaboratorID]; ok {
		return nil
	}
	t.st.balances[collaboratorID] = ledger.Balance{CollaboratorID: collaboratorID, UpdatedAt: now}
	return nil
}

func (t *memTx) ApplyDelta(ctx context.Context, collaboratorID string, delta ledger.Hours, now time.Time) (ledger.Balance, error) {
	b, ok := t.st.balances[collaboratorID]
	if !ok {
		return ledger.Balance{}, ledger.ErrNotFound
	}
	if b.Available+delta < 0 {
		return ledger.Balance{}, ErrNegativeBalance
	}
	b.Available += delta
	b.UpdatedAt = now
	t.st.balances[collaboratorID] = b
	return b, nil
}

func (t *memTx) InsertEntry(ctx context.Context, e ledger.Entry) error {
	if e.IdempotencyKey != nil {
		if _, ok, _ := t.FindEntryByIdempotency(ctx, e.CollaboratorID, *e.IdempotencyKey); ok {
			return ErrDuplicate
		}
	}
	t.st.entries = append(t.st.entries, e)
	return nil
}

func (t *memTx) FindEntryByIdempotency(ctx context.Context, collaboratorID, key string) (ledger.Entry, bool, error) {
	for _, e := range t.st.entries {
		if e.CollaboratorID == collaboratorID && e.IdempotencyKey != nil && *e.IdempotencyKey == key {
			return e, true, nil
		}
	}
	return ledger.Entry{}, false, nil
}
