package store

import (
	"context"
	"fmt"
	"time"

	"audit-portal/internal/audit"
	"audit-portal/internal/ledger"
)

type auditRow struct {
	ID             string    `db:"id"`
	Type           string    `db:"type"`
	ActorUserID    string    `db:"actor_user_id"`
	ActorRole      string    `db:"actor_role"`
	IPAddress      string    `db:"ip_address"`
	ConsultationID string    `db:"consultation_id"`
	CollaboratorID string    `db:"collaborator_id"`
	FromStatus     string    `db:"from_status"`
	ToStatus       string    `db:"to_status"`
	Hours          int64     `db:"hours"`
	Message        string    `db:"message"`
	Metadata       string    `db:"metadata"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r auditRow) event() audit.Event {
	return audit.Event{
		ID:             r.ID,
		Type:           audit.EventType(r.Type),
		ActorUserID:    r.ActorUserID,
		ActorRole:      r.ActorRole,
		IPAddress:      r.IPAddress,
		ConsultationID: r.ConsultationID,
		CollaboratorID: r.CollaboratorID,
		FromStatus:     r.FromStatus,
		ToStatus:       r.ToStatus,
		Hours:          ledger.Hours(r.Hours),
		Message:        r.Message,
		Metadata:       r.Metadata,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

// Append satisfies audit.Repository. Rows are never updated.
func (s *SQL) Append(ctx context.Context, e audit.Event) error {
	const q = `
INSERT INTO audit_events (
  id, type, actor_user_id, actor_role, ip_address, consultation_id, collaborator_id,
  from_status, to_status, hours, message, metadata, created_at
) VALUES (
  :id, :type, :actor_user_id, :actor_role, :ip_address, :consultation_id, :collaborator_id,
  :from_status, :to_status, :hours, :message, :metadata, :created_at
)`
	row := auditRow{
		ID:             e.ID,
		Type:           string(e.Type),
		ActorUserID:    e.ActorUserID,
		ActorRole:      e.ActorRole,
		IPAddress:      e.IPAddress,
		ConsultationID: e.ConsultationID,
		CollaboratorID: e.CollaboratorID,
		FromStatus:     e.FromStatus,
		ToStatus:       e.ToStatus,
		Hours:          int64(e.Hours),
		Message:        e.Message,
		Metadata:       e.Metadata,
		CreatedAt:      e.CreatedAt.UTC(),
	}
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// AuditEvents lists events for one consultation, oldest first.
func (s *SQL) AuditEvents(ctx context.Context, consultationID string) ([]audit.Event, error) {
	const q = `
SELECT id, type, actor_user_id, actor_role, ip_address, consultation_id, collaborator_id,
       from_status, to_status, hours, message, metadata, created_at
FROM audit_events
WHERE consultation_id = ?
ORDER BY created_at ASC, id ASC
`
	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), consultationID); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	out := make([]audit.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.event())
	}
	return out, nil
}
