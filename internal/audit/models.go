package audit

import (
	"time"

	"audit-portal/internal/ledger"
)

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block critical flows on audit failures.
//
// Storage (Postgres/SQLite): table audit_events, INSERT only.
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress is the resolved client IP when available.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Target identifiers (optional, depending on the event type).
	ConsultationID string `json:"consultation_id,omitempty" db:"consultation_id"`
	CollaboratorID string `json:"collaborator_id,omitempty" db:"collaborator_id"`

	// FromStatus/ToStatus describe a lifecycle or meeting transition.
	FromStatus string `json:"from_status,omitempty" db:"from_status"`
	ToStatus   string `json:"to_status,omitempty" db:"to_status"`

	// Hours is the ledger movement attached to the event, signed. Zero when none.
	Hours ledger.Hours `json:"hours" db:"hours"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeTransition       EventType = "consultation_transition"
	EventTypeMeeting          EventType = "meeting_transition"
	EventTypeLedgerAdjustment EventType = "ledger_adjustment"
	EventTypeAdminAction      EventType = "admin_action"
)
