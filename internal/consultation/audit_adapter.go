package consultation

import (
	"context"

	"audit-portal/internal/audit"
)

// AuditAdapter bridges the lifecycle audit hook to the shared audit.Service.
//
// This keeps the lifecycle from depending on audit persistence.
type AuditAdapter struct {
	Audit *audit.Service
}

func (a AuditAdapter) LogTransition(ctx context.Context, e TransitionEvent) error {
	if a.Audit == nil {
		return nil
	}
	typ := audit.EventTypeTransition
	msg := "consultation " + e.To
	if e.From == "" {
		msg = "consultation created"
	}
	if e.Meeting {
		typ = audit.EventTypeMeeting
		msg = "meeting " + e.To
	}
	return a.Audit.Append(ctx, audit.Event{
		Type:           typ,
		ActorUserID:    e.ActorID,
		ActorRole:      e.ActorRole,
		ConsultationID: e.ConsultationID,
		CollaboratorID: e.OwnerID,
		FromStatus:     e.From,
		ToStatus:       e.To,
		Hours:          e.Hours,
		Message:        msg,
		CreatedAt:      e.At,
	})
}
