package audit

import (
	"context"
	"errors"
	"time"

	"audit-portal/internal/ledger"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to collaborators.
// - Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ConsultationID == "" && e.CollaboratorID == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.IPAddress == "" {
		e.IPAddress = ClientIPFromContext(ctx)
	}
	return s.repo.Append(ctx, e)
}

// LogAdminAction records a manual action by an administrator.
func (s *Service) LogAdminAction(ctx context.Context, actorUserID, actorRole, collaboratorID, message, metadata string) error {
	return s.Append(ctx, Event{
		Type:           EventTypeAdminAction,
		ActorUserID:    actorUserID,
		ActorRole:      actorRole,
		CollaboratorID: collaboratorID,
		Message:        message,
		Metadata:       metadata,
	})
}

// LogLedgerAdjustment records a ledger entry posted outside the consultation lifecycle.
// It satisfies ledger.Auditor.
func (s *Service) LogLedgerAdjustment(ctx context.Context, actorUserID, actorRole string, e ledger.Entry) error {
	return s.Append(ctx, Event{
		Type:           EventTypeLedgerAdjustment,
		ActorUserID:    actorUserID,
		ActorRole:      actorRole,
		CollaboratorID: e.CollaboratorID,
		Hours:          e.Amount,
		Message:        string(e.Reason),
		Metadata:       e.ExternalRef,
	})
}
