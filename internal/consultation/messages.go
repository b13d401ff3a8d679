package consultation

import (
	"context"
	"strings"

	"audit-portal/pkg/logger"

	"github.com/google/uuid"
)

// AppendMessage adds to the consultation thread and bumps its updated_at.
// It never touches status or the ledger.
func (s *Service) AppendMessage(ctx context.Context, caller Caller, id, body string, att *Attachment) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" && att == nil {
		return Message{}, ErrInvalidArgument
	}

	var out Message
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := tx.LockConsultation(ctx, id)
		if err != nil {
			return err
		}
		if !canView(caller, c) {
			return ErrUnauthorized
		}

		now := s.now()
		m := Message{
			ID:             uuid.NewString(),
			ConsultationID: c.ID,
			AuthorID:       caller.ID,
			AuthorRole:     caller.Role,
			Body:           body,
			Attachment:     att,
			CreatedAt:      now,
		}
		if err := tx.InsertMessage(ctx, m); err != nil {
			return err
		}
		if err := tx.Touch(ctx, c.ID, now); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return Message{}, err
	}

	logger.From(ctx).Debug("message appended", "consultation_id", id, "message_id", out.ID)
	if s.pub != nil {
		s.pub.Publish(id, EventMessageCreated, out)
	}
	return out, nil
}

// ListMessages returns the thread oldest first.
func (s *Service) ListMessages(ctx context.Context, caller Caller, id string) ([]Message, error) {
	if _, err := s.Get(ctx, caller, id); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, id)
}
