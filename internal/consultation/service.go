package consultation

import (
	"context"
	"errors"
	"strings"
	"time"

	"audit-portal/internal/ledger"
	"audit-portal/internal/quoting"
	"audit-portal/internal/rbac"
	"audit-portal/pkg/logger"

	"github.com/google/uuid"
)

// AuditLogger receives committed transitions. Failures are logged, never returned.
type AuditLogger interface {
	LogTransition(ctx context.Context, e TransitionEvent) error
}

// Publisher fans committed changes out to live subscribers of a consultation.
type Publisher interface {
	Publish(topic, event string, data any)
}

// TransitionEvent describes one committed change of status or meeting state.
type TransitionEvent struct {
	ConsultationID string
	OwnerID        string
	ActorID        string
	ActorRole      string
	Meeting        bool
	From           string
	To             string
	// Hours is the signed ledger movement committed with the transition.
	Hours ledger.Hours
	At    time.Time
}

const (
	EventConsultationUpdated = "consultation.updated"
	EventMessageCreated      = "message.created"
)

type Options struct {
	// SurchargePercent defaults to quoting.DefaultSurchargePercent when zero.
	SurchargePercent int64
	Audit            AuditLogger
	Publisher        Publisher
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service is the lifecycle state machine.
//
// Every operation follows the same shape inside one store transaction:
// lock the consultation row, check caller and transition table, move hours on
// the owner's locked balance if the transition is funded, then conditionally
// update the row on its previous state.
type Service struct {
	store     Store
	surcharge int64
	audit     AuditLogger
	pub       Publisher
	clock     func() time.Time
}

func NewService(store Store, opts Options) *Service {
	pct := opts.SurchargePercent
	if pct == 0 {
		pct = quoting.DefaultSurchargePercent
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:     store,
		surcharge: pct,
		audit:     opts.Audit,
		pub:       opts.Publisher,
		clock:     clock,
	}
}

func (s *Service) now() time.Time { return s.clock().UTC() }

func isOwner(caller Caller, c Consultation) bool {
	return caller.ID != "" && caller.ID == c.OwnerID
}

func canView(caller Caller, c Consultation) bool {
	return isOwner(caller, c) || rbac.IsStaff(caller.Role)
}

func acceptanceKey(id string) string { return "consultation:" + id + ":acceptance" }
func surchargeKey(id string) string  { return "consultation:" + id + ":meeting_surcharge" }

// Create opens a PENDING consultation owned by the caller.
func (s *Service) Create(ctx context.Context, caller Caller, in NewConsultation) (Consultation, error) {
	if !rbac.IsCollaborator(caller.Role) || caller.ID == "" {
		return Consultation{}, ErrUnauthorized
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Consultation{}, ErrInvalidArgument
	}

	now := s.now()
	c := Consultation{
		ID:            uuid.NewString(),
		OwnerID:       caller.ID,
		Title:         title,
		Description:   strings.TrimSpace(in.Description),
		Urgent:        in.Urgent,
		CategoryID:    in.CategoryID,
		Status:        StatusPending,
		MeetingStatus: MeetingPending,
		Attachment:    in.Attachment,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if c.CategoryID != nil {
			if _, err := tx.GetCategory(ctx, *c.CategoryID); err != nil {
				return err
			}
		}
		if err := tx.EnsureBalance(ctx, caller.ID, now); err != nil {
			return err
		}
		return tx.InsertConsultation(ctx, c)
	})
	if err != nil {
		return Consultation{}, err
	}

	logger.From(ctx).Info("consultation created", "consultation_id", c.ID, "owner_id", c.OwnerID, "urgent", c.Urgent)
	s.record(ctx, caller, c, TransitionEvent{To: string(StatusPending)})
	return c, nil
}

func (s *Service) Get(ctx context.Context, caller Caller, id string) (Consultation, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return Consultation{}, err
	}
	if !canView(caller, c) {
		return Consultation{}, ErrUnauthorized
	}
	return c, nil
}

// List returns consultations newest first. Collaborators only see their own.
func (s *Service) List(ctx context.Context, caller Caller, f Filter) ([]Consultation, error) {
	switch {
	case rbac.IsStaff(caller.Role):
	case rbac.IsCollaborator(caller.Role):
		f.OwnerID = caller.ID
	default:
		return nil, ErrUnauthorized
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrInvalidArgument
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	return s.store.List(ctx, f)
}

// Quote assigns hours to a PENDING consultation. Urgent consultations are
// accepted in the same transaction with a clamped debit: they always start,
// and whatever the balance could not cover is reported as Shortfall.
func (s *Service) Quote(ctx context.Context, caller Caller, id string, in QuoteInput) (QuoteResult, error) {
	if !rbac.IsStaff(caller.Role) {
		return QuoteResult{}, ErrUnauthorized
	}

	var out QuoteResult
	var before Status
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		out = QuoteResult{}
		c, err := tx.LockConsultation(ctx, id)
		if err != nil {
			return err
		}
		before = c.Status
		next, err := Next(c.Status, ActionQuote)
		if err != nil {
			return err
		}

		var cat *quoting.Category
		if in.CategoryID != nil {
			found, err := tx.GetCategory(ctx, *in.CategoryID)
			if err != nil {
				return err
			}
			cat = &found
		}
		hours, err := quoting.Resolve(cat, in.CustomHours)
		if err != nil {
			return err
		}

		now := s.now()
		prevStatus, prevMeeting := c.Status, c.MeetingStatus
		c.Status = next
		c.HoursAssigned = &hours
		// the override is kept only when it decided the quote
		c.HoursCustom = nil
		if in.CustomHours != nil && (cat == nil || cat.IsCustom) {
			c.HoursCustom = in.CustomHours
		}
		if in.CategoryID != nil {
			c.CategoryID = in.CategoryID
		}
		c.QuotedAt = &now
		c.UpdatedAt = now
		if err := tx.CompareAndSwap(ctx, c, prevStatus, prevMeeting); err != nil {
			return err
		}

		if c.Urgent {
			accepted, err := Next(c.Status, ActionAccept)
			if err != nil {
				return err
			}
			m, err := ledger.DebitClamped(ctx, tx, ledger.Posting{
				CollaboratorID: c.OwnerID,
				Amount:         hours,
				Reason:         ledger.ReasonUrgentAcceptance,
				ExternalRef:    c.ID,
				IdempotencyKey: acceptanceKey(c.ID),
				At:             now,
			})
			if err != nil {
				return err
			}
			prevStatus = c.Status
			c.Status = accepted
			c.AcceptedAt = &now
			if err := tx.CompareAndSwap(ctx, c, prevStatus, prevMeeting); err != nil {
				return err
			}
			out.AutoAccepted = true
			out.HoursDebited = m.Debited
			out.Shortfall = m.Shortfall
		}

		out.Consultation = c
		return nil
	})
	if err != nil {
		return QuoteResult{}, err
	}

	c := out.Consultation
	s.record(ctx, caller, c, TransitionEvent{From: string(before), To: string(StatusQuoted)})
	if out.AutoAccepted {
		if out.Shortfall > 0 {
			logger.From(ctx).Warn("urgent consultation accepted underfunded",
				"consultation_id", c.ID,
				"owner_id", c.OwnerID,
				"hours_assigned", c.HoursAssigned.Float64(),
				"shortfall", out.Shortfall.Float64(),
			)
		}
		s.record(ctx, caller, c, TransitionEvent{From: string(StatusQuoted), To: string(StatusAccepted), Hours: -out.HoursDebited})
	}
	s.publish(c)
	return out, nil
}

// Accept funds a QUOTED consultation from the owner's balance.
// On *ledger.InsufficientHoursError nothing changes.
func (s *Service) Accept(ctx context.Context, caller Caller, id string) (Consultation, error) {
	var debited ledger.Hours
	return s.transition(ctx, caller, id, ActionAccept, ownerOnly, func(ctx context.Context, tx Tx, c *Consultation, now time.Time) error {
		var assigned ledger.Hours
		if c.HoursAssigned != nil {
			assigned = *c.HoursAssigned
		}
		m, err := ledger.Debit(ctx, tx, ledger.Posting{
			CollaboratorID: c.OwnerID,
			Amount:         assigned,
			Reason:         ledger.ReasonAcceptance,
			ExternalRef:    c.ID,
			IdempotencyKey: acceptanceKey(c.ID),
			At:             now,
		})
		if err != nil {
			return err
		}
		debited = m.Debited
		c.AcceptedAt = &now
		return nil
	}, func() ledger.Hours { return -debited })
}

// Reject closes a QUOTED consultation. The quote never debited, so nothing is refunded.
func (s *Service) Reject(ctx context.Context, caller Caller, id string) (Consultation, error) {
	return s.transition(ctx, caller, id, ActionReject, ownerOnly, nil, nil)
}

func (s *Service) Start(ctx context.Context, caller Caller, id string) (Consultation, error) {
	return s.transition(ctx, caller, id, ActionStart, staffOnly, nil, nil)
}

// Complete is a no-op success on an already COMPLETED consultation.
func (s *Service) Complete(ctx context.Context, caller Caller, id string) (Consultation, error) {
	c, err := s.transition(ctx, caller, id, ActionComplete, staffOnly, nil, nil)
	if errors.Is(err, ErrInvalidTransition) {
		if cur, gerr := s.store.Get(ctx, id); gerr == nil && cur.Status == StatusCompleted {
			return cur, nil
		}
	}
	return c, err
}

// Cancel withdraws a consultation before it is funded.
func (s *Service) Cancel(ctx context.Context, caller Caller, id string) (Consultation, error) {
	return s.transition(ctx, caller, id, ActionCancel, ownerOrAdmin, nil, nil)
}

type guard func(Caller, Consultation) bool

func ownerOnly(caller Caller, c Consultation) bool { return isOwner(caller, c) }
func staffOnly(caller Caller, _ Consultation) bool { return rbac.IsStaff(caller.Role) }
func ownerOrAdmin(caller Caller, c Consultation) bool {
	return isOwner(caller, c) || rbac.IsAdmin(caller.Role)
}
func ownerOrStaff(caller Caller, c Consultation) bool { return canView(caller, c) }

type mutateFunc func(ctx context.Context, tx Tx, c *Consultation, now time.Time) error

// transition runs a status change from the table, with an optional funded step.
func (s *Service) transition(ctx context.Context, caller Caller, id string, a Action, allowed guard, mutate mutateFunc, moved func() ledger.Hours) (Consultation, error) {
	var out Consultation
	var before Status
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := tx.LockConsultation(ctx, id)
		if err != nil {
			return err
		}
		if !allowed(caller, c) {
			return ErrUnauthorized
		}
		before = c.Status
		next, err := Next(c.Status, a)
		if err != nil {
			return err
		}

		now := s.now()
		prevStatus, prevMeeting := c.Status, c.MeetingStatus
		if mutate != nil {
			if err := mutate(ctx, tx, &c, now); err != nil {
				return err
			}
		}
		c.Status = next
		c.UpdatedAt = now
		if err := tx.CompareAndSwap(ctx, c, prevStatus, prevMeeting); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return Consultation{}, err
	}

	ev := TransitionEvent{From: string(before), To: string(out.Status)}
	if moved != nil {
		ev.Hours = moved()
	}
	s.record(ctx, caller, out, ev)
	s.publish(out)
	return out, nil
}

// ScheduleMeeting sets the meeting date. The first time a meeting leaves
// PENDING the owner is charged the surcharge with a blocking debit;
// reschedules are free.
func (s *Service) ScheduleMeeting(ctx context.Context, caller Caller, id string, in ScheduleInput) (ScheduleResult, error) {
	if in.Date.IsZero() {
		return ScheduleResult{}, ErrInvalidArgument
	}
	if in.Link != nil {
		link := strings.TrimSpace(*in.Link)
		if link == "" {
			in.Link = nil
		} else {
			in.Link = &link
		}
	}

	var surcharge ledger.Hours
	c, err := s.meeting(ctx, caller, id, MeetingActionSchedule, ownerOrStaff, func(ctx context.Context, tx Tx, c *Consultation, now time.Time) error {
		surcharge = 0
		if c.MeetingStatus == MeetingPending {
			var assigned ledger.Hours
			if c.HoursAssigned != nil {
				assigned = *c.HoursAssigned
			}
			m, err := ledger.Debit(ctx, tx, ledger.Posting{
				CollaboratorID: c.OwnerID,
				Amount:         quoting.MeetingSurcharge(assigned, s.surcharge),
				Reason:         ledger.ReasonMeetingSurcharge,
				ExternalRef:    c.ID,
				IdempotencyKey: surchargeKey(c.ID),
				At:             now,
			})
			if err != nil {
				return err
			}
			surcharge = m.Debited
		}
		date := in.Date.UTC()
		role := caller.Role
		c.MeetingDate = &date
		if in.Link != nil {
			c.MeetingLink = in.Link
		}
		c.MeetingRequestedBy = &role
		return nil
	}, func() ledger.Hours { return -surcharge })
	if err != nil {
		return ScheduleResult{}, err
	}
	return ScheduleResult{Consultation: c, Surcharge: surcharge}, nil
}

// MeetingWidgetScheduled handles the scheduling widget callback. The callback
// carries no reliable payload, so the meeting date is the server clock.
func (s *Service) MeetingWidgetScheduled(ctx context.Context, caller Caller, id string) (ScheduleResult, error) {
	return s.ScheduleMeeting(ctx, caller, id, ScheduleInput{Date: s.now()})
}

func (s *Service) CompleteMeeting(ctx context.Context, caller Caller, id string) (Consultation, error) {
	return s.meeting(ctx, caller, id, MeetingActionComplete, staffOnly, nil, nil)
}

// CancelMeeting does not refund the surcharge.
func (s *Service) CancelMeeting(ctx context.Context, caller Caller, id string) (Consultation, error) {
	return s.meeting(ctx, caller, id, MeetingActionCancel, ownerOrStaff, nil, nil)
}

func (s *Service) meeting(ctx context.Context, caller Caller, id string, a MeetingAction, allowed guard, mutate mutateFunc, moved func() ledger.Hours) (Consultation, error) {
	var out Consultation
	var before MeetingStatus
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := tx.LockConsultation(ctx, id)
		if err != nil {
			return err
		}
		if !allowed(caller, c) {
			return ErrUnauthorized
		}
		if !meetingOpen(c.Status) {
			return ErrInvalidTransition
		}
		before = c.MeetingStatus
		next, err := NextMeeting(c.MeetingStatus, a)
		if err != nil {
			return err
		}

		now := s.now()
		prevStatus, prevMeeting := c.Status, c.MeetingStatus
		if mutate != nil {
			if err := mutate(ctx, tx, &c, now); err != nil {
				return err
			}
		}
		c.MeetingStatus = next
		c.UpdatedAt = now
		if err := tx.CompareAndSwap(ctx, c, prevStatus, prevMeeting); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return Consultation{}, err
	}

	ev := TransitionEvent{Meeting: true, From: string(before), To: string(out.MeetingStatus)}
	if moved != nil {
		ev.Hours = moved()
	}
	s.record(ctx, caller, out, ev)
	s.publish(out)
	return out, nil
}

// SetFeedback stores the auditor's feedback text. It does not change status.
func (s *Service) SetFeedback(ctx context.Context, caller Caller, id, text string) (Consultation, error) {
	if !rbac.IsStaff(caller.Role) {
		return Consultation{}, ErrUnauthorized
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Consultation{}, ErrInvalidArgument
	}

	var out Consultation
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := tx.LockConsultation(ctx, id)
		if err != nil {
			return err
		}
		if !feedbackOpen(c.Status) {
			return ErrInvalidTransition
		}
		c.Feedback = &text
		c.UpdatedAt = s.now()
		if err := tx.CompareAndSwap(ctx, c, c.Status, c.MeetingStatus); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return Consultation{}, err
	}
	s.publish(out)
	return out, nil
}

func (s *Service) record(ctx context.Context, caller Caller, c Consultation, ev TransitionEvent) {
	if s.audit == nil {
		return
	}
	ev.ConsultationID = c.ID
	ev.OwnerID = c.OwnerID
	ev.ActorID = caller.ID
	ev.ActorRole = caller.Role
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	if err := s.audit.LogTransition(ctx, ev); err != nil {
		logger.From(ctx).Warn("audit transition failed", "err", err, "consultation_id", c.ID)
	}
}

func (s *Service) publish(c Consultation) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(c.ID, EventConsultationUpdated, c)
}

// IsInsufficientHours extracts the ledger shortfall from err.
func IsInsufficientHours(err error) (*ledger.InsufficientHoursError, bool) {
	var ih *ledger.InsufficientHoursError
	if errors.As(err, &ih) {
		return ih, true
	}
	return nil, false
}
