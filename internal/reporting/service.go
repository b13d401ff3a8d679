package reporting

import (
	"context"
	"errors"
	"time"

	"audit-portal/internal/consultation"
	"audit-portal/internal/ledger"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// Implementations should query immutable sources when possible (ledger entries, audit).
// Ranges are half-open: From <= created_at < To.
type Repository interface {
	ListLedgerEntries(ctx context.Context, from, to time.Time, collaboratorID string) ([]ledger.Entry, error)
	ListConsultationsCreated(ctx context.Context, from, to time.Time, ownerID string) ([]consultation.Consultation, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func validRange(r TimeRange) bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

func (s *Service) HoursSummary(ctx context.Context, req HoursSummaryRequest) (HoursSummary, error) {
	if !validRange(req.Range) {
		return HoursSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return HoursSummary{}, errors.New("reporting: repository not configured")
	}

	entries, err := s.repo.ListLedgerEntries(ctx, req.Range.From, req.Range.To, req.CollaboratorID)
	if err != nil {
		return HoursSummary{}, err
	}

	out := HoursSummary{CollaboratorID: req.CollaboratorID}
	for _, e := range entries {
		if e.Amount < 0 {
			out.Consumed += -e.Amount
		}
		switch e.Reason {
		case ledger.ReasonPurchase:
			out.Purchased += e.Amount
		case ledger.ReasonAdminAdjustment:
			out.AdminCredits += e.Amount
		case ledger.ReasonAcceptance:
			out.Acceptance += -e.Amount
		case ledger.ReasonUrgentAcceptance:
			out.UrgentAcceptance += -e.Amount
		case ledger.ReasonMeetingSurcharge:
			out.MeetingSurcharge += -e.Amount
		}
		if e.Type == ledger.EntryTypeDebitClamped {
			out.ClampedDebits++
		}
		out.Net += e.Amount
	}
	return out, nil
}

func (s *Service) ConsultationsSummary(ctx context.Context, req ConsultationsSummaryRequest) (ConsultationsSummary, error) {
	if !validRange(req.Range) {
		return ConsultationsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return ConsultationsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListConsultationsCreated(ctx, req.Range.From, req.Range.To, req.OwnerID)
	if err != nil {
		return ConsultationsSummary{}, err
	}

	out := ConsultationsSummary{OwnerID: req.OwnerID, ByStatus: map[string]int{}}
	for _, c := range rows {
		out.Total++
		out.ByStatus[string(c.Status)]++
		if c.Urgent {
			out.Urgent++
		}
		if c.MeetingStatus != consultation.MeetingPending {
			out.MeetingsScheduled++
		}
		if c.HoursAssigned != nil {
			out.HoursAssigned += *c.HoursAssigned
		}
	}
	return out, nil
}
