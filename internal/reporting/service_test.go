package reporting

import (
	"context"
	"testing"
	"time"

	"audit-portal/internal/consultation"
	"audit-portal/internal/ledger"
)

func window(now time.Time) TimeRange {
	return TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}
}

func TestReporting_CollaboratorIsolation(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Entries = []ledger.Entry{
		{ID: "l1", CollaboratorID: "a", Type: ledger.EntryTypeCredit, Reason: ledger.ReasonPurchase, Amount: 500, CreatedAt: now},
		{ID: "l2", CollaboratorID: "b", Type: ledger.EntryTypeCredit, Reason: ledger.ReasonPurchase, Amount: 900, CreatedAt: now},
	}
	svc := NewService(repo)

	out, err := svc.HoursSummary(context.Background(), HoursSummaryRequest{CollaboratorID: "a", Range: window(now)})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Purchased != 500 {
		t.Fatalf("expected 500 purchased, got %d", out.Purchased)
	}
}

func TestReporting_HoursSummaryAggregates(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Entries = []ledger.Entry{
		{ID: "l1", CollaboratorID: "a", Type: ledger.EntryTypeCredit, Reason: ledger.ReasonPurchase, Amount: 1000, CreatedAt: now},
		{ID: "l2", CollaboratorID: "a", Type: ledger.EntryTypeDebit, Reason: ledger.ReasonAcceptance, Amount: -300, CreatedAt: now},
		{ID: "l3", CollaboratorID: "a", Type: ledger.EntryTypeDebitClamped, Reason: ledger.ReasonUrgentAcceptance, Amount: -200, CreatedAt: now},
		{ID: "l4", CollaboratorID: "a", Type: ledger.EntryTypeDebit, Reason: ledger.ReasonMeetingSurcharge, Amount: -45, CreatedAt: now},
		{ID: "l5", CollaboratorID: "a", Type: ledger.EntryTypeCredit, Reason: ledger.ReasonAdminAdjustment, Amount: 25, CreatedAt: now},
		{ID: "old", CollaboratorID: "a", Type: ledger.EntryTypeCredit, Reason: ledger.ReasonPurchase, Amount: 9999, CreatedAt: now.Add(-2 * time.Hour)},
	}
	svc := NewService(repo)

	out, err := svc.HoursSummary(context.Background(), HoursSummaryRequest{Range: window(now)})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Consumed != 545 {
		t.Fatalf("expected consumed 545, got %d", out.Consumed)
	}
	if out.Acceptance != 300 || out.UrgentAcceptance != 200 || out.MeetingSurcharge != 45 {
		t.Fatalf("unexpected breakdown: %+v", out)
	}
	if out.ClampedDebits != 1 {
		t.Fatalf("expected 1 clamped debit, got %d", out.ClampedDebits)
	}
	if out.Net != 480 {
		t.Fatalf("expected net 480, got %d", out.Net)
	}
}

func TestReporting_ConsultationsSummary(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	three := 3 * ledger.Hour
	repo.Consultations = []consultation.Consultation{
		{ID: "c1", OwnerID: "a", Status: consultation.StatusAccepted, MeetingStatus: consultation.MeetingScheduled, Urgent: true, HoursAssigned: &three, CreatedAt: now},
		{ID: "c2", OwnerID: "a", Status: consultation.StatusPending, MeetingStatus: consultation.MeetingPending, CreatedAt: now},
		{ID: "c3", OwnerID: "b", Status: consultation.StatusPending, MeetingStatus: consultation.MeetingPending, CreatedAt: now},
	}

	svc := NewService(repo)
	m, err := svc.ConsultationsSummary(context.Background(), ConsultationsSummaryRequest{OwnerID: "a", Range: window(now)})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if m.Total != 2 || m.Urgent != 1 || m.MeetingsScheduled != 1 {
		t.Fatalf("unexpected summary: %+v", m)
	}
	if m.ByStatus["PENDING"] != 1 || m.ByStatus["ACCEPTED"] != 1 {
		t.Fatalf("unexpected status counts: %+v", m.ByStatus)
	}
	if m.HoursAssigned != three {
		t.Fatalf("expected 3h assigned, got %s", m.HoursAssigned)
	}
}

func TestReporting_RejectsBadRange(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	now := time.Now()
	if _, err := svc.HoursSummary(context.Background(), HoursSummaryRequest{Range: TimeRange{From: now, To: now}}); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
