package reporting

import (
	"time"

	"audit-portal/internal/ledger"
)

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// HoursSummaryRequest requests aggregated ledger movement.
// CollaboratorID is optional; empty means all collaborators.
type HoursSummaryRequest struct {
	CollaboratorID string    `json:"collaborator_id,omitempty"`
	Range          TimeRange `json:"range"`
}

// HoursSummary is derived from immutable ledger entries.
type HoursSummary struct {
	CollaboratorID string `json:"collaborator_id,omitempty"`

	Purchased    ledger.Hours `json:"purchased"`
	AdminCredits ledger.Hours `json:"admin_credits"`

	Consumed         ledger.Hours `json:"consumed"`
	Acceptance       ledger.Hours `json:"acceptance"`
	UrgentAcceptance ledger.Hours `json:"urgent_acceptance"`
	MeetingSurcharge ledger.Hours `json:"meeting_surcharge"`

	// ClampedDebits counts urgent acceptances the balance could not fully cover.
	ClampedDebits int `json:"clamped_debits"`

	Net ledger.Hours `json:"net"`
}

// ConsultationsSummaryRequest ranges over consultation creation time.
type ConsultationsSummaryRequest struct {
	OwnerID string    `json:"owner_id,omitempty"`
	Range   TimeRange `json:"range"`
}

type ConsultationsSummary struct {
	OwnerID string `json:"owner_id,omitempty"`

	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	Urgent   int            `json:"urgent"`

	MeetingsScheduled int `json:"meetings_scheduled"`

	HoursAssigned ledger.Hours `json:"hours_assigned"`
}
