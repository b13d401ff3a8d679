package consultation

import (
	"time"

	"audit-portal/internal/ledger"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusQuoted     Status = "QUOTED"
	StatusAccepted   Status = "ACCEPTED"
	StatusRejected   Status = "REJECTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusQuoted, StatusAccepted, StatusRejected,
		StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal statuses accept no further lifecycle action.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted || s == StatusCancelled
}

type MeetingStatus string

const (
	MeetingPending   MeetingStatus = "PENDING"
	MeetingScheduled MeetingStatus = "SCHEDULED"
	MeetingCompleted MeetingStatus = "COMPLETED"
	MeetingCancelled MeetingStatus = "CANCELLED"
)

// Attachment describes a stored file. The core keeps only the descriptor.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Consultation is a unit of paid advisory work.
//
// Invariants:
// - HoursAssigned is nil before QUOTED and never changes once set.
// - Urgent is fixed at creation.
// - Every status change is a conditional update on the previous (status, meeting_status).
type Consultation struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Urgent      bool   `json:"urgent"`

	CategoryID    *string       `json:"category_id,omitempty"`
	HoursAssigned *ledger.Hours `json:"hours_assigned"`
	HoursCustom   *ledger.Hours `json:"hours_custom,omitempty"`

	Status Status `json:"status"`

	MeetingStatus      MeetingStatus `json:"meeting_status"`
	MeetingDate        *time.Time    `json:"meeting_date,omitempty"`
	MeetingLink        *string       `json:"meeting_link,omitempty"`
	MeetingRequestedBy *string       `json:"meeting_requested_by,omitempty"`

	Feedback   *string     `json:"feedback,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	QuotedAt   *time.Time `json:"quoted_at,omitempty"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Message is an append-only entry in a consultation thread.
type Message struct {
	ID             string      `json:"id"`
	ConsultationID string      `json:"consultation_id"`
	AuthorID       string      `json:"author_id"`
	AuthorRole     string      `json:"author_role"`
	Body           string      `json:"body"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Caller is the resolved identity of whoever invokes an operation.
type Caller struct {
	ID   string
	Role string
}

type NewConsultation struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Urgent      bool        `json:"urgent"`
	CategoryID  *string     `json:"category_id"`
	Attachment  *Attachment `json:"attachment"`
}

type QuoteInput struct {
	CategoryID  *string       `json:"category_id"`
	CustomHours *ledger.Hours `json:"custom_hours"`
}

// QuoteResult tells the auditor whether an urgent consultation was auto-accepted
// and how much of the assigned hours the balance actually covered.
type QuoteResult struct {
	Consultation Consultation `json:"consultation"`
	AutoAccepted bool         `json:"auto_accepted"`
	HoursDebited ledger.Hours `json:"hours_debited"`
	// Shortfall is reported only; nothing persists it.
	Shortfall ledger.Hours `json:"shortfall"`
}

type ScheduleInput struct {
	Date time.Time `json:"meeting_date"`
	Link *string   `json:"meeting_link"`
}

type ScheduleResult struct {
	Consultation Consultation `json:"consultation"`
	Surcharge    ledger.Hours `json:"surcharge"`
}

type Filter struct {
	OwnerID string
	Status  Status
	Limit   int
}
