package store

import (
	"database/sql"
	"time"

	"audit-portal/internal/consultation"
	"audit-portal/internal/ledger"
	"audit-portal/internal/quoting"
)

const selectConsultation = `
SELECT id, owner_id, title, description, urgent, category_id, hours_assigned, hours_custom,
       status, meeting_status, meeting_date, meeting_link, meeting_requested_by, feedback,
       attachment_url, attachment_name, attachment_mime, attachment_size,
       created_at, quoted_at, accepted_at, updated_at
FROM consultations`

const selectEntry = `
SELECT id, collaborator_id, type, reason, amount, balance_after, external_ref, idempotency_key, created_at
FROM hour_ledger`

type categoryRow struct {
	ID       string `db:"id"`
	Name     string `db:"name"`
	Hours    int64  `db:"hours"`
	IsCustom bool   `db:"is_custom"`
}

func (r categoryRow) category() quoting.Category {
	return quoting.Category{ID: r.ID, Name: r.Name, Hours: ledger.Hours(r.Hours), IsCustom: r.IsCustom}
}

type balanceRow struct {
	CollaboratorID string    `db:"collaborator_id"`
	HoursAvailable int64     `db:"hours_available"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r balanceRow) balance() ledger.Balance {
	return ledger.Balance{CollaboratorID: r.CollaboratorID, Available: ledger.Hours(r.HoursAvailable), UpdatedAt: r.UpdatedAt.UTC()}
}

type entryRow struct {
	ID             string         `db:"id"`
	CollaboratorID string         `db:"collaborator_id"`
	Type           string         `db:"type"`
	Reason         string         `db:"reason"`
	Amount         int64          `db:"amount"`
	BalanceAfter   int64          `db:"balance_after"`
	ExternalRef    string         `db:"external_ref"`
	IdempotencyKey sql.NullString `db:"idempotency_key"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r entryRow) entry() ledger.Entry {
	return ledger.Entry{
		ID:             r.ID,
		CollaboratorID: r.CollaboratorID,
		Type:           ledger.EntryType(r.Type),
		Reason:         ledger.Reason(r.Reason),
		Amount:         ledger.Hours(r.Amount),
		BalanceAfter:   ledger.Hours(r.BalanceAfter),
		ExternalRef:    r.ExternalRef,
		IdempotencyKey: stringPtr(r.IdempotencyKey),
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

func entries(rows []entryRow) []ledger.Entry {
	out := make([]ledger.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry())
	}
	return out
}

// attachmentCols flattens an optional attachment descriptor.
type attachmentCols struct {
	AttachmentURL  sql.NullString `db:"attachment_url"`
	AttachmentName sql.NullString `db:"attachment_name"`
	AttachmentMime sql.NullString `db:"attachment_mime"`
	AttachmentSize sql.NullInt64  `db:"attachment_size"`
}

func newAttachmentCols(a *consultation.Attachment) attachmentCols {
	if a == nil {
		return attachmentCols{}
	}
	return attachmentCols{
		AttachmentURL:  sql.NullString{String: a.URL, Valid: true},
		AttachmentName: sql.NullString{String: a.Name, Valid: true},
		AttachmentMime: sql.NullString{String: a.MimeType, Valid: true},
		AttachmentSize: sql.NullInt64{Int64: a.Size, Valid: true},
	}
}

func (c attachmentCols) attachment() *consultation.Attachment {
	if !c.AttachmentURL.Valid {
		return nil
	}
	return &consultation.Attachment{
		URL:      c.AttachmentURL.String,
		Name:     c.AttachmentName.String,
		MimeType: c.AttachmentMime.String,
		Size:     c.AttachmentSize.Int64,
	}
}

type consultationRow struct {
	ID                 string         `db:"id"`
	OwnerID            string         `db:"owner_id"`
	Title              string         `db:"title"`
	Description        string         `db:"description"`
	Urgent             bool           `db:"urgent"`
	CategoryID         sql.NullString `db:"category_id"`
	HoursAssigned      sql.NullInt64  `db:"hours_assigned"`
	HoursCustom        sql.NullInt64  `db:"hours_custom"`
	Status             string         `db:"status"`
	MeetingStatus      string         `db:"meeting_status"`
	MeetingDate        sql.NullTime   `db:"meeting_date"`
	MeetingLink        sql.NullString `db:"meeting_link"`
	MeetingRequestedBy sql.NullString `db:"meeting_requested_by"`
	Feedback           sql.NullString `db:"feedback"`
	attachmentCols
	CreatedAt  time.Time    `db:"created_at"`
	QuotedAt   sql.NullTime `db:"quoted_at"`
	AcceptedAt sql.NullTime `db:"accepted_at"`
	UpdatedAt  time.Time    `db:"updated_at"`
}

func newConsultationRow(c consultation.Consultation) consultationRow {
	return consultationRow{
		ID:                 c.ID,
		OwnerID:            c.OwnerID,
		Title:              c.Title,
		Description:        c.Description,
		Urgent:             c.Urgent,
		CategoryID:         nullString(c.CategoryID),
		HoursAssigned:      nullHours(c.HoursAssigned),
		HoursCustom:        nullHours(c.HoursCustom),
		Status:             string(c.Status),
		MeetingStatus:      string(c.MeetingStatus),
		MeetingDate:        nullTime(c.MeetingDate),
		MeetingLink:        nullString(c.MeetingLink),
		MeetingRequestedBy: nullString(c.MeetingRequestedBy),
		Feedback:           nullString(c.Feedback),
		attachmentCols:     newAttachmentCols(c.Attachment),
		CreatedAt:          c.CreatedAt.UTC(),
		QuotedAt:           nullTime(c.QuotedAt),
		AcceptedAt:         nullTime(c.AcceptedAt),
		UpdatedAt:          c.UpdatedAt.UTC(),
	}
}

func (r consultationRow) consultation() consultation.Consultation {
	return consultation.Consultation{
		ID:                 r.ID,
		OwnerID:            r.OwnerID,
		Title:              r.Title,
		Description:        r.Description,
		Urgent:             r.Urgent,
		CategoryID:         stringPtr(r.CategoryID),
		HoursAssigned:      hoursPtr(r.HoursAssigned),
		HoursCustom:        hoursPtr(r.HoursCustom),
		Status:             consultation.Status(r.Status),
		MeetingStatus:      consultation.MeetingStatus(r.MeetingStatus),
		MeetingDate:        timePtr(r.MeetingDate),
		MeetingLink:        stringPtr(r.MeetingLink),
		MeetingRequestedBy: stringPtr(r.MeetingRequestedBy),
		Feedback:           stringPtr(r.Feedback),
		Attachment:         r.attachment(),
		CreatedAt:          r.CreatedAt.UTC(),
		QuotedAt:           timePtr(r.QuotedAt),
		AcceptedAt:         timePtr(r.AcceptedAt),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
}

type messageRow struct {
	ID             string `db:"id"`
	ConsultationID string `db:"consultation_id"`
	AuthorID       string `db:"author_id"`
	AuthorRole     string `db:"author_role"`
	Body           string `db:"body"`
	attachmentCols
	CreatedAt time.Time `db:"created_at"`
}

func newMessageRow(m consultation.Message) messageRow {
	return messageRow{
		ID:             m.ID,
		ConsultationID: m.ConsultationID,
		AuthorID:       m.AuthorID,
		AuthorRole:     m.AuthorRole,
		Body:           m.Body,
		attachmentCols: newAttachmentCols(m.Attachment),
		CreatedAt:      m.CreatedAt.UTC(),
	}
}

func (r messageRow) message() consultation.Message {
	return consultation.Message{
		ID:             r.ID,
		ConsultationID: r.ConsultationID,
		AuthorID:       r.AuthorID,
		AuthorRole:     r.AuthorRole,
		Body:           r.Body,
		Attachment:     r.attachment(),
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

func nullHours(p *ledger.Hours) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func hoursPtr(n sql.NullInt64) *ledger.Hours {
	if !n.Valid {
		return nil
	}
	h := ledger.Hours(n.Int64)
	return &h
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: p.UTC(), Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}
