package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"audit-portal/internal/consultation"
	"audit-portal/internal/ledger"
	"audit-portal/internal/quoting"

	"github.com/jmoiron/sqlx"
)

// sqlTx implements consultation.Tx (and so ledger.Tx) on one database transaction.
type sqlTx struct {
	tx      *sqlx.Tx
	dialect Dialect
}

func (t *sqlTx) LockConsultation(ctx context.Context, id string) (consultation.Consultation, error) {
	var r consultationRow
	q := selectConsultation + ` WHERE id = ?` + t.dialect.forUpdate()
	err := t.tx.GetContext(ctx, &r, t.tx.Rebind(q), id)
	if errors.Is(err, sql.ErrNoRows) {
		return consultation.Consultation{}, consultation.ErrNotFound
	}
	if err != nil {
		return consultation.Consultation{}, fmt.Errorf("lock consultation: %w", err)
	}
	return r.consultation(), nil
}

func (t *sqlTx) InsertConsultation(ctx context.Context, c consultation.Consultation) error {
	const q = `
INSERT INTO consultations (
  id, owner_id, title, description, urgent, category_id, hours_assigned, hours_custom,
  status, meeting_status, meeting_date, meeting_link, meeting_requested_by, feedback,
  attachment_url, attachment_name, attachment_mime, attachment_size,
  created_at, quoted_at, accepted_at, updated_at
) VALUES (
  :id, :owner_id, :title, :description, :urgent, :category_id, :hours_assigned, :hours_custom,
  :status, :meeting_status, :meeting_date, :meeting_link, :meeting_requested_by, :feedback,
  :attachment_url, :attachment_name, :attachment_mime, :attachment_size,
  :created_at, :quoted_at, :accepted_at, :updated_at
)`
	if _, err := t.tx.NamedExecContext(ctx, q, newConsultationRow(c)); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert consultation: %w", err)
	}
	return nil
}

// CompareAndSwap keeps hours_assigned write-once with COALESCE.
func (t *sqlTx) CompareAndSwap(ctx context.Context, next consultation.Consultation, prevStatus consultation.Status, prevMeeting consultation.MeetingStatus) error {
	const q = `
UPDATE consultations SET
  category_id = ?,
  hours_assigned = COALESCE(hours_assigned, ?),
  hours_custom = ?,
  status = ?,
  meeting_status = ?,
  meeting_date = ?,
  meeting_link = ?,
  meeting_requested_by = ?,
  feedback = ?,
  quoted_at = ?,
  accepted_at = ?,
  updated_at = ?
WHERE id = ? AND status = ? AND meeting_status = ?
`
	r := newConsultationRow(next)
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(q),
		r.CategoryID,
		r.HoursAssigned,
		r.HoursCustom,
		r.Status,
		r.MeetingStatus,
		r.MeetingDate,
		r.MeetingLink,
		r.MeetingRequestedBy,
		r.Feedback,
		r.QuotedAt,
		r.AcceptedAt,
		r.UpdatedAt,
		r.ID,
		string(prevStatus),
		string(prevMeeting),
	)
	if err != nil {
		return fmt.Errorf("update consultation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update consultation: %w", err)
	}
	if n == 0 {
		return consultation.ErrStaleState
	}
	return nil
}

func (t *sqlTx) GetCategory(ctx context.Context, id string) (quoting.Category, error) {
	var r categoryRow
	err := t.tx.GetContext(ctx, &r, t.tx.Rebind(`SELECT id, name, hours, is_custom FROM categories WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return quoting.Category{}, consultation.ErrNotFound
	}
	if err != nil {
		return quoting.Category{}, fmt.Errorf("get category: %w", err)
	}
	return r.category(), nil
}

func (t *sqlTx) InsertMessage(ctx context.Context, m consultation.Message) error {
	const q = `
INSERT INTO consultation_messages (
  id, consultation_id, author_id, author_role, body,
  attachment_url, attachment_name, attachment_mime, attachment_size, created_at
) VALUES (
  :id, :consultation_id, :author_id, :author_role, :body,
  :attachment_url, :attachment_name, :attachment_mime, :attachment_size, :created_at
)`
	if _, err := t.tx.NamedExecContext(ctx, q, newMessageRow(m)); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (t *sqlTx) Touch(ctx context.Context, id string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`UPDATE consultations SET updated_at = ? WHERE id = ?`), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch consultation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return consultation.ErrNotFound
	}
	return nil
}

func (t *sqlTx) LockBalance(ctx context.Context, collaboratorID string) (ledger.Balance, error) {
	q := `SELECT collaborator_id, hours_available, updated_at FROM hour_balances WHERE collaborator_id = ?` + t.dialect.forUpdate()
	var r balanceRow
	err := t.tx.GetContext(ctx, &r, t.tx.Rebind(q), collaboratorID)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Balance{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("lock balance: %w", err)
	}
	return r.balance(), nil
}

func (t *sqlTx) EnsureBalance(ctx context.Context, collaboratorID string, now time.Time) error {
	const q = `
INSERT INTO hour_balances (collaborator_id, hours_available, updated_at)
VALUES (?, 0, ?)
ON CONFLICT (collaborator_id) DO NOTHING
`
	if _, err := t.tx.ExecContext(ctx, t.tx.Rebind(q), collaboratorID, now.UTC()); err != nil {
		return fmt.Errorf("ensure balance: %w", err)
	}
	return nil
}

func (t *sqlTx) ApplyDelta(ctx context.Context, collaboratorID string, delta ledger.Hours, now time.Time) (ledger.Balance, error) {
	const q = `
UPDATE hour_balances
SET hours_available = hours_available + ?, updated_at = ?
WHERE collaborator_id = ?
RETURNING collaborator_id, hours_available, updated_at
`
	var r balanceRow
	err := t.tx.GetContext(ctx, &r, t.tx.Rebind(q), int64(delta), now.UTC(), collaboratorID)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Balance{}, ledger.ErrNotFound
	}
	if err != nil {
		if isCheckViolation(err) {
			return ledger.Balance{}, ErrNegativeBalance
		}
		return ledger.Balance{}, fmt.Errorf("apply balance delta: %w", err)
	}
	return r.balance(), nil
}

func (t *sqlTx) InsertEntry(ctx context.Context, e ledger.Entry) error {
	const q = `
INSERT INTO hour_ledger (
  id, collaborator_id, type, reason, amount, balance_after, external_ref, idempotency_key, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`
	_, err := t.tx.ExecContext(ctx, t.tx.Rebind(q),
		e.ID,
		e.CollaboratorID,
		string(e.Type),
		string(e.Reason),
		int64(e.Amount),
		int64(e.BalanceAfter),
		e.ExternalRef,
		nullString(e.IdempotencyKey),
		e.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (t *sqlTx) FindEntryByIdempotency(ctx context.Context, collaboratorID, key string) (ledger.Entry, bool, error) {
	var r entryRow
	err := t.tx.GetContext(ctx, &r, t.tx.Rebind(selectEntry+` WHERE collaborator_id = ? AND idempotency_key = ? LIMIT 1`), collaboratorID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, false, nil
	}
	if err != nil {
		return ledger.Entry{}, false, fmt.Errorf("find ledger entry: %w", err)
	}
	return r.entry(), true, nil
}
