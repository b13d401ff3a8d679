package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"audit-portal/internal/consultation"
	"audit-portal/internal/ledger"
	"audit-portal/internal/quoting"
	"audit-portal/pkg/logger"
	"audit-portal/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed schema_postgres.sql
var schemaPostgres string

//go:embed schema_sqlite.sql
var schemaSQLite string

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == SQLite {
		return "sqlite"
	}
	return "pgx"
}

// forUpdate is empty on SQLite, where the single pooled connection already
// serializes transactions.
func (d Dialect) forUpdate() string {
	if d == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

const maxAttempts = 3

// SQL implements the consultation, ledger, reporting and audit stores on a relational database.
type SQL struct {
	db      *sqlx.DB
	dialect Dialect
}

func NewSQL(db *sqlx.DB, dialect Dialect) *SQL {
	return &SQL{db: db, dialect: dialect}
}

func (s *SQL) DB() *sqlx.DB { return s.db }

// Migrate applies the embedded schema. Statements are idempotent.
func (s *SQL) Migrate(ctx context.Context) error {
	schema := schemaPostgres
	if s.dialect == SQLite {
		schema = schemaSQLite
		if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			return fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// SeedCategories upserts catalog entries.
func (s *SQL) SeedCategories(ctx context.Context, cats []quoting.Category) error {
	const q = `
INSERT INTO categories (id, name, hours, is_custom)
VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, hours = excluded.hours, is_custom = excluded.is_custom
`
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		for _, c := range cats {
			if _, err := tx.ExecContext(ctx, tx.Rebind(q), c.ID, c.Name, int64(c.Hours), c.IsCustom); err != nil {
				return fmt.Errorf("seed category %q: %w", c.ID, err)
			}
		}
		return nil
	})
}

func (s *SQL) ListCategories(ctx context.Context) ([]quoting.Category, error) {
	var rows []categoryRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, hours, is_custom FROM categories ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]quoting.Category, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.category())
	}
	return out, nil
}

// InTx runs fn in a transaction, retrying serialization failures, deadlocks
// and dropped connections. Every transition is a conditional update, so a
// rerun can never apply twice.
func (s *SQL) InTx(ctx context.Context, fn func(ctx context.Context, tx consultation.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
			return fn(ctx, &sqlTx{tx: tx, dialect: s.dialect})
		})
		if err == nil || !retryable(err) || ctx.Err() != nil {
			return err
		}
		logger.From(ctx).Warn("retrying transaction", "attempt", attempt, "err", err)
	}
	return err
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		// extended codes carry the primary code in the low byte
		primary := liteErr.Code() & 0xff
		return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
	}
	return errors.Is(err, driver.ErrBadConn)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE")
		}
	}
	return false
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_CHECK:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "CHECK")
		}
	}
	return false
}

func (s *SQL) Get(ctx context.Context, id string) (consultation.Consultation, error) {
	var r consultationRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(selectConsultation+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return consultation.Consultation{}, consultation.ErrNotFound
	}
	if err != nil {
		return consultation.Consultation{}, fmt.Errorf("get consultation: %w", err)
	}
	return r.consultation(), nil
}

func (s *SQL) List(ctx context.Context, f consultation.Filter) ([]consultation.Consultation, error) {
	q := selectConsultation + ` WHERE 1 = 1`
	var args []any
	if f.OwnerID != "" {
		q += ` AND owner_id = ?`
		args = append(args, f.OwnerID)
	}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	var rows []consultationRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list consultations: %w", err)
	}
	out := make([]consultation.Consultation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.consultation())
	}
	return out, nil
}

func (s *SQL) ListMessages(ctx context.Context, consultationID string) ([]consultation.Message, error) {
	const q = `
SELECT id, consultation_id, author_id, author_role, body,
       attachment_url, attachment_name, attachment_mime, attachment_size, created_at
FROM consultation_messages
WHERE consultation_id = ?
ORDER BY created_at ASC, id ASC
`
	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), consultationID); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]consultation.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.message())
	}
	return out, nil
}

// Ledger returns the ledger.Store view of s.
func (s *SQL) Ledger() ledger.Store { return sqlLedger{s: s} }

type sqlLedger struct{ s *SQL }

func (l sqlLedger) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return l.s.InTx(ctx, func(ctx context.Context, tx consultation.Tx) error { return fn(ctx, tx) })
}

func (l sqlLedger) GetBalance(ctx context.Context, collaboratorID string) (ledger.Balance, error) {
	const q = `SELECT collaborator_id, hours_available, updated_at FROM hour_balances WHERE collaborator_id = ?`
	var r balanceRow
	err := l.s.db.GetContext(ctx, &r, l.s.db.Rebind(q), collaboratorID)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Balance{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	return r.balance(), nil
}

func (l sqlLedger) ListEntries(ctx context.Context, collaboratorID string, limit int) ([]ledger.Entry, error) {
	q := selectEntry + ` WHERE collaborator_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{collaboratorID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	var rows []entryRow
	if err := l.s.db.SelectContext(ctx, &rows, l.s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries(rows), nil
}

// ListLedgerEntries satisfies reporting.Repository.
func (s *SQL) ListLedgerEntries(ctx context.Context, from, to time.Time, collaboratorID string) ([]ledger.Entry, error) {
	q := selectEntry + ` WHERE created_at >= ? AND created_at < ?`
	args := []any{from.UTC(), to.UTC()}
	if collaboratorID != "" {
		q += ` AND collaborator_id = ?`
		args = append(args, collaboratorID)
	}
	q += ` ORDER BY created_at ASC`
	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries(rows), nil
}

func (s *SQL) ListConsultationsCreated(ctx context.Context, from, to time.Time, ownerID string) ([]consultation.Consultation, error) {
	q := selectConsultation + ` WHERE created_at >= ? AND created_at < ?`
	args := []any{from.UTC(), to.UTC()}
	if ownerID != "" {
		q += ` AND owner_id = ?`
		args = append(args, ownerID)
	}
	var rows []consultationRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list consultations created: %w", err)
	}
	out := make([]consultation.Consultation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.consultation())
	}
	return out, nil
}
