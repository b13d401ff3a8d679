package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("balance not found")
	ErrInvalidAmount     = errors.New("amount out of range")
	ErrInsufficientHours = errors.New("insufficient hours")
)

// InsufficientHoursError is returned by Debit when the balance cannot cover the amount.
// errors.Is(err, ErrInsufficientHours) holds for it.
type InsufficientHoursError struct {
	Required  Hours
	Available Hours
}

func (e *InsufficientHoursError) Error() string {
	return fmt.Sprintf("insufficient hours: required %s, available %s", e.Required, e.Available)
}

func (e *InsufficientHoursError) Is(target error) bool { return target == ErrInsufficientHours }

// Tx is the set of ledger primitives a store exposes inside a caller-owned transaction.
// None of them commit.
type Tx interface {
	// LockBalance reads the balance row and holds a row lock on it until the
	// transaction ends. Returns ErrNotFound if the collaborator has no balance.
	LockBalance(ctx context.Context, collaboratorID string) (Balance, error)
	// EnsureBalance creates a zero balance row if absent.
	EnsureBalance(ctx context.Context, collaboratorID string, now time.Time) error
	// ApplyDelta adds delta to the balance row and returns the new projection.
	ApplyDelta(ctx context.Context, collaboratorID string, delta Hours, now time.Time) (Balance, error)
	InsertEntry(ctx context.Context, e Entry) error
	FindEntryByIdempotency(ctx context.Context, collaboratorID, key string) (Entry, bool, error)
}

// Posting describes one balance movement.
type Posting struct {
	CollaboratorID string
	Amount         Hours
	Reason         Reason
	ExternalRef    string
	// IdempotencyKey, when set, makes a repeated posting return the original entry.
	IdempotencyKey string
	At             time.Time
}

// Movement is the outcome of a posting.
type Movement struct {
	// Entry is the zero value when nothing was written.
	Entry   Entry
	Balance Balance
	// Debited is the amount actually taken by a debit.
	Debited Hours
	// Shortfall is the part of a clamped debit the balance could not cover.
	Shortfall Hours
	// Replayed is true when an entry with the same idempotency key already existed.
	Replayed bool
}

// Lock takes the row lock on a collaborator's balance, opening a zero balance if needed.
func Lock(ctx context.Context, tx Tx, collaboratorID string, now time.Time) (Balance, error) {
	b, err := tx.LockBalance(ctx, collaboratorID)
	if errors.Is(err, ErrNotFound) {
		if err := tx.EnsureBalance(ctx, collaboratorID, now); err != nil {
			return Balance{}, err
		}
		b, err = tx.LockBalance(ctx, collaboratorID)
	}
	return b, err
}

// Debit removes p.Amount from the balance or fails with *InsufficientHoursError,
// leaving the balance untouched.
func Debit(ctx context.Context, tx Tx, p Posting) (Movement, error) {
	return post(ctx, tx, p, func(b Balance) (Hours, EntryType, error) {
		if b.Available < p.Amount {
			return 0, "", &InsufficientHoursError{Required: p.Amount, Available: b.Available}
		}
		return p.Amount, EntryTypeDebit, nil
	}, -1)
}

// DebitClamped removes min(p.Amount, available). It never fails for lack of
// hours; the uncovered remainder is reported as Shortfall.
func DebitClamped(ctx context.Context, tx Tx, p Posting) (Movement, error) {
	return post(ctx, tx, p, func(b Balance) (Hours, EntryType, error) {
		if b.Available < p.Amount {
			return b.Available, EntryTypeDebitClamped, nil
		}
		return p.Amount, EntryTypeDebit, nil
	}, -1)
}

// Credit adds p.Amount to the balance.
func Credit(ctx context.Context, tx Tx, p Posting) (Movement, error) {
	return post(ctx, tx, p, func(Balance) (Hours, EntryType, error) {
		return p.Amount, EntryTypeCredit, nil
	}, 1)
}

type decideFunc func(Balance) (Hours, EntryType, error)

func post(ctx context.Context, tx Tx, p Posting, decide decideFunc, sign Hours) (Movement, error) {
	if p.CollaboratorID == "" {
		return Movement{}, ErrNotFound
	}
	if p.Amount < 0 || p.Amount > MaxHours {
		return Movement{}, ErrInvalidAmount
	}
	now := p.At
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	b, err := Lock(ctx, tx, p.CollaboratorID, now)
	if err != nil {
		return Movement{}, err
	}

	if p.IdempotencyKey != "" {
		existing, ok, err := tx.FindEntryByIdempotency(ctx, p.CollaboratorID, p.IdempotencyKey)
		if err != nil {
			return Movement{}, err
		}
		if ok {
			out := Movement{Entry: existing, Balance: b, Replayed: true}
			if existing.Amount < 0 {
				out.Debited = -existing.Amount
			}
			return out, nil
		}
	}

	amount, typ, err := decide(b)
	if err != nil {
		return Movement{}, err
	}

	out := Movement{Balance: b}
	if sign < 0 {
		out.Debited = amount
		out.Shortfall = p.Amount - amount
	}
	if amount == 0 {
		return out, nil
	}

	nb, err := tx.ApplyDelta(ctx, p.CollaboratorID, sign*amount, now)
	if err != nil {
		return Movement{}, err
	}

	e := Entry{
		ID:             uuid.NewString(),
		CollaboratorID: p.CollaboratorID,
		Type:           typ,
		Reason:         p.Reason,
		Amount:         sign * amount,
		BalanceAfter:   nb.Available,
		ExternalRef:    p.ExternalRef,
		CreatedAt:      now,
	}
	if p.IdempotencyKey != "" {
		key := p.IdempotencyKey
		e.IdempotencyKey = &key
	}
	if err := tx.InsertEntry(ctx, e); err != nil {
		return Movement{}, err
	}

	out.Entry = e
	out.Balance = nb
	return out, nil
}
