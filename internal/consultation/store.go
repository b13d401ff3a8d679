package consultation

import (
	"context"
	"time"

	"audit-portal/internal/ledger"
	"audit-portal/internal/quoting"
)

// Tx is the unit of work a store hands to the lifecycle. Ledger primitives run
// on the same transaction so a transition and the debit it funds commit together.
//
// Lock order is consultation row first, then the owner's balance row.
type Tx interface {
	ledger.Tx

	// LockConsultation reads the row and locks it until the transaction ends.
	LockConsultation(ctx context.Context, id string) (Consultation, error)
	InsertConsultation(ctx context.Context, c Consultation) error
	// CompareAndSwap stores next only if the row still has prevStatus and
	// prevMeeting; otherwise it returns ErrStaleState.
	CompareAndSwap(ctx context.Context, next Consultation, prevStatus Status, prevMeeting MeetingStatus) error
	GetCategory(ctx context.Context, id string) (quoting.Category, error)
	InsertMessage(ctx context.Context, m Message) error
	// Touch bumps updated_at.
	Touch(ctx context.Context, id string, at time.Time) error
}

type Store interface {
	// InTx runs fn in one transaction. fn may be run again on transient failures.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Get(ctx context.Context, id string) (Consultation, error)
	List(ctx context.Context, f Filter) ([]Consultation, error)
	// ListMessages returns the thread oldest first.
	ListMessages(ctx context.Context, consultationID string) ([]Message, error)
}
