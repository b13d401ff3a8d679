package ledger

import (
	"context"
	"errors"
	"time"

	"audit-portal/pkg/logger"
)

// Store owns transactions for ledger work that is not part of a consultation transition.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetBalance(ctx context.Context, collaboratorID string) (Balance, error)
	// ListEntries returns the newest entries first.
	ListEntries(ctx context.Context, collaboratorID string, limit int) ([]Entry, error)
}

// Auditor records manual ledger adjustments. Failures are logged, not returned.
type Auditor interface {
	LogLedgerAdjustment(ctx context.Context, actorUserID, actorRole string, e Entry) error
}

// Service provides ledger operations that run in their own transaction.
//
// Invariants:
// - No balance update without an entry
// - Entries are append-only
// - Lifecycle debits never go through Service; they use Debit/DebitClamped on the
//   consultation's transaction.
type Service struct {
	store Store
	audit Auditor
	clock func() time.Time
}

func NewService(store Store, audit Auditor) *Service {
	return &Service{store: store, audit: audit, clock: time.Now}
}

// WithClock replaces the time source used to stamp entries.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

var ErrInvalidArgument = errors.New("invalid argument")

const defaultEntriesLimit = 100

// OpenAccount creates a zero balance for a new collaborator. Safe to call repeatedly.
func (s *Service) OpenAccount(ctx context.Context, collaboratorID string) (Balance, error) {
	if collaboratorID == "" {
		return Balance{}, ErrInvalidArgument
	}
	var out Balance
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := Lock(ctx, tx, collaboratorID, s.clock().UTC())
		out = b
		return err
	})
	return out, err
}

// GetBalance returns a zero balance for collaborators that never held hours.
func (s *Service) GetBalance(ctx context.Context, collaboratorID string) (Balance, error) {
	if collaboratorID == "" {
		return Balance{}, ErrInvalidArgument
	}
	b, err := s.store.GetBalance(ctx, collaboratorID)
	if errors.Is(err, ErrNotFound) {
		return Balance{CollaboratorID: collaboratorID}, nil
	}
	return b, err
}

func (s *Service) Entries(ctx context.Context, collaboratorID string, limit int) ([]Entry, error) {
	if collaboratorID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 || limit > 500 {
		limit = defaultEntriesLimit
	}
	return s.store.ListEntries(ctx, collaboratorID, limit)
}

// CreditPurchase credits purchased hours. idempotencyKey is required so a
// redelivered payment notification credits once.
func (s *Service) CreditPurchase(ctx context.Context, collaboratorID string, hours Hours, externalRef, idempotencyKey string) (Movement, error) {
	if collaboratorID == "" || idempotencyKey == "" || hours <= 0 {
		return Movement{}, ErrInvalidArgument
	}
	var out Movement
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		m, err := Credit(ctx, tx, Posting{
			CollaboratorID: collaboratorID,
			Amount:         hours,
			Reason:         ReasonPurchase,
			ExternalRef:    externalRef,
			IdempotencyKey: idempotencyKey,
			At:             s.clock(),
		})
		out = m
		return err
	})
	if err == nil && !out.Replayed {
		logger.From(ctx).Info("hours purchased",
			"collaborator_id", collaboratorID,
			"hours", hours.Float64(),
			"external_ref", externalRef,
		)
	}
	return out, err
}

type AdminCreditRequest struct {
	Hours          Hours  `json:"hours"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

// AdminCredit posts a manual top-up on behalf of an administrator and audits it.
func (s *Service) AdminCredit(ctx context.Context, collaboratorID, adminUserID, adminRole string, req AdminCreditRequest) (Movement, error) {
	if adminUserID == "" || adminRole == "" {
		return Movement{}, ErrInvalidArgument
	}
	if collaboratorID == "" || req.Reason == "" || req.IdempotencyKey == "" || req.Hours <= 0 {
		return Movement{}, ErrInvalidArgument
	}

	var out Movement
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		m, err := Credit(ctx, tx, Posting{
			CollaboratorID: collaboratorID,
			Amount:         req.Hours,
			Reason:         ReasonAdminAdjustment,
			ExternalRef:    req.Reason,
			IdempotencyKey: "admin:" + req.IdempotencyKey,
			At:             s.clock(),
		})
		out = m
		return err
	})
	if err != nil {
		return Movement{}, err
	}

	if !out.Replayed && s.audit != nil {
		if err := s.audit.LogLedgerAdjustment(ctx, adminUserID, adminRole, out.Entry); err != nil {
			logger.From(ctx).Warn("audit ledger adjustment failed", "err", err, "collaborator_id", collaboratorID)
		}
	}
	return out, nil
}
