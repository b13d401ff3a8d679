package payments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"audit-portal/internal/ledger"
	"audit-portal/pkg/logger"
	"audit-portal/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Crediter is the ledger entry point for purchased hours.
type Crediter interface {
	CreditPurchase(ctx context.Context, collaboratorID string, hours ledger.Hours, externalRef, idempotencyKey string) (ledger.Movement, error)
}

// Deduper drops notification bursts for a payment already being handled.
// Claim returns ok=false when another handler holds the key.
type Deduper interface {
	Claim(ctx context.Context, key string) (release func(), ok bool, err error)
}

type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := utils.ClaimOnce(ctx, d.rdb, "payments:claim:"+key, token, d.ttl)
	if err != nil || !ok {
		return func() {}, ok, err
	}
	release := func() {
		// detached so a cancelled request still frees the key
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := utils.ReleaseClaim(rctx, d.rdb, "payments:claim:"+key, token); err != nil {
			logger.From(ctx).Warn("release payment claim failed", "err", err, "key", key)
		}
	}
	return release, true, nil
}

type Options struct {
	HourPrice float64
	Currency  string
	// Dedupe is optional; the ledger idempotency key alone keeps credits exact.
	Dedupe Deduper
}

// Service sells hour packages and turns approved payments into ledger credits.
// It never runs inside a consultation transaction.
type Service struct {
	gateway Gateway
	ledger  Crediter
	opts    Options
}

func NewService(gateway Gateway, ledger Crediter, opts Options) *Service {
	if opts.Currency == "" {
		opts.Currency = "BRL"
	}
	return &Service{gateway: gateway, ledger: ledger, opts: opts}
}

// MaxCheckoutHours bounds a single purchase.
const MaxCheckoutHours = 1000 * ledger.Hour

func (s *Service) StartCheckout(ctx context.Context, collaboratorID string, hours ledger.Hours) (Checkout, error) {
	if collaboratorID == "" || hours <= 0 || hours > MaxCheckoutHours {
		return Checkout{}, ErrInvalidCheckout
	}
	if s.gateway == nil {
		return Checkout{}, ErrGatewayNotConfigured
	}
	return s.gateway.CreateCheckout(ctx, CheckoutRequest{
		CollaboratorID:    collaboratorID,
		Hours:             hours,
		UnitPrice:         s.opts.HourPrice,
		Currency:          s.opts.Currency,
		ExternalReference: Reference(collaboratorID, hours),
	})
}

// NotificationResult reports what a webhook delivery did.
type NotificationResult struct {
	PaymentID string       `json:"payment_id"`
	Status    string       `json:"status"`
	Credited  ledger.Hours `json:"credited"`
	// Duplicate is true when the delivery was dropped or replayed an earlier credit.
	Duplicate bool `json:"duplicate"`
}

// HandleNotification fetches the payment and credits its hours once it is approved.
func (s *Service) HandleNotification(ctx context.Context, paymentID string) (NotificationResult, error) {
	log := logger.From(ctx)
	out := NotificationResult{PaymentID: paymentID}
	if paymentID == "" {
		return out, ErrPaymentNotFound
	}
	if s.gateway == nil {
		return out, ErrGatewayNotConfigured
	}

	if s.opts.Dedupe != nil {
		release, ok, err := s.opts.Dedupe.Claim(ctx, paymentID)
		if err != nil {
			// fall through; the ledger key still prevents a double credit
			log.Warn("payment claim failed", "err", err, "payment_id", paymentID)
		} else if !ok {
			out.Duplicate = true
			return out, nil
		} else {
			defer release()
		}
	}

	p, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return out, err
	}
	out.Status = p.Status
	if p.Status != StatusApproved {
		log.Info("payment not approved", "payment_id", paymentID, "status", p.Status)
		return out, nil
	}

	collaboratorID, hours, err := ParseReference(p.ExternalReference)
	if err != nil {
		return out, err
	}
	if err := s.checkAmount(p, hours); err != nil {
		log.Warn("payment amount mismatch", "payment_id", p.ID, "collaborator_id", collaboratorID, "hours", hours, "amount", p.Amount)
		return out, err
	}
	m, err := s.ledger.CreditPurchase(ctx, collaboratorID, hours, p.ID, "mp:"+p.ID)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidArgument) {
			return out, ErrInvalidReference
		}
		return out, err
	}
	out.Credited = m.Entry.Amount
	out.Duplicate = m.Replayed
	return out, nil
}

// amountTolerance absorbs provider rounding to cents.
const amountTolerance = 0.01

// checkAmount refuses a payment whose total is not hours times the hour price.
// A zero HourPrice disables the check.
func (s *Service) checkAmount(p Payment, hours ledger.Hours) error {
	if s.opts.HourPrice <= 0 {
		return nil
	}
	want := s.opts.HourPrice * hours.Float64()
	if math.Abs(p.Amount-want) > amountTolerance {
		return fmt.Errorf("%w: paid %.2f, expected %.2f", ErrAmountMismatch, p.Amount, want)
	}
	return nil
}
