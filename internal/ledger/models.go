package ledger

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Hours is a quantity of advisory hours in hundredths of an hour.
// Stored and compared as an integer so balances never drift; JSON carries decimal hours.
type Hours int64

// Hour is one whole hour.
const Hour Hours = 100

// MaxHours bounds any single amount, quote or posting. Anything larger is an
// input error, which keeps sums and percentages far from int64 overflow.
const MaxHours Hours = 1_000_000 * Hour

var ErrHoursOutOfRange = errors.New("hours: out of range")

// HoursFromFloat rounds a decimal hour figure to the nearest hundredth.
// f must lie within ±MaxHours; use ParseHours for untrusted input.
func HoursFromFloat(f float64) Hours {
	return Hours(math.Round(f * float64(Hour)))
}

// ParseHours is HoursFromFloat for untrusted input. NaN, infinities and
// figures beyond ±MaxHours are rejected.
func ParseHours(f float64) (Hours, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > MaxHours.Float64() {
		return 0, fmt.Errorf("%w: %v", ErrHoursOutOfRange, f)
	}
	return HoursFromFloat(f), nil
}

func (h Hours) Float64() float64 { return float64(h) / float64(Hour) }

func (h Hours) String() string {
	sign := ""
	v := int64(h)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02dh", sign, v/int64(Hour), v%int64(Hour))
}

func (h Hours) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, h.Float64(), 'f', -1, 64), nil
}

func (h *Hours) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("hours: %w", err)
	}
	v, err := ParseHours(f)
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// Balance is the projection of a collaborator's ledger.
// Invariant: Available equals the sum of the collaborator's entry amounts and is never negative.
type Balance struct {
	CollaboratorID string    `json:"collaborator_id" db:"collaborator_id"`
	Available      Hours     `json:"hours_available" db:"hours_available"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Entry is an immutable append-only ledger row.
// Credits are positive, debits are negative.
type Entry struct {
	ID             string    `json:"id" db:"id"`
	CollaboratorID string    `json:"collaborator_id" db:"collaborator_id"`
	Type           EntryType `json:"type" db:"type"`
	Reason         Reason    `json:"reason" db:"reason"`
	Amount         Hours     `json:"amount" db:"amount"`
	BalanceAfter   Hours     `json:"balance_after" db:"balance_after"`

	// ExternalRef is the consultation id for lifecycle debits and the payment id for purchases.
	ExternalRef string `json:"external_ref,omitempty" db:"external_ref"`

	// IdempotencyKey is unique per collaborator when set.
	IdempotencyKey *string `json:"idempotency_key,omitempty" db:"idempotency_key"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EntryType string

const (
	EntryTypeCredit EntryType = "credit"
	EntryTypeDebit  EntryType = "debit"
	// EntryTypeDebitClamped marks a debit that was cut down to the available balance.
	EntryTypeDebitClamped EntryType = "debit_clamped"
)

type Reason string

const (
	ReasonPurchase         Reason = "purchase"
	ReasonAcceptance       Reason = "acceptance"
	ReasonUrgentAcceptance Reason = "urgent_acceptance"
	ReasonMeetingSurcharge Reason = "meeting_surcharge"
	ReasonAdminAdjustment  Reason = "admin_adjustment"
)
