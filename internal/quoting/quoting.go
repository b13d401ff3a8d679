package quoting

import (
	"errors"

	"audit-portal/internal/ledger"
)

// ErrInvalidQuoteInput is returned when neither the category nor the custom figure yields hours.
var ErrInvalidQuoteInput = errors.New("invalid quote input")

// DefaultSurchargePercent is the one-time meeting surcharge.
const DefaultSurchargePercent int64 = 15

// Resolve computes hours_assigned.
//
// Precedence:
// - fixed category: its hours, custom ignored
// - custom category: custom when given, else the category's own hours
// - no category: custom is required
//
// Negative figures are rejected. Zero is a valid quote.
func Resolve(category *Category, custom *ledger.Hours) (ledger.Hours, error) {
	if custom != nil && (*custom < 0 || *custom > ledger.MaxHours) {
		return 0, ErrInvalidQuoteInput
	}
	switch {
	case category != nil && !category.IsCustom:
		if category.Hours < 0 {
			return 0, ErrInvalidQuoteInput
		}
		return category.Hours, nil
	case category != nil:
		if custom != nil {
			return *custom, nil
		}
		if category.Hours <= 0 {
			return 0, ErrInvalidQuoteInput
		}
		return category.Hours, nil
	case custom != nil:
		return *custom, nil
	default:
		return 0, ErrInvalidQuoteInput
	}
}

// MeetingSurcharge is percent of assigned, rounded up to the next hundredth of an hour.
func MeetingSurcharge(assigned ledger.Hours, percent int64) ledger.Hours {
	if assigned <= 0 || percent <= 0 {
		return 0
	}
	// split whole and fractional hundreds so the product cannot overflow
	a := int64(assigned)
	return ledger.Hours(a/100*percent + (a%100*percent+99)/100)
}
