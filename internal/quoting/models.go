package quoting

import "audit-portal/internal/ledger"

// Category is an immutable catalog entry.
// A custom category is a placeholder whose cost is given at quote time; Hours is then its fallback.
type Category struct {
	ID       string       `json:"id" db:"id" yaml:"id"`
	Name     string       `json:"name" db:"name" yaml:"name"`
	Hours    ledger.Hours `json:"hours" db:"hours" yaml:"-"`
	IsCustom bool         `json:"is_custom" db:"is_custom" yaml:"custom"`
}
