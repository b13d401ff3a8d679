package store

import "errors"

var (
	// ErrDuplicate is a unique-constraint violation.
	ErrDuplicate = errors.New("store: duplicate key")
	// ErrNegativeBalance is the balance CHECK constraint firing. The ledger
	// checks before writing, so seeing it means a caller skipped the lock.
	ErrNegativeBalance = errors.New("store: balance would go negative")
)
