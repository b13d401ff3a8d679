package consultation

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// ErrStaleState is returned by Tx.CompareAndSwap when the row no longer holds
// the expected pre-state. It matches ErrInvalidTransition.
var ErrStaleState = fmt.Errorf("%w: state changed concurrently", ErrInvalidTransition)
