package repository

import (
	"errors"
	"fmt"
)

// Sentinel kinds for ranked store errors.
var (
	ErrNotFound         = errors.New("item not found")
	ErrInvalidScore     = errors.New("invalid score")
	ErrStoreUnavailable = errors.New("ranked store unavailable")
	ErrUnknownBackend   = errors.New("unknown store backend")
	ErrClosed           = errors.New("ranked store closed")
)

// unavailable wraps a backend failure so callers can match ErrStoreUnavailable
// while keeping the driver error in the chain.
func unavailable(backend, op string, err error) error {
	return fmt.Errorf("%s %s: %w: %w", backend, op, ErrStoreUnavailable, err)
}
