package trending

import (
	"errors"
	"fmt"

	"github.com/okian/trending/internal/adapters/repository"
	"github.com/okian/trending/internal/domain/decay"
)

// Error kinds surfaced by the engine. Match with errors.Is.
var (
	ErrInvalidArgument  = decay.ErrInvalidArgument
	ErrStoreUnavailable = repository.ErrStoreUnavailable
	ErrNotFound         = repository.ErrNotFound
)

// OpError records the engine operation and input field that failed.
type OpError struct {
	Op    string
	Field string
	Err   error
}

func (e *OpError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("trending: %s: %s: %v", e.Op, e.Field, e.Err)
	}
	return fmt.Sprintf("trending: %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func invalid(op, field string, err error) error {
	return &OpError{Op: op, Field: field, Err: err}
}

// storeErr classifies a store failure. Not-found and already-classified
// errors pass through; anything else is reported as unavailable.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrStoreUnavailable):
		return &OpError{Op: op, Err: err}
	case errors.Is(err, repository.ErrInvalidScore):
		return &OpError{Op: op, Field: "score", Err: fmt.Errorf("%w: %w", ErrInvalidArgument, err)}
	default:
		return &OpError{Op: op, Err: fmt.Errorf("%w: %w", ErrStoreUnavailable, err)}
	}
}
