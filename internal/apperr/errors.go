// Package apperr holds error kinds shared by the inventory and order packages.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a request rejected before any mutation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict marks a write that collided with an existing record.
	ErrConflict = errors.New("conflict")
)

// NotFoundError reports a missing order, sub-order, product or seller.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsNotFound reports whether any error in err's chain is a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Invalid wraps ErrInvalidInput with a message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
