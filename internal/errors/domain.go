package errors

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors shared by the ledger, its stores and the transports in front of them.
var (
	// ErrUnauthenticated is returned when a mutation that needs an actor has none.
	ErrUnauthenticated = errors.New("sign in required")
	// ErrNotFound is returned when the referenced listing does not exist.
	ErrNotFound = errors.New("listing not found")
	// ErrInvalidListing is returned for a malformed listing reference.
	ErrInvalidListing = errors.New("invalid listing reference")
	// ErrTransient marks storage failures the caller may retry.
	ErrTransient = errors.New("transient storage error")
)

// StorageError wraps a failure of the backing store. It matches ErrTransient.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool {
	return target == ErrTransient
}

// Transient wraps err as a StorageError for op. Domain errors pass through unchanged.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidListing) || errors.Is(err, ErrTransient) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// FromDomain converts a ledger or store error into the API error sent to clients.
func FromDomain(err error) *APIError {
	var apiErr *APIError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, ErrUnauthenticated):
		return Unauthorized(ErrUnauthenticated.Error())
	case errors.Is(err, ErrNotFound):
		return NotFound("listing")
	case errors.Is(err, ErrInvalidListing):
		return InvalidListing("listing", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout("storage request")
	case errors.Is(err, ErrTransient):
		return ServiceUnavailable("listing storage")
	default:
		return InternalError("unexpected error")
	}
}
