// Package provider defines the capability interface the engine uses to act
// on real infrastructure. One Handler per resource kind, registered in a
// Registry; the engine never talks to a cloud SDK directly.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Handler performs the four remote operations for one resource kind.
// Implementations classify their failures via Transient / Permanent /
// NotFound so the executor can decide between retry and abort.
type Handler interface {
	// Schema describes which attribute changes the handler can apply
	// in place and which force a replacement.
	Schema() Schema

	// Create provisions a new remote object and returns its remote id plus
	// the attribute snapshot to record as observed state.
	Create(ctx context.Context, attrs map[string]any) (id string, outputs map[string]any, err error)

	// Read fetches the current remote attributes. A missing remote object
	// is reported with a NotFound-classified error.
	Read(ctx context.Context, id string) (map[string]any, error)

	// Update mutates the remote object in place and returns the refreshed
	// attribute snapshot.
	Update(ctx context.Context, id string, attrs map[string]any) (map[string]any, error)

	// Delete removes the remote object. Deleting an already-missing object
	// must succeed (idempotent converge).
	Delete(ctx context.Context, id string) error
}

// Schema marks the mutability of a kind's attributes. A changed attribute
// listed in Mutable plans an Update; one listed in ForcesReplacement plans a
// Replace. Changed attributes named by neither are treated as forcing
// replacement: never attempt an in-place update the handler cannot honor.
type Schema struct {
	Mutable           []string
	ForcesReplacement []string
}

func (s Schema) IsMutable(field string) bool {
	for _, f := range s.Mutable {
		if f == field {
			return true
		}
	}
	return false
}

// ErrorClass partitions handler failures for the executor.
type ErrorClass int

const (
	ClassPermanent ErrorClass = iota
	ClassTransient
	ClassNotFound
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassNotFound:
		return "not found"
	default:
		return "permanent"
	}
}

// Error wraps a handler failure with its class.
type Error struct {
	Class ErrorClass
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s provider error: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient marks err as retryable (throttling, timeouts, 5xx).
func Transient(err error) error {
	return &Error{Class: ClassTransient, Err: err}
}

// Permanent marks err as fatal to the run.
func Permanent(err error) error {
	return &Error{Class: ClassPermanent, Err: err}
}

// NotFound reports a remote object that no longer exists.
func NotFound(err error) error {
	return &Error{Class: ClassNotFound, Err: err}
}

// ClassOf extracts the class from a wrapped handler error. Unclassified
// errors are treated as permanent.
func ClassOf(err error) ErrorClass {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassPermanent
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	return ClassOf(err) == ClassTransient
}

// IsNotFound reports whether err means the remote object is gone.
func IsNotFound(err error) bool {
	return ClassOf(err) == ClassNotFound
}
