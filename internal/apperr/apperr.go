// Package apperr holds the typed business-error taxonomy returned by the
// dispatch core. Every expected rule violation maps to one of these classes
// so the command-routing layer can translate it for the user; anything else
// reaching a handler is treated as an internal bug.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError marks malformed input to a session step or command. The
// caller should re-prompt.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// PreconditionError marks a state-machine rule violation, e.g. confirming
// progress on a task that was never accepted.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return "precondition: " + e.Reason }

// NotFoundError marks an unknown task, offer, worker, or session.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string { return e.Entity + " not found" }

// UnauthorizedError marks a caller that is not the task's customer or
// assigned worker.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string { return "unauthorized: " + e.Reason }

// ConflictError marks losing the offer-acceptance race.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

// ExternalError marks a collaborator (geocoding, verification, channel
// provider) failure after the retry budget was exhausted.
type ExternalError struct {
	Service string
	Err     error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("external service %s: %v", e.Service, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func Preconditionf(format string, args ...any) error {
	return &PreconditionError{Reason: fmt.Sprintf(format, args...)}
}

func NotFound(entity string) error {
	return &NotFoundError{Entity: entity}
}

func Unauthorizedf(format string, args ...any) error {
	return &UnauthorizedError{Reason: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

func External(service string, err error) error {
	return &ExternalError{Service: service, Err: err}
}

// IsBusiness reports whether err belongs to the expected taxonomy, as
// opposed to an internal failure that should be logged as a bug.
func IsBusiness(err error) bool {
	var (
		v *ValidationError
		p *PreconditionError
		n *NotFoundError
		u *UnauthorizedError
		c *ConflictError
		x *ExternalError
	)
	return errors.As(err, &v) || errors.As(err, &p) || errors.As(err, &n) ||
		errors.As(err, &u) || errors.As(err, &c) || errors.As(err, &x)
}
