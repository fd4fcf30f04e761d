// Package services implements the research lifecycle orchestration: the
// status workflow, track assignment, review orchestration and the submission
// use-cases built on top of them.
//
// This file centralizes the service-level failure taxonomy. Every error
// returned by a service method wraps exactly one of the sentinels below, so
// callers classify failures with errors.Is or KindOf instead of matching
// message text. Translation into HTTP status codes is done by the handler
// layer.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/research-review-backend/internal/domain"
	"github.com/tbourn/research-review-backend/internal/repo"
)

// Kind is the stable failure-kind signal exposed to boundary layers.
type Kind string

const (
	KindNone              Kind = ""
	KindValidation        Kind = "validation"
	KindUnauthorized      Kind = "unauthorized"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindDuplicate         Kind = "duplicate"
	KindConflict          Kind = "conflict"
	KindInfrastructure    Kind = "infrastructure"
)

var (
	// ErrValidation is returned for malformed input (missing author or file,
	// out-of-range score, unknown enum value). Detected before any
	// transaction opens.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized is returned when the actor lacks the role or ownership
	// required for the operation.
	ErrUnauthorized = errors.New("not authorized")

	// ErrNotFound is returned when the research, review or file does not
	// exist or is soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when the requested status or track
	// change is not legal from the current state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrDuplicateAssignment is returned when a reviewer already holds an
	// active review of the same research.
	ErrDuplicateAssignment = errors.New("reviewer already assigned")

	// ErrConflict is returned when a concurrent write to the same entity was
	// detected. The whole operation was rolled back; the caller may retry.
	ErrConflict = errors.New("concurrent modification")

	// ErrInfrastructure wraps storage and transport failures on the write path.
	ErrInfrastructure = errors.New("infrastructure failure")
)

// KindOf classifies err. Nil yields KindNone; anything not wrapping a known
// sentinel is reported as infrastructure.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrDuplicateAssignment):
		return KindDuplicate
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInfrastructure
	}
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func unauthorizedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

func invalidTransition(from, to domain.Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// fromRepo maps persistence errors onto the service taxonomy. what names the
// entity for not-found messages.
func fromRepo(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case KindOf(err) != KindInfrastructure, errors.Is(err, ErrInfrastructure):
		// already classified
		return err
	case errors.Is(err, repo.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, repo.ErrConflict):
		return fmt.Errorf("%w: %s", ErrConflict, what)
	case errors.Is(err, repo.ErrDuplicate):
		return fmt.Errorf("%w: %s: %v", ErrConflict, what, err)
	default:
		return fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
}
