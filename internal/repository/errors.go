// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrForbidden indicates that the current user is not
// authorized to perform an operation on a resource owned by
// someone else, while ErrConcurrentModification signals that a
// conditional status write lost a race against another actor.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrBookingNotFound is returned when no booking exists for the
// requested identifier. Handlers should translate this into an
// HTTP 404 response.
var ErrBookingNotFound = errors.New("booking not found")

// ErrItemNotFound is returned when no item exists for the requested
// identifier.
var ErrItemNotFound = errors.New("item not found")

// ErrConcurrentModification is returned when a conditional status
// update matched zero rows because another writer moved the booking
// first. The losing caller must re-read the booking; it must never
// assume an adjacent state.
var ErrConcurrentModification = errors.New("concurrent modification")

// ErrItemUnavailable is returned when a booking request targets an
// item that is already occupied by another active booking.
var ErrItemUnavailable = errors.New("item unavailable")

// ErrNoActiveCode is returned when a (booking, phase) pair has no
// unconsumed handover code, either because none was generated or the
// existing one was already spent.
var ErrNoActiveCode = errors.New("no active handover code")
