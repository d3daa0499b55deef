// Package lifecycle holds the authoritative booking state machine for the
// rental marketplace.  Every status change in the system goes through the
// transition table defined here; handlers and background jobs never compare
// or assign raw status strings themselves.
package lifecycle

import (
	"errors"
	"fmt"
)

// Status enumerates the closed set of booking states.  The string values are
// what is stored in the bookings.status column.
type Status string

const (
	StatusRequested       Status = "requested"
	StatusAccepted        Status = "accepted"
	StatusPickedUp        Status = "picked_up"
	StatusDelivered       Status = "delivered"
	StatusInUse           Status = "in_use"
	StatusReturnRequested Status = "return_requested"
	StatusReturnAccepted  Status = "return_accepted"
	StatusReturnPickedUp  Status = "return_picked_up"
	StatusReturned        Status = "returned"
	StatusCompleted       Status = "completed"
	StatusRejected        Status = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusAccepted, StatusPickedUp, StatusDelivered,
		StatusInUse, StatusReturnRequested, StatusReturnAccepted,
		StatusReturnPickedUp, StatusReturned, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether a booking in this status can never move again.
func (s Status) Terminal() bool {
	return s == StatusReturned || s == StatusCompleted || s == StatusRejected
}

// Event enumerates the actions that can move a booking between statuses.
type Event string

const (
	EventAccept             Event = "accept"
	EventReject             Event = "reject"
	EventCancel             Event = "cancel"
	EventVerifyPickup       Event = "verify_pickup"
	EventMarkDelivered      Event = "mark_delivered"
	EventArrive             Event = "arrive"
	EventStartUse           Event = "start_use"
	EventRequestReturn      Event = "request_return"
	EventAcceptReturn       Event = "accept_return"
	EventMarkReturnPickedUp Event = "mark_return_picked_up"
	EventVerifyReturn       Event = "verify_return"
	EventComplete           Event = "complete"
)

// Role identifies who is attempting a transition.  Roles are derived per
// booking (the item's owner vs the renter); RoleSystem is reserved for
// automatic triggers such as the simulated transit arrival.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleRenter Role = "renter"
	RoleSystem Role = "system"
)

// DeliveryMethod distinguishes the two handover paths a booking can follow.
type DeliveryMethod string

const (
	MethodPickup   DeliveryMethod = "pickup"
	MethodDelivery DeliveryMethod = "delivery"
)

const anyMethod DeliveryMethod = ""

// ErrIllegalTransition is matched by errors.Is against *TransitionError when
// the event is not allowed from the booking's current status.
var ErrIllegalTransition = errors.New("illegal transition")

// ErrActorNotAllowed is returned when the transition exists but the caller's
// role is not permitted to trigger it.
var ErrActorNotAllowed = errors.New("actor not allowed for transition")

// TransitionError names the status and event of a rejected transition so the
// caller can report exactly what was attempted.
type TransitionError struct {
	Status Status
	Event  Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not allowed from status %q", e.Event, e.Status)
}

func (e *TransitionError) Is(target error) bool { return target == ErrIllegalTransition }

// rule is one row of the transition table: an event moves a booking from one
// status to another, for a set of roles, optionally restricted to a delivery
// method.
type rule struct {
	from   Status
	to     Status
	method DeliveryMethod // anyMethod means the rule applies to both paths
	roles  []Role
}

// transitions is the single source of truth for legal status changes.  Rules
// are grouped per event; the first rule whose from-status and delivery method
// match the booking wins.
var transitions = map[Event][]rule{
	EventAccept: {
		{from: StatusRequested, to: StatusAccepted, method: anyMethod, roles: []Role{RoleOwner}},
	},
	EventReject: {
		{from: StatusRequested, to: StatusRejected, method: anyMethod, roles: []Role{RoleOwner}},
	},
	EventCancel: {
		{from: StatusRequested, to: StatusRejected, method: anyMethod, roles: []Role{RoleRenter}},
	},
	// The pickup handover code skips the transit leg entirely; for delivery
	// bookings the verified code only confirms the courier collected the item.
	EventVerifyPickup: {
		{from: StatusAccepted, to: StatusInUse, method: MethodPickup, roles: []Role{RoleRenter}},
		{from: StatusAccepted, to: StatusPickedUp, method: MethodDelivery, roles: []Role{RoleRenter}},
	},
	// Manual "mark delivered" by the owner and the simulated-transit arrival
	// race for the same edge; the conditional status write decides the winner.
	EventMarkDelivered: {
		{from: StatusPickedUp, to: StatusDelivered, method: MethodDelivery, roles: []Role{RoleOwner}},
	},
	EventArrive: {
		{from: StatusPickedUp, to: StatusDelivered, method: MethodDelivery, roles: []Role{RoleSystem}},
		{from: StatusReturnPickedUp, to: StatusReturned, method: MethodDelivery, roles: []Role{RoleSystem}},
	},
	EventStartUse: {
		{from: StatusDelivered, to: StatusInUse, method: MethodDelivery, roles: []Role{RoleRenter, RoleSystem}},
	},
	EventRequestReturn: {
		{from: StatusInUse, to: StatusReturnRequested, method: anyMethod, roles: []Role{RoleRenter}},
	},
	EventAcceptReturn: {
		{from: StatusReturnRequested, to: StatusReturnAccepted, method: anyMethod, roles: []Role{RoleOwner}},
	},
	EventMarkReturnPickedUp: {
		{from: StatusReturnAccepted, to: StatusReturnPickedUp, method: MethodDelivery, roles: []Role{RoleOwner}},
	},
	EventVerifyReturn: {
		{from: StatusReturnAccepted, to: StatusReturned, method: anyMethod, roles: []Role{RoleOwner}},
		{from: StatusReturnPickedUp, to: StatusReturned, method: MethodDelivery, roles: []Role{RoleOwner}},
	},
	EventComplete: {
		{from: StatusInUse, to: StatusCompleted, method: anyMethod, roles: []Role{RoleOwner}},
	},
}

// Result describes the outcome of a legal transition.  NoOp is set when the
// booking already sat in the event's target status, which callers must treat
// as success without side effects (double-click tolerance).
type Result struct {
	From Status
	To   Status
	NoOp bool
}

// Transition validates an event against the table and returns the resulting
// status.  It performs no I/O; persisting the change (and rejecting stale
// writers) is the caller's job.
func Transition(current Status, ev Event, actor Role, method DeliveryMethod) (Result, error) {
	rules, ok := transitions[ev]
	if !ok {
		return Result{}, &TransitionError{Status: current, Event: ev}
	}
	var roleDenied bool
	for _, r := range rules {
		if r.method != anyMethod && r.method != method {
			continue
		}
		// Retried event whose work is already done: benign no-op.
		if current == r.to {
			return Result{From: current, To: current, NoOp: true}, nil
		}
		if current != r.from {
			continue
		}
		if !roleAllowed(r.roles, actor) {
			roleDenied = true
			continue
		}
		return Result{From: r.from, To: r.to}, nil
	}
	if roleDenied {
		return Result{}, ErrActorNotAllowed
	}
	return Result{}, &TransitionError{Status: current, Event: ev}
}

func roleAllowed(roles []Role, actor Role) bool {
	for _, r := range roles {
		if r == actor {
			return true
		}
	}
	return false
}

// AvailabilityEffect returns the value the item's is_available flag must be
// set to as part of the same write as the status change, or nil when the flag
// is untouched.  Acceptance occupies the item; a terminal status frees it.
// Closing a booking straight out of requested leaves the flag alone: that
// booking never occupied the item, and another accepted booking may hold it.
func AvailabilityEffect(from, to Status) *bool {
	switch {
	case to == StatusAccepted:
		v := false
		return &v
	case to.Terminal() && from != StatusRequested:
		v := true
		return &v
	}
	return nil
}
