package model

import "time"

// HandoverPhase names the two points in a rental where a physical transfer
// happens and a one-time code changes hands.
type HandoverPhase string

const (
	PhasePickup HandoverPhase = "pickup"
	PhaseReturn HandoverPhase = "return"
)

// ValidHandoverPhase reports whether s is a known phase value.
func ValidHandoverPhase(s string) bool {
	return HandoverPhase(s) == PhasePickup || HandoverPhase(s) == PhaseReturn
}

// HandoverCode is a single-use 6-digit secret bound to one (booking, phase)
// pair.  The code is a convenience control for an in-person exchange, not a
// security boundary: it is short-lived, never broadcast, and consumed on the
// first successful verification.  Generating a new code for a phase replaces
// any unconsumed one.
//
// Fields:
//  ID        – primary key identifier.
//  BookingID – booking the code belongs to.
//  Phase     – pickup or return.
//  Code      – 6 decimal digits, leading zeros preserved.
//  Consumed  – set once a verification succeeded; the code is then dead.
//  CreatedAt – when the code was generated.
type HandoverCode struct {
	ID        uint64        // handover_codes.id
	BookingID uint64        // handover_codes.booking_id
	Phase     HandoverPhase // handover_codes.phase
	Code      string        // handover_codes.code
	Consumed  bool          // handover_codes.consumed
	CreatedAt time.Time     // handover_codes.created_at
}
