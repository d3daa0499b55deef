package service

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medirent/equipment-rental/internal/lifecycle"
	"github.com/medirent/equipment-rental/internal/model"
	q "github.com/medirent/equipment-rental/internal/queue"
	"github.com/medirent/equipment-rental/internal/repository"
)

// ErrCodeMismatch is returned when the submitted code does not equal the
// stored one.  The human re-enters the code; the service never retries.
var ErrCodeMismatch = errors.New("handover code mismatch")

// ErrNoActiveCode is returned when no code was generated for the phase or
// the existing one was already consumed.
var ErrNoActiveCode = errors.New("no active handover code")

// ErrBookingClosed is returned when a code is requested for a booking in a
// terminal state.
var ErrBookingClosed = errors.New("booking already closed")

// HandoverStore is the slice of the handover repository the service needs.
// GetActiveCode reports a missing or spent code as repository.ErrNoActiveCode.
// ConsumeAndTransition must spend the code, move the booking status
// conditionally and flip item availability in one transaction.
type HandoverStore interface {
	SaveCode(ctx context.Context, bookingID uint64, phase model.HandoverPhase, code string) error
	GetActiveCode(ctx context.Context, bookingID uint64, phase model.HandoverPhase) (*model.HandoverCode, error)
	ConsumeAndTransition(ctx context.Context, bookingID uint64, phase model.HandoverPhase, from, to lifecycle.Status, itemID uint64, itemAvailable *bool) error
}

// HandoverService binds a short one-time numeric secret to a (booking,
// phase) pair so a physical transfer can be attested by the other party.
// Role assignment is fixed: the owner generates for pickup and verifies for
// return; the renter does the opposite.  The 6-digit space is a convenience
// control for an in-person exchange, not a security boundary.
type HandoverService struct {
	bookings BookingStore
	codes    HandoverStore
	publish  Publisher
}

// NewHandoverService constructs the service.  publish may be nil.
func NewHandoverService(bookings BookingStore, codes HandoverStore, publish Publisher) *HandoverService {
	if bookings == nil || codes == nil {
		panic("nil store passed to NewHandoverService")
	}
	return &HandoverService{bookings: bookings, codes: codes, publish: publish}
}

// GenerateCode creates a fresh uniform 6-digit code (leading zeros
// preserved) for the phase, invalidating any prior unconsumed code.  The
// code is returned only to the caller; it is never broadcast.
func (s *HandoverService) GenerateCode(ctx context.Context, bookingID uint64, phase model.HandoverPhase) (string, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return "", err
	}
	if b.Status.Terminal() {
		return "", ErrBookingClosed
	}
	code, err := randomCode()
	if err != nil {
		return "", err
	}
	if err := s.codes.SaveCode(ctx, bookingID, phase, code); err != nil {
		return "", err
	}
	return code, nil
}

// VerifyCode checks a submitted code against the stored one for the phase.
// On success it atomically consumes the code and advances the booking:
// pickup moves the item into the renter's hands, return gives it back to
// the owner and frees the item.
func (s *HandoverService) VerifyCode(ctx context.Context, bookingID uint64, phase model.HandoverPhase, submitted string) (*model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	ev, actor := handoverTransition(phase)
	res, err := lifecycle.Transition(b.Status, ev, actor, b.DeliveryMethod)
	if err != nil {
		return nil, err
	}
	code, err := s.codes.GetActiveCode(ctx, bookingID, phase)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveCode) {
			return nil, ErrNoActiveCode
		}
		return nil, err
	}
	if strings.TrimSpace(submitted) != code.Code {
		return nil, ErrCodeMismatch
	}
	if res.NoOp {
		// Status already past this handover; nothing left to consume.
		return b, nil
	}
	avail := lifecycle.AvailabilityEffect(res.From, res.To)
	if err := s.codes.ConsumeAndTransition(ctx, bookingID, phase, res.From, res.To, b.ItemID, avail); err != nil {
		return nil, err
	}
	s.emit(ctx, b, res, ev, actor)
	return s.bookings.GetByID(ctx, bookingID)
}

// handoverTransition maps a phase to its lifecycle event and the fixed
// verifier role acting on it.
func handoverTransition(phase model.HandoverPhase) (lifecycle.Event, lifecycle.Role) {
	if phase == model.PhaseReturn {
		return lifecycle.EventVerifyReturn, lifecycle.RoleOwner
	}
	return lifecycle.EventVerifyPickup, lifecycle.RoleRenter
}

// GeneratorRole names the party that issues the code for a phase.
func GeneratorRole(phase model.HandoverPhase) lifecycle.Role {
	if phase == model.PhaseReturn {
		return lifecycle.RoleRenter
	}
	return lifecycle.RoleOwner
}

func (s *HandoverService) emit(ctx context.Context, b *model.Booking, res lifecycle.Result, ev lifecycle.Event, role lifecycle.Role) {
	if s.publish == nil {
		return
	}
	event := q.BookingLifecycleEvent{
		EventID:    uuid.NewString(),
		BookingID:  b.ID,
		ItemID:     b.ItemID,
		FromStatus: string(res.From),
		ToStatus:   string(res.To),
		Event:      string(ev),
		Actor:      string(role),
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.publish(ctx, event); err != nil {
		log.Printf("handover-service: publish lifecycle event failed: %v", err)
	}
}

// randomCode draws a uniform 6-digit decimal string from crypto/rand.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	digits := n.String()
	for len(digits) < 6 {
		digits = "0" + digits
	}
	return digits, nil
}
