package service

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/medirent/equipment-rental/internal/audit"
	"github.com/medirent/equipment-rental/internal/lifecycle"
	"github.com/medirent/equipment-rental/internal/model"
	q "github.com/medirent/equipment-rental/internal/queue"
	"github.com/medirent/equipment-rental/internal/repository"
)

// ErrInvalidDates is returned when a booking request's end date precedes its
// start date.
var ErrInvalidDates = errors.New("end date before start date")

// ErrOwnBooking is returned when a user tries to rent their own item.
var ErrOwnBooking = errors.New("cannot book your own item")

// ErrItemNotVerified is returned when a booking targets a listing the audit
// service has not cleared for publication.
var ErrItemNotVerified = errors.New("item is not verified")

// ErrRentalTooLong is returned when the requested date range exceeds the
// maximum rental length.
var ErrRentalTooLong = errors.New("rental period too long")

// maxRentalDays bounds a single booking.  It also keeps the price total,
// which is stored in cents as a uint32, far away from its ceiling.
const maxRentalDays = 365

// BookingStore is the slice of the booking repository the service needs.
// The MySQL implementation performs each TransitionStatus as a conditional
// write plus the availability flip in one transaction.
type BookingStore interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	ListInStatus(ctx context.Context, status lifecycle.Status) ([]model.Booking, error)
	TransitionStatus(ctx context.Context, bookingID uint64, from, to lifecycle.Status, itemID uint64, itemAvailable *bool) error
}

// ItemStore is the slice of the item repository the service needs.
type ItemStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Item, error)
}

// BookingService owns booking creation and every status transition that is
// not part of a handover code verification.
type BookingService struct {
	bookings BookingStore
	items    ItemStore
	publish  Publisher
}

// NewBookingService constructs the service.  publish may be nil, in which
// case no lifecycle events are emitted.
func NewBookingService(bookings BookingStore, items ItemStore, publish Publisher) *BookingService {
	if bookings == nil || items == nil {
		panic("nil store passed to NewBookingService")
	}
	return &BookingService{bookings: bookings, items: items, publish: publish}
}

// BookingRequest carries the renter's input for a new booking.
type BookingRequest struct {
	ItemID          uint64
	RenterID        uint64
	StartDate       time.Time
	EndDate         time.Time
	DeliveryMethod  lifecycle.DeliveryMethod
	DeliveryAddress *string
	DeliveryLat     *float64
	DeliveryLng     *float64
}

// Request creates a booking in the requested status.  The item stays
// available until the owner accepts; acceptance is what occupies it.
func (s *BookingService) Request(ctx context.Context, req BookingRequest) (*model.Booking, error) {
	if req.EndDate.Before(req.StartDate) {
		return nil, ErrInvalidDates
	}
	it, err := s.items.GetByID(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	if it.OwnerID == req.RenterID {
		return nil, ErrOwnBooking
	}
	if it.AIStatus != audit.VerdictVerified {
		return nil, ErrItemNotVerified
	}
	if !it.IsAvailable {
		return nil, repository.ErrItemUnavailable
	}
	days := uint64(req.EndDate.Sub(req.StartDate).Hours()/24) + 1
	if days > maxRentalDays {
		return nil, ErrRentalTooLong
	}
	total := days * uint64(it.PricePerDay)
	if total > math.MaxUint32 {
		return nil, ErrRentalTooLong
	}
	b := &model.Booking{
		ItemID:          it.ID,
		RenterID:        req.RenterID,
		OwnerID:         it.OwnerID,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		TotalPriceCents: uint32(total),
		DeliveryMethod:  req.DeliveryMethod,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryLat:     req.DeliveryLat,
		DeliveryLng:     req.DeliveryLng,
	}
	if err := s.bookings.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Apply performs a lifecycle event on behalf of an authenticated user.  The
// user's role is derived from the booking itself; callers who are neither
// party get ErrForbidden.  A retry of an already-applied event returns the
// booking unchanged.
func (s *BookingService) Apply(ctx context.Context, userID, bookingID uint64, ev lifecycle.Event) (*model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	role, ok := b.RoleOf(userID)
	if !ok {
		return nil, repository.ErrForbidden
	}
	return s.applyAs(ctx, b, ev, role)
}

// ApplySystem performs a system-triggered event such as the simulated
// transit arrival.
func (s *BookingService) ApplySystem(ctx context.Context, bookingID uint64, ev lifecycle.Event) (*model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return s.applyAs(ctx, b, ev, lifecycle.RoleSystem)
}

func (s *BookingService) applyAs(ctx context.Context, b *model.Booking, ev lifecycle.Event, role lifecycle.Role) (*model.Booking, error) {
	res, err := lifecycle.Transition(b.Status, ev, role, b.DeliveryMethod)
	if err != nil {
		return nil, err
	}
	if res.NoOp {
		return b, nil
	}
	avail := lifecycle.AvailabilityEffect(res.From, res.To)
	if err := s.bookings.TransitionStatus(ctx, b.ID, res.From, res.To, b.ItemID, avail); err != nil {
		return nil, err
	}
	s.emit(ctx, b, res, ev, role)
	// Re-read so the caller sees the fresh updated_at.
	return s.bookings.GetByID(ctx, b.ID)
}

// emit publishes a lifecycle event best-effort.  A broker outage never fails
// the transition that already committed.
func (s *BookingService) emit(ctx context.Context, b *model.Booking, res lifecycle.Result, ev lifecycle.Event, role lifecycle.Role) {
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
	if it, err := s.items.GetByID(ctx, b.ItemID); err == nil {
		event.ItemTitle = it.Title
	}
	if err := s.publish(ctx, event); err != nil {
		log.Printf("booking-service: publish lifecycle event failed: %v", err)
	}
}
