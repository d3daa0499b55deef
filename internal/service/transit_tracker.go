package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/medirent/equipment-rental/internal/lifecycle"
	"github.com/medirent/equipment-rental/internal/model"
	"github.com/medirent/equipment-rental/internal/repository"
	"github.com/medirent/equipment-rental/internal/routing"
)

// Once a delivery arrives the booking lingers in delivered briefly before
// the rental clock starts; the tracker advances it automatically so the
// renter does not have to confirm receipt.
const deliveredGrace = time.Minute

// TransitTracker drives the simulated courier leg of delivery bookings.
// When a booking enters picked_up or return_picked_up it schedules a timer
// for the estimated transit duration and fires the arrival transition when
// it expires.  The position shown to clients is recomputed on demand from
// (leg start, now, duration); the tracker holds no per-tick state.
//
// Arrival fires at most once per status: the conditional status write makes
// a second firing (or a race with a manual owner action) a benign loss.
type TransitTracker struct {
	bookings BookingStore
	items    ItemStore
	routes   *routing.Client
	svc      *BookingService

	mu      sync.Mutex
	lastGen uint64
	legs    map[uint64]trackedLeg
}

// trackedLeg tags each registered timer with a generation so a finished or
// superseded goroutine can only remove its own registration, never a
// replacement started by a later Track call.
type trackedLeg struct {
	cancel context.CancelFunc
	gen    uint64
}

// NewTransitTracker constructs a tracker.
func NewTransitTracker(bookings BookingStore, items ItemStore, routes *routing.Client, svc *BookingService) *TransitTracker {
	if bookings == nil || items == nil || routes == nil || svc == nil {
		panic("nil dependency passed to NewTransitTracker")
	}
	return &TransitTracker{
		bookings: bookings,
		items:    items,
		routes:   routes,
		svc:      svc,
		legs:     make(map[uint64]trackedLeg),
	}
}

// RouteFor returns the transit estimate for the booking's current leg.  The
// outbound leg runs from the item's location to the delivery address; the
// return leg runs the other way.  Missing coordinates degrade to the
// minimum fallback duration rather than failing.
func (t *TransitTracker) RouteFor(ctx context.Context, b *model.Booking) *routing.Route {
	var itemLoc, dest routing.Coordinate
	if it, err := t.items.GetByID(ctx, b.ItemID); err == nil && it.Lat != nil && it.Lng != nil {
		itemLoc = routing.Coordinate{Lat: *it.Lat, Lng: *it.Lng}
	}
	if b.DeliveryLat != nil && b.DeliveryLng != nil {
		dest = routing.Coordinate{Lat: *b.DeliveryLat, Lng: *b.DeliveryLng}
	}
	from, to := itemLoc, dest
	if b.Status == lifecycle.StatusReturnPickedUp {
		from, to = dest, itemLoc
	}
	return t.routes.Estimate(ctx, from, to)
}

// Track starts (or restarts) the simulated leg for a booking.  It is a
// no-op for bookings that are not in a transit status.
func (t *TransitTracker) Track(ctx context.Context, b *model.Booking) {
	if !lifecycle.InTransit(b.Status, b.DeliveryMethod) {
		return
	}
	route := t.RouteFor(ctx, b)
	deadline := b.UpdatedAt.Add(route.Duration)

	legCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.mu.Lock()
	if old, ok := t.legs[b.ID]; ok {
		old.cancel()
	}
	t.lastGen++
	gen := t.lastGen
	t.legs[b.ID] = trackedLeg{cancel: cancel, gen: gen}
	t.mu.Unlock()

	go t.run(legCtx, b.ID, b.Status, deadline, gen)
}

// Cancel stops the timer for a booking, typically because the booking left
// the transit step through another path (manual owner action, rejection).
func (t *TransitTracker) Cancel(bookingID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if leg, ok := t.legs[bookingID]; ok {
		leg.cancel()
		delete(t.legs, bookingID)
	}
}

// release drops a goroutine's own registration when it finishes.  A Track
// call that restarted the leg owns the map slot under a newer generation, so
// the outgoing goroutine must leave it alone.
func (t *TransitTracker) release(bookingID, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if leg, ok := t.legs[bookingID]; ok && leg.gen == gen {
		leg.cancel()
		delete(t.legs, bookingID)
	}
}

// Resume rescans the record store for legs that were in flight when the
// process stopped and restarts their timers.
func (t *TransitTracker) Resume(ctx context.Context) {
	for _, status := range []lifecycle.Status{lifecycle.StatusPickedUp, lifecycle.StatusReturnPickedUp} {
		list, err := t.bookings.ListInStatus(ctx, status)
		if err != nil {
			log.Printf("transit-tracker: resume scan failed for %s: %v", status, err)
			continue
		}
		for i := range list {
			t.Track(ctx, &list[i])
		}
	}
}

func (t *TransitTracker) run(ctx context.Context, bookingID uint64, status lifecycle.Status, deadline time.Time, gen uint64) {
	defer t.release(bookingID, gen)

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	b, err := t.svc.ApplySystem(ctx, bookingID, lifecycle.EventArrive)
	if err != nil {
		// Someone else already moved the booking: nothing to do.
		if errors.Is(err, repository.ErrConcurrentModification) ||
			errors.Is(err, lifecycle.ErrIllegalTransition) {
			return
		}
		log.Printf("transit-tracker: arrival for booking %d failed: %v", bookingID, err)
		return
	}

	// The outbound leg has a second edge: delivered -> in_use after a short
	// grace so the rental starts without a manual confirmation.
	if status == lifecycle.StatusPickedUp && b.Status == lifecycle.StatusDelivered {
		grace := time.NewTimer(deliveredGrace)
		defer grace.Stop()
		select {
		case <-ctx.Done():
			return
		case <-grace.C:
		}
		if _, err := t.svc.ApplySystem(ctx, bookingID, lifecycle.EventStartUse); err != nil &&
			!errors.Is(err, repository.ErrConcurrentModification) &&
			!errors.Is(err, lifecycle.ErrIllegalTransition) {
			log.Printf("transit-tracker: start-use for booking %d failed: %v", bookingID, err)
		}
	}
}
