package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medirent/equipment-rental/internal/audit"
	"github.com/medirent/equipment-rental/internal/lifecycle"
	"github.com/medirent/equipment-rental/internal/model"
	"github.com/medirent/equipment-rental/internal/repository"
)

const (
	ownerID  = uint64(1)
	renterID = uint64(2)
)

func setupBooking(t *testing.T) (*BookingService, *fakeBookingStore, *fakeItemStore, *capturePublisher) {
	t.Helper()
	items := newFakeItemStore()
	bookings := newFakeBookingStore(items)
	pub := &capturePublisher{}
	svc := NewBookingService(bookings, items, pub.publish)
	return svc, bookings, items, pub
}

func verifiedItem(items *fakeItemStore) *model.Item {
	return items.add(model.Item{
		ID:          10,
		OwnerID:     ownerID,
		Title:       "Portable Oxygen Concentrator",
		Category:    "respiratory",
		PricePerDay: 1500,
		AIStatus:    audit.VerdictVerified,
		IsAvailable: true,
	})
}

func newRequest(itemID uint64) BookingRequest {
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	return BookingRequest{
		ItemID:         itemID,
		RenterID:       renterID,
		StartDate:      start,
		EndDate:        start.AddDate(0, 0, 2),
		DeliveryMethod: lifecycle.MethodPickup,
	}
}

func TestRequestBooking(t *testing.T) {
	svc, _, items, _ := setupBooking(t)
	it := verifiedItem(items)

	t.Run("success", func(t *testing.T) {
		b, err := svc.Request(context.Background(), newRequest(it.ID))
		require.NoError(t, err)
		assert.Equal(t, lifecycle.StatusRequested, b.Status)
		assert.Equal(t, ownerID, b.OwnerID)
		// 3 calendar days at 1500 cents.
		assert.Equal(t, uint32(4500), b.TotalPriceCents)

		// A pending request does not occupy the item.
		got, err := items.GetByID(context.Background(), it.ID)
		require.NoError(t, err)
		assert.True(t, got.IsAvailable)
	})

	t.Run("end before start", func(t *testing.T) {
		req := newRequest(it.ID)
		req.EndDate = req.StartDate.AddDate(0, 0, -1)
		_, err := svc.Request(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidDates)
	})

	t.Run("multi-year rental", func(t *testing.T) {
		req := newRequest(it.ID)
		req.EndDate = req.StartDate.AddDate(2, 0, 0)
		_, err := svc.Request(context.Background(), req)
		assert.ErrorIs(t, err, ErrRentalTooLong)
	})

	t.Run("price total overflow", func(t *testing.T) {
		// A year at this daily rate would not fit in the uint32 cents
		// column, so the request is refused rather than wrapped around.
		pricey := items.add(model.Item{
			ID:          12,
			OwnerID:     ownerID,
			PricePerDay: 50_000_000, // $500k/day, e.g. an MRI scanner
			AIStatus:    audit.VerdictVerified,
			IsAvailable: true,
		})
		req := newRequest(pricey.ID)
		req.EndDate = req.StartDate.AddDate(0, 0, 364)
		_, err := svc.Request(context.Background(), req)
		assert.ErrorIs(t, err, ErrRentalTooLong)
	})

	t.Run("own item", func(t *testing.T) {
		req := newRequest(it.ID)
		req.RenterID = ownerID
		_, err := svc.Request(context.Background(), req)
		assert.ErrorIs(t, err, ErrOwnBooking)
	})

	t.Run("unknown item", func(t *testing.T) {
		req := newRequest(999)
		_, err := svc.Request(context.Background(), req)
		assert.ErrorIs(t, err, repository.ErrItemNotFound)
	})

	t.Run("unverified item", func(t *testing.T) {
		bad := items.add(model.Item{ID: 11, OwnerID: ownerID, AIStatus: audit.VerdictRejected, IsAvailable: true})
		_, err := svc.Request(context.Background(), newRequest(bad.ID))
		assert.ErrorIs(t, err, ErrItemNotVerified)
	})

	t.Run("occupied item", func(t *testing.T) {
		items.setAvailable(it.ID, false)
		defer items.setAvailable(it.ID, true)
		_, err := svc.Request(context.Background(), newRequest(it.ID))
		assert.ErrorIs(t, err, repository.ErrItemUnavailable)
	})
}

func TestAcceptOccupiesItem(t *testing.T) {
	svc, _, items, pub := setupBooking(t)
	it := verifiedItem(items)
	b, err := svc.Request(context.Background(), newRequest(it.ID))
	require.NoError(t, err)

	got, err := svc.Apply(context.Background(), ownerID, b.ID, lifecycle.EventAccept)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusAccepted, got.Status)

	item, err := items.GetByID(context.Background(), it.ID)
	require.NoError(t, err)
	assert.False(t, item.IsAvailable, "acceptance must occupy the item")

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, string(lifecycle.EventAccept), events[0].Event)
	assert.Equal(t, string(lifecycle.StatusRequested), events[0].FromStatus)
	assert.Equal(t, string(lifecycle.StatusAccepted), events[0].ToStatus)
	assert.Equal(t, string(lifecycle.RoleOwner), events[0].Actor)
	assert.NotEmpty(t, events[0].EventID)
	assert.Equal(t, it.Title, events[0].ItemTitle)
}

func TestRejectPendingKeepsItemOccupied(t *testing.T) {
	svc, _, items, _ := setupBooking(t)
	it := verifiedItem(items)

	// Two renters request the same item while it is still free.
	first, err := svc.Request(context.Background(), newRequest(it.ID))
	require.NoError(t, err)
	secondReq := newRequest(it.ID)
	secondReq.RenterID = renterID + 1
	second, err := svc.Request(context.Background(), secondReq)
	require.NoError(t, err)

	// Accepting the first occupies the item.
	_, err = svc.Apply(context.Background(), ownerID, first.ID, lifecycle.EventAccept)
	require.NoError(t, err)

	// Turning down the still-pending second must not free it: that request
	// never held the item.
	got, err := svc.Apply(context.Background(), ownerID, second.ID, lifecycle.EventReject)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusRejected, got.Status)

	item, err := items.GetByID(context.Background(), it.ID)
	require.NoError(t, err)
	assert.False(t, item.IsAvailable, "the accepted rental still occupies the item")
}

func TestApplyDerivesRoleFromBooking(t *testing.T) {
	svc, _, items, _ := setupBooking(t)
	it := verifiedItem(items)
	b, err := svc.Request(context.Background(), newRequest(it.ID))
	require.NoError(t, err)

	// A stranger is not a party to the booking at all.
	_, err = svc.Apply(context.Background(), 42, b.ID, lifecycle.EventAccept)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	// The renter is a party but holds the wrong role for acceptance.
	_, err = svc.Apply(context.Background(), renterID, b.ID, lifecycle.EventAccept)
	assert.ErrorIs(t, err, lifecycle.ErrActorNotAllowed)

	// The renter may withdraw the request instead.
	got, err := svc.Apply(context.Background(), renterID, b.ID, lifecycle.EventCancel)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusRejected, got.Status)
}

func TestRetriedAcceptIsNoOp(t *testing.T) {
	svc, _, items, pub := setupBooking(t)
	it := verifiedItem(items)
	b, err := svc.Request(context.Background(), newRequest(it.ID))
	require.NoError(t, err)

	_, err = svc.Apply(context.Background(), ownerID, b.ID, lifecycle.EventAccept)
	require.NoError(t, err)
	got, err := svc.Apply(context.Background(), ownerID, b.ID, lifecycle.EventAccept)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusAccepted, got.Status)
	// The retry emitted no second event.
	assert.Len(t, pub.all(), 1)
}

func TestLostConditionalWriteSurfaces(t *testing.T) {
	svc, bookings, items, pub := setupBooking(t)
	it := verifiedItem(items)
	b, err := svc.Request(context.Background(), newRequest(it.ID))
	require.NoError(t, err)

	bookings.transitionErr = repository.ErrConcurrentModification
	_, err = svc.Apply(context.Background(), ownerID, b.ID, lifecycle.EventAccept)
	assert.ErrorIs(t, err, repository.ErrConcurrentModification)
	assert.Empty(t, pub.all(), "a lost write must not emit an event")
}

func TestCompleteFreesItem(t *testing.T) {
	svc, bookings, items, _ := setupBooking(t)
	it := verifiedItem(items)
	b, err := svc.Request(context.Background(), newRequest(it.ID))
	require.NoError(t, err)

	_, err = svc.Apply(context.Background(), ownerID, b.ID, lifecycle.EventAccept)
	require.NoError(t, err)
	bookings.force(b.ID, lifecycle.StatusInUse)

	got, err := svc.Apply(context.Background(), ownerID, b.ID, lifecycle.EventComplete)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusCompleted, got.Status)

	item, err := items.GetByID(context.Background(), it.ID)
	require.NoError(t, err)
	assert.True(t, item.IsAvailable)
}

func TestApplySystemArrival(t *testing.T) {
	svc, bookings, items, _ := setupBooking(t)
	it := verifiedItem(items)
	req := newRequest(it.ID)
	req.DeliveryMethod = lifecycle.MethodDelivery
	b, err := svc.Request(context.Background(), req)
	require.NoError(t, err)
	bookings.force(b.ID, lifecycle.StatusPickedUp)

	got, err := svc.ApplySystem(context.Background(), b.ID, lifecycle.EventArrive)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusDelivered, got.Status)

	// A duplicate arrival trigger is absorbed as a no-op.
	got, err = svc.ApplySystem(context.Background(), b.ID, lifecycle.EventArrive)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusDelivered, got.Status)
}

func TestApplyUnknownBooking(t *testing.T) {
	svc, _, _, _ := setupBooking(t)
	_, err := svc.Apply(context.Background(), ownerID, 404, lifecycle.EventAccept)
	assert.ErrorIs(t, err, repository.ErrBookingNotFound)
}
