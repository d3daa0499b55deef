package model

import (
	"time"

	"github.com/medirent/equipment-rental/internal/lifecycle"
)

// Booking records one rental of an item by a renter.  Status only ever moves
// along the lifecycle transition table; repositories update it with a
// conditional write so two concurrent actors cannot both win the same edge.
//
// Fields:
//  ID              – primary key identifier.
//  ItemID          – item being rented.
//  RenterID        – user renting the item.
//  OwnerID         – item owner (denormalized from items for role checks).
//  StartDate       – first day of the rental.
//  EndDate         – last day of the rental.
//  TotalPriceCents – agreed total price in cents.
//  DeliveryMethod  – pickup or delivery.
//  DeliveryAddress – destination address, present iff method is delivery.
//  DeliveryLat/Lng – destination coordinates for the transit simulation.
//  Status          – current lifecycle status.
//  CreatedAt       – creation timestamp.
//  UpdatedAt       – set on every status change; doubles as the start
//                    instant of the current transit leg.
type Booking struct {
	ID              uint64                   // bookings.id
	ItemID          uint64                   // bookings.item_id
	RenterID        uint64                   // bookings.renter_id
	OwnerID         uint64                   // bookings.owner_id
	StartDate       time.Time                // bookings.start_date
	EndDate         time.Time                // bookings.end_date
	TotalPriceCents uint32                   // bookings.total_price_cents
	DeliveryMethod  lifecycle.DeliveryMethod // bookings.delivery_method
	DeliveryAddress *string                  // bookings.delivery_address (nullable)
	DeliveryLat     *float64                 // bookings.delivery_lat (nullable)
	DeliveryLng     *float64                 // bookings.delivery_lng (nullable)
	Status          lifecycle.Status         // bookings.status
	CreatedAt       time.Time                // bookings.created_at
	UpdatedAt       time.Time                // bookings.updated_at
}

// RoleOf derives the lifecycle role a user holds on this booking.  The
// second return value is false when the user is neither party.
func (b *Booking) RoleOf(userID uint64) (lifecycle.Role, bool) {
	switch userID {
	case b.OwnerID:
		return lifecycle.RoleOwner, true
	case b.RenterID:
		return lifecycle.RoleRenter, true
	}
	return "", false
}
