package model

import "time"

// Item is a piece of medical equipment listed for rent.  The AI audit
// columns are produced by the external condition-audit service and are
// read-only to this service beyond listing creation; IsAvailable is the one
// flag the booking lifecycle mutates (exactly one non-terminal booking may
// occupy an item at a time).
//
// Fields:
//  ID          – primary key identifier.
//  OwnerID     – user who listed the item.
//  Title       – listing title (e.g. "Omron BP Monitor").
//  Category    – coarse category (mobility, monitoring, respiratory, ...).
//  Description – free-form listing text.
//  PricePerDay – rental price per day in cents.
//  Lat, Lng    – geolocation of the item for routing estimates.
//  AddressText – human-readable pickup address.
//  ImageURL    – primary listing image.
//  AIStatus    – audit verdict: verified, rejected or needs_more_info.
//  AIReason    – audit assessment text, includes the safety score.
//  IsAvailable – true iff no non-terminal booking occupies the item.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Item struct {
	ID          uint64    // items.id
	OwnerID     uint64    // items.owner_id
	Title       string    // items.title
	Category    string    // items.category
	Description string    // items.description
	PricePerDay uint32    // items.price_per_day_cents
	Lat         *float64  // items.lat (nullable)
	Lng         *float64  // items.lng (nullable)
	AddressText string    // items.address_text
	ImageURL    string    // items.image_url
	AIStatus    string    // items.ai_status
	AIReason    string    // items.ai_reason
	IsAvailable bool      // items.is_available
	CreatedAt   time.Time // items.created_at
	UpdatedAt   time.Time // items.updated_at
}
