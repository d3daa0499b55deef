package repository

import (
	"context"
	"database/sql"

	"github.com/medirent/equipment-rental/internal/lifecycle"
	"github.com/medirent/equipment-rental/internal/model"
)

// BookingRepo provides persistence for bookings.  Status changes go through
// TransitionStatus, which performs a conditional write (only if the current
// status still equals the expected from-status) and flips the item's
// is_available flag inside the same transaction, so a booking can never sit
// in accepted while its item still reads available.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, item_id, renter_id, owner_id, start_date, end_date,
       total_price_cents, delivery_method, delivery_address, delivery_lat,
       delivery_lng, status, created_at, updated_at`

func scanBooking(row interface{ Scan(...interface{}) error }) (*model.Booking, error) {
	var b model.Booking
	var method, status string
	err := row.Scan(&b.ID, &b.ItemID, &b.RenterID, &b.OwnerID, &b.StartDate, &b.EndDate,
		&b.TotalPriceCents, &method, &b.DeliveryAddress, &b.DeliveryLat, &b.DeliveryLng,
		&status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.DeliveryMethod = lifecycle.DeliveryMethod(method)
	b.Status = lifecycle.Status(status)
	return &b, nil
}

// Create inserts a new booking in the requested status and populates the
// generated ID and timestamps on the provided record.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	const q = `INSERT INTO bookings
	           (item_id, renter_id, owner_id, start_date, end_date, total_price_cents,
	            delivery_method, delivery_address, delivery_lat, delivery_lng, status)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, b.ItemID, b.RenterID, b.OwnerID,
		b.StartDate, b.EndDate, b.TotalPriceCents, string(b.DeliveryMethod),
		b.DeliveryAddress, b.DeliveryLat, b.DeliveryLng, string(lifecycle.StatusRequested))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	const sel = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	got, err := scanBooking(r.db.QueryRowContext(ctx, sel, b.ID))
	if err != nil {
		return err
	}
	*b = *got
	return nil
}

// GetByID returns a booking or ErrBookingNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(r.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListForUser returns every booking where the user is either party, newest
// first.
func (r *BookingRepo) ListForUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings
	           WHERE renter_id = ? OR owner_id = ?
	           ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListInStatus returns bookings currently sitting in the given status.  The
// transit tracker uses it at startup to resume simulated courier legs that
// were in flight when the process stopped.
func (r *BookingRepo) ListInStatus(ctx context.Context, status lifecycle.Status) ([]model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE status = ?`
	rows, err := r.db.QueryContext(ctx, q, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// TransitionStatus moves a booking from one status to another with a
// conditional update.  When itemAvailable is non-nil the item's
// is_available flag is written in the same transaction.  It returns
// ErrConcurrentModification when another writer moved the booking first and
// ErrBookingNotFound when the id does not exist at all.
func (r *BookingRepo) TransitionStatus(ctx context.Context, bookingID uint64, from, to lifecycle.Status, itemID uint64, itemAvailable *bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := transitionTx(ctx, tx, bookingID, from, to, itemID, itemAvailable); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// transitionTx is the shared conditional-write core used by both plain
// transitions and handover verifications.
func transitionTx(ctx context.Context, tx *sql.Tx, bookingID uint64, from, to lifecycle.Status, itemID uint64, itemAvailable *bool) error {
	const upd = `UPDATE bookings SET status = ?, updated_at = NOW() WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, upd, string(to), bookingID, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing booking from a lost race.
		var cur string
		err := tx.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = ?`, bookingID).Scan(&cur)
		if err == sql.ErrNoRows {
			return ErrBookingNotFound
		}
		if err != nil {
			return err
		}
		return ErrConcurrentModification
	}
	if itemAvailable != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE items SET is_available = ?, updated_at = NOW() WHERE id = ?`,
			*itemAvailable, itemID); err != nil {
			return err
		}
	}
	return nil
}
