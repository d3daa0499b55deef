package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/medirent/equipment-rental/internal/lifecycle"
	"github.com/medirent/equipment-rental/internal/model"
)

// HandoverRepo persists one-time handover codes.  Each (booking, phase) pair
// holds at most one row; regenerating a code replaces the previous one, so a
// stale code can never verify.
type HandoverRepo struct {
	db *sql.DB
}

// NewHandoverRepo returns a new HandoverRepo bound to the given database.
func NewHandoverRepo(db *sql.DB) *HandoverRepo { return &HandoverRepo{db: db} }

// SaveCode stores a freshly generated code for a (booking, phase) pair,
// overwriting any prior code for that phase and resetting its consumed flag.
func (r *HandoverRepo) SaveCode(ctx context.Context, bookingID uint64, phase model.HandoverPhase, code string) error {
	const q = `INSERT INTO handover_codes (booking_id, phase, code, consumed, created_at)
	           VALUES (?, ?, ?, FALSE, NOW())
	           ON DUPLICATE KEY UPDATE code = VALUES(code), consumed = FALSE, created_at = NOW()`
	_, err := r.db.ExecContext(ctx, q, bookingID, string(phase), code)
	return err
}

// GetActiveCode returns the unconsumed code for a (booking, phase) pair, or
// ErrNoActiveCode when none was generated or it was already consumed.
func (r *HandoverRepo) GetActiveCode(ctx context.Context, bookingID uint64, phase model.HandoverPhase) (*model.HandoverCode, error) {
	const q = `SELECT id, booking_id, phase, code, consumed, created_at
	           FROM handover_codes
	           WHERE booking_id = ? AND phase = ? AND consumed = FALSE`
	var hc model.HandoverCode
	var phaseStr string
	err := r.db.QueryRowContext(ctx, q, bookingID, string(phase)).
		Scan(&hc.ID, &hc.BookingID, &phaseStr, &hc.Code, &hc.Consumed, &hc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveCode
	}
	if err != nil {
		return nil, err
	}
	hc.Phase = model.HandoverPhase(phaseStr)
	return &hc, nil
}

// ConsumeAndTransition marks the phase's code consumed and applies the
// booking status transition plus the item availability flip, all inside a
// single transaction.  A verified handover is one logical operation: either
// the code is spent and the booking moved, or nothing happened.
func (r *HandoverRepo) ConsumeAndTransition(ctx context.Context, bookingID uint64, phase model.HandoverPhase, from, to lifecycle.Status, itemID uint64, itemAvailable *bool) error {
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
	const consume = `UPDATE handover_codes SET consumed = TRUE
	                 WHERE booking_id = ? AND phase = ? AND consumed = FALSE`
	res, err := tx.ExecContext(ctx, consume, bookingID, string(phase))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// The code was consumed between verification and this write.
		return ErrConcurrentModification
	}
	if err := transitionTx(ctx, tx, bookingID, from, to, itemID, itemAvailable); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
