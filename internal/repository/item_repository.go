package repository

import (
	"context"
	"database/sql"

	"github.com/medirent/equipment-rental/internal/model"
)

// ItemRepo provides CRUD operations for equipment listings.  The
// is_available flag on an item is never written here directly by handlers;
// it only changes inside booking transitions so the flag stays consistent
// with the set of non-terminal bookings.
type ItemRepo struct {
	db *sql.DB
}

// NewItemRepo returns a new ItemRepo bound to the given database.
func NewItemRepo(db *sql.DB) *ItemRepo { return &ItemRepo{db: db} }

// DB exposes the underlying handle for callers that need to open a
// transaction spanning multiple repositories.
func (r *ItemRepo) DB() *sql.DB { return r.db }

const itemColumns = `id, owner_id, title, category, description, price_per_day_cents,
       lat, lng, address_text, image_url, ai_status, ai_reason, is_available,
       created_at, updated_at`

func scanItem(row interface{ Scan(...interface{}) error }) (*model.Item, error) {
	var it model.Item
	err := row.Scan(&it.ID, &it.OwnerID, &it.Title, &it.Category, &it.Description,
		&it.PricePerDay, &it.Lat, &it.Lng, &it.AddressText, &it.ImageURL,
		&it.AIStatus, &it.AIReason, &it.IsAvailable, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// Create inserts a new listing and populates the generated ID and
// timestamps on the provided record.  New items start available.
func (r *ItemRepo) Create(ctx context.Context, it *model.Item) error {
	const q = `INSERT INTO items
	           (owner_id, title, category, description, price_per_day_cents,
	            lat, lng, address_text, image_url, ai_status, ai_reason, is_available)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, TRUE)`
	res, err := r.db.ExecContext(ctx, q, it.OwnerID, it.Title, it.Category, it.Description,
		it.PricePerDay, it.Lat, it.Lng, it.AddressText, it.ImageURL, it.AIStatus, it.AIReason)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	it.ID = uint64(id)
	const sel = `SELECT ` + itemColumns + ` FROM items WHERE id = ?`
	got, err := scanItem(r.db.QueryRowContext(ctx, sel, it.ID))
	if err != nil {
		return err
	}
	*it = *got
	return nil
}

// GetByID returns a single item or ErrItemNotFound.
func (r *ItemRepo) GetByID(ctx context.Context, id uint64) (*model.Item, error) {
	const q = `SELECT ` + itemColumns + ` FROM items WHERE id = ?`
	it, err := scanItem(r.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return it, nil
}

// List returns verified listings, newest first.  An empty category matches
// everything; availableOnly hides items occupied by an active booking.
func (r *ItemRepo) List(ctx context.Context, category string, availableOnly bool) ([]model.Item, error) {
	q := `SELECT ` + itemColumns + ` FROM items WHERE ai_status = 'verified'`
	args := make([]interface{}, 0, 2)
	if category != "" {
		q += ` AND category = ?`
		args = append(args, category)
	}
	if availableOnly {
		q += ` AND is_available = TRUE`
	}
	q += ` ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ListByOwner returns every listing belonging to a user regardless of audit
// status, newest first.
func (r *ItemRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]model.Item, error) {
	const q = `SELECT ` + itemColumns + ` FROM items WHERE owner_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
