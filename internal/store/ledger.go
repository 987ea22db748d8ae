package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stock-service/internal/models"
	"stock-service/internal/util"

	"github.com/jmoiron/sqlx"
)

// Quantity fields the ledger may touch. Everything else on a product is out
// of scope for atomic adjustment.
const (
	FieldQuantity         = "quantity"
	FieldTotalQuantity    = "total_quantity"
	FieldReservedQuantity = "reserved_quantity"
)

var quantityFields = map[string]bool{
	FieldQuantity:         true,
	FieldTotalQuantity:    true,
	FieldReservedQuantity: true,
}

// LedgerResult is the product's quantity state as returned by the update
// statement itself, never re-read afterwards.
type LedgerResult struct {
	ProductID        int64     `db:"id"`
	ProductName      string    `db:"name"`
	StoreID          int64     `db:"store_id"`
	Quantity         int       `db:"quantity"`
	TotalQuantity    int       `db:"total_quantity"`
	ReservedQuantity int       `db:"reserved_quantity"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// Available returns the derived sellable quantity.
func (r *LedgerResult) Available() int {
	return r.TotalQuantity - r.ReservedQuantity
}

// LedgerChange describes one applied mutation, for audit entries.
type LedgerChange struct {
	ProductID        int64
	ProductName      string
	StoreID          int64
	Change           int
	PreviousQuantity int
	NewQuantity      int
	Result           LedgerResult
}

const ledgerReturning = "RETURNING id, name, store_id, quantity, total_quantity, reserved_quantity, updated_at"

// guardPredicate builds the condition under which applying delta to field
// keeps availability (or the legacy quantity) at or above min. The reserved
// predicate also floors reserved_quantity at zero, since for that field the
// risky direction flips with the sign of the delta. The predicate is
// evaluated by the database inside the UPDATE, which is what makes two
// racing adjustments resolve correctly.
func guardPredicate(field string) string {
	switch field {
	case FieldQuantity:
		return "quantity + $1 >= $3"
	case FieldTotalQuantity:
		return "total_quantity + $1 - reserved_quantity >= $3"
	case FieldReservedQuantity:
		return "total_quantity - reserved_quantity - $1 >= $3 AND reserved_quantity + $1 >= 0"
	}
	return "FALSE"
}

// AdjustQuantity applies an unguarded atomic increment to one quantity field.
// There is deliberately no read-modify-write variant anywhere in this package.
func (s *Store) AdjustQuantity(ctx context.Context, productID int64, field string, delta int) (*LedgerResult, error) {
	return adjustQuantity(ctx, s.db, productID, field, delta)
}

func adjustQuantity(ctx context.Context, ext sqlx.ExtContext, productID int64, field string, delta int) (*LedgerResult, error) {
	if !quantityFields[field] {
		return nil, models.ValidationError("unknown quantity field %q", field)
	}

	start := time.Now()
	defer func() { util.LedgerUpdateLatency.Observe(time.Since(start).Seconds()) }()

	query := fmt.Sprintf(
		"UPDATE products SET %s = %s + $1, updated_at = NOW() WHERE id = $2 %s",
		field, field, ledgerReturning)

	var res LedgerResult
	err := sqlx.GetContext(ctx, ext, &res, query, delta, productID)
	if err == sql.ErrNoRows {
		return nil, models.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// AdjustGuarded applies delta to field only if the resulting availability
// stays at or above minAvailable. The guard and the write are one statement;
// a failed guard leaves no partial state and yields InsufficientStockError
// with the quantities observed at decision time.
func (s *Store) AdjustGuarded(ctx context.Context, productID int64, field string, delta, minAvailable int) (*LedgerResult, error) {
	return adjustGuarded(ctx, s.db, productID, field, delta, minAvailable)
}

func adjustGuarded(ctx context.Context, ext sqlx.ExtContext, productID int64, field string, delta, minAvailable int) (*LedgerResult, error) {
	if !quantityFields[field] {
		return nil, models.ValidationError("unknown quantity field %q", field)
	}

	start := time.Now()
	defer func() { util.LedgerUpdateLatency.Observe(time.Since(start).Seconds()) }()

	query := fmt.Sprintf(
		"UPDATE products SET %s = %s + $1, updated_at = NOW() WHERE id = $2 AND %s %s",
		field, field, guardPredicate(field), ledgerReturning)

	var res LedgerResult
	err := sqlx.GetContext(ctx, ext, &res, query, delta, productID, minAvailable)
	if err == nil {
		return &res, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	// Guard failed or the product is gone; the follow-up read is diagnostic only.
	var cur LedgerResult
	err = sqlx.GetContext(ctx, ext, &cur,
		"SELECT id, name, store_id, quantity, total_quantity, reserved_quantity, updated_at FROM products WHERE id = $1",
		productID)
	if err == sql.ErrNoRows {
		return nil, models.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	requested := delta
	if requested < 0 {
		requested = -requested
	}
	return nil, &models.InsufficientStockError{
		ProductID: productID,
		Available: cur.Available(),
		Requested: requested,
		Reserved:  cur.ReservedQuantity,
	}
}

// ReleaseReserved returns reserved units to availability, clamping at zero so
// a stray double release can never drive reserved negative. The second return
// is the number of units actually released, which is smaller than quantity
// when the clamp fired.
func (s *Store) ReleaseReserved(ctx context.Context, productID int64, quantity int) (*LedgerResult, int, error) {
	start := time.Now()
	defer func() { util.LedgerUpdateLatency.Observe(time.Since(start).Seconds()) }()

	var row struct {
		LedgerResult
		PreviousReserved int `db:"previous_reserved"`
	}
	err := s.db.GetContext(ctx, &row, `
		UPDATE products p
		SET reserved_quantity = GREATEST(p.reserved_quantity - $1, 0), updated_at = NOW()
		FROM (SELECT id, reserved_quantity FROM products WHERE id = $2 FOR UPDATE) prev
		WHERE p.id = prev.id
		RETURNING p.id, p.name, p.store_id, p.quantity, p.total_quantity, p.reserved_quantity, p.updated_at,
			prev.reserved_quantity AS previous_reserved`,
		quantity, productID)
	if err == sql.ErrNoRows {
		return nil, 0, models.ErrProductNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	return &row.LedgerResult, row.PreviousReserved - row.ReservedQuantity, nil
}

// deductSaleStock removes sold units inside a transaction. Sales take stock
// out of total_quantity and the legacy quantity field together, guarded so
// availability never crosses below zero.
func deductSaleStock(ctx context.Context, tx *sqlx.Tx, productID int64, quantity int) (*LedgerResult, error) {
	var res LedgerResult
	err := tx.GetContext(ctx, &res, `
		UPDATE products
		SET total_quantity = total_quantity - $1,
		    quantity = quantity - $1,
		    updated_at = NOW()
		WHERE id = $2 AND total_quantity - $1 - reserved_quantity >= 0 `+ledgerReturning,
		quantity, productID)
	if err == nil {
		return &res, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	var cur LedgerResult
	err = tx.GetContext(ctx, &cur,
		"SELECT id, name, store_id, quantity, total_quantity, reserved_quantity, updated_at FROM products WHERE id = $1",
		productID)
	if err == sql.ErrNoRows {
		return nil, models.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return nil, &models.InsufficientStockError{
		ProductID: productID,
		Available: cur.Available(),
		Requested: quantity,
		Reserved:  cur.ReservedQuantity,
	}
}

// restoreSaleStock puts sold units back inside a transaction.
func restoreSaleStock(ctx context.Context, tx *sqlx.Tx, productID int64, quantity int) (*LedgerResult, error) {
	var res LedgerResult
	err := tx.GetContext(ctx, &res, `
		UPDATE products
		SET total_quantity = total_quantity + $1,
		    quantity = quantity + $1,
		    updated_at = NOW()
		WHERE id = $2 `+ledgerReturning,
		quantity, productID)
	if err == sql.ErrNoRows {
		return nil, models.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func saleChange(res *LedgerResult, delta int) LedgerChange {
	return LedgerChange{
		ProductID:        res.ProductID,
		ProductName:      res.ProductName,
		StoreID:          res.StoreID,
		Change:           delta,
		PreviousQuantity: res.TotalQuantity - delta,
		NewQuantity:      res.TotalQuantity,
		Result:           *res,
	}
}
