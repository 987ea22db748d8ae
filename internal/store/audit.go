package store

import (
	"context"

	"stock-service/internal/models"
)

// InsertAuditEntry appends one immutable quantity-mutation record. There are
// deliberately no update or delete statements for audit_log in this codebase.
func (s *Store) InsertAuditEntry(ctx context.Context, entry *models.AuditLogEntry) error {
	query := `
		INSERT INTO audit_log (product_id, product_name, store_id, action, quantity_change,
		                       previous_quantity, new_quantity, reason, order_id,
		                       customer_name, cashier, user_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`

	// lib/pq encodes []byte as bytea; jsonb wants text
	var meta any
	if len(entry.Metadata) > 0 {
		meta = string(entry.Metadata)
	}

	return s.db.GetContext(ctx, entry, query,
		entry.ProductID, entry.ProductName, entry.StoreID, entry.Action, entry.QuantityChange,
		entry.PreviousQuantity, entry.NewQuantity, entry.Reason, entry.OrderID,
		entry.CustomerName, entry.Cashier, entry.UserID, meta)
}

// GetAuditEntriesByProduct lists a product's audit trail, newest first.
func (s *Store) GetAuditEntriesByProduct(ctx context.Context, productID int64, limit int) ([]models.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []models.AuditLogEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM audit_log WHERE product_id = $1 ORDER BY created_at DESC LIMIT $2",
		productID, limit)
	return entries, err
}
