package store

import (
	"context"
	"database/sql"
	"time"

	"stock-service/internal/models"
)

// CreateOrderTx inserts an order and its items in one transaction. Stock is
// not touched here; the reservation engine's order deduction runs after the
// order row exists.
func (s *Store) CreateOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (store_id, customer_id, order_type, status, approval_status,
		                    payment_status, total_amount, notes, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err = tx.GetContext(ctx, order, query,
		order.StoreID, order.CustomerID, order.Type, order.Status, order.ApprovalStatus,
		order.PaymentStatus, order.TotalAmount, order.Notes, order.IdempotencyKey)
	if err != nil {
		return err
	}

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.GetContext(ctx, &items[i].ID, `
			INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, total_price)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			items[i].OrderID, items[i].ProductID, items[i].ProductName,
			items[i].Quantity, items[i].UnitPrice, items[i].TotalPrice)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeductOrderItemsTx applies the guarded sale deduction for every item in one
// transaction. Any shortfall rolls the whole batch back, so an order can never
// claim a subset of its lines.
func (s *Store) DeductOrderItemsTx(ctx context.Context, items []models.OrderItem) ([]LedgerChange, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var changes []LedgerChange
	for _, item := range items {
		res, err := deductSaleStock(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, err
		}
		changes = append(changes, saleChange(res, -item.Quantity))
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return changes, nil
}

// ReplaceOrderItemsTx swaps an order's line items for a new set, adjusting
// stock by the net per-product difference inside one transaction. Restoring
// the old claim and deducting the new one collapse into a single guarded
// adjustment per product, so an aborted edit cannot leave stock half-moved
// and editing to the same items touches nothing.
func (s *Store) ReplaceOrderItemsTx(ctx context.Context, order *models.Order, oldItems, newItems []models.OrderItem, adjustStock bool) ([]LedgerChange, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var changes []LedgerChange
	if adjustStock {
		for _, productID := range netDeltaOrder(oldItems, newItems) {
			delta := netDelta(oldItems, newItems, productID)
			if delta == 0 {
				continue
			}
			var res *LedgerResult
			if delta > 0 {
				// new claim exceeds the old one: take the difference, guarded
				res, err = deductSaleStock(ctx, tx, productID, delta)
			} else {
				res, err = restoreSaleStock(ctx, tx, productID, -delta)
			}
			if err != nil {
				return nil, err
			}
			changes = append(changes, saleChange(res, -delta))
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM order_items WHERE order_id = $1", order.ID); err != nil {
		return nil, err
	}
	for i := range newItems {
		newItems[i].OrderID = order.ID
		err = tx.GetContext(ctx, &newItems[i].ID, `
			INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, total_price)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			newItems[i].OrderID, newItems[i].ProductID, newItems[i].ProductName,
			newItems[i].Quantity, newItems[i].UnitPrice, newItems[i].TotalPrice)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET total_amount = $1, notes = $2, updated_at = NOW() WHERE id = $3",
		order.TotalAmount, order.Notes, order.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return changes, nil
}

// netDeltaOrder returns product IDs in first-seen order across both item sets.
func netDeltaOrder(oldItems, newItems []models.OrderItem) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, it := range oldItems {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	for _, it := range newItems {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	return ids
}

// netDelta is the additional stock the new item set claims for a product
// relative to the old set. Negative means stock comes back.
func netDelta(oldItems, newItems []models.OrderItem, productID int64) int {
	delta := 0
	for _, it := range newItems {
		if it.ProductID == productID {
			delta += it.Quantity
		}
	}
	for _, it := range oldItems {
		if it.ProductID == productID {
			delta -= it.Quantity
		}
	}
	return delta
}

// TransitionOrderTx updates status fields and, when restore is true, puts the
// order's claimed stock back in the same transaction.
func (s *Store) TransitionOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem, status, approvalStatus string, restore bool) ([]LedgerChange, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var changes []LedgerChange
	if restore {
		for _, item := range items {
			res, err := restoreSaleStock(ctx, tx, item.ProductID, item.Quantity)
			if err != nil {
				return nil, err
			}
			changes = append(changes, saleChange(res, item.Quantity))
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, approval_status = $2, updated_at = NOW() WHERE id = $3",
		status, approvalStatus, order.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	order.Status = status
	order.ApprovalStatus = approvalStatus
	return changes, nil
}

// FulfillOrderTx is the deferred-claim deduction point for preorders: the
// guarded deduction and the completion update commit together.
func (s *Store) FulfillOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem) ([]LedgerChange, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var changes []LedgerChange
	for _, item := range items {
		res, err := deductSaleStock(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, err
		}
		changes = append(changes, saleChange(res, -item.Quantity))
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		models.OrderStatusCompleted, order.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	order.Status = models.OrderStatusCompleted
	return changes, nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// GetOrdersByStore retrieves orders for a store, newest first
func (s *Store) GetOrdersByStore(ctx context.Context, storeID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE store_id = $1 ORDER BY created_at DESC", storeID)
	return orders, err
}

// InsertCartReservation records an outstanding cart hold for the reaper.
func (s *Store) InsertCartReservation(ctx context.Context, storeID, productID int64, quantity int) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO cart_reservations (store_id, product_id, quantity) VALUES ($1, $2, $3)",
		storeID, productID, quantity)
	return err
}

// ConsumeCartReservations reduces outstanding holds for a product by up to
// quantity, oldest first, after an explicit release.
func (s *Store) ConsumeCartReservations(ctx context.Context, storeID, productID int64, quantity int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var rows []models.CartReservation
	err = tx.SelectContext(ctx, &rows, `
		SELECT * FROM cart_reservations
		WHERE store_id = $1 AND product_id = $2
		ORDER BY created_at
		FOR UPDATE`, storeID, productID)
	if err != nil {
		return err
	}

	remaining := quantity
	for _, row := range rows {
		if remaining <= 0 {
			break
		}
		if row.Quantity <= remaining {
			if _, err := tx.ExecContext(ctx, "DELETE FROM cart_reservations WHERE id = $1", row.ID); err != nil {
				return err
			}
			remaining -= row.Quantity
		} else {
			if _, err := tx.ExecContext(ctx,
				"UPDATE cart_reservations SET quantity = quantity - $1 WHERE id = $2",
				remaining, row.ID); err != nil {
				return err
			}
			remaining = 0
		}
	}

	return tx.Commit()
}

// StaleCartReservations lists holds older than the cutoff.
func (s *Store) StaleCartReservations(ctx context.Context, olderThan time.Time) ([]models.CartReservation, error) {
	var rows []models.CartReservation
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM cart_reservations WHERE created_at < $1 ORDER BY created_at", olderThan)
	return rows, err
}

// DeleteCartReservation removes a swept hold.
func (s *Store) DeleteCartReservation(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cart_reservations WHERE id = $1", id)
	return err
}
