package models

import (
	"encoding/json"
	"time"
)

// Store represents a tenant store. The core only cares about accessibility;
// store CRUD lives elsewhere.
type Store struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Status    string    `db:"status" json:"status"`
	IsLocked  bool      `db:"is_locked" json:"is_locked"`
	IsOnline  bool      `db:"is_online" json:"is_online"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Store statuses
const (
	StoreStatusActive   = "active"
	StoreStatusInactive = "inactive"
)

// Accessible reports whether the store may accept new reservations and orders.
func (s *Store) Accessible() bool {
	return s.Status == StoreStatusActive && !s.IsLocked
}

// Product represents one sellable item for one store. Quantity fields are
// mutated only through the ledger's atomic update statements.
type Product struct {
	ID                   int64     `db:"id" json:"id"`
	StoreID              int64     `db:"store_id" json:"store_id"`
	Name                 string    `db:"name" json:"name"`
	UnitPrice            int64     `db:"unit_price" json:"unit_price"`
	Quantity             int       `db:"quantity" json:"quantity"`
	TotalQuantity        int       `db:"total_quantity" json:"total_quantity"`
	ReservedQuantity     int       `db:"reserved_quantity" json:"reserved_quantity"`
	InitialStock         int       `db:"initial_stock" json:"initial_stock"`
	AvailableForPreorder bool      `db:"available_for_preorder" json:"available_for_preorder"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// AvailableQuantity is derived, never stored.
func (p *Product) AvailableQuantity() int {
	return p.TotalQuantity - p.ReservedQuantity
}

// CanReserve reports whether quantity units could be reserved right now.
// Advisory only; the guarded update makes the actual decision.
func (p *Product) CanReserve(quantity int) bool {
	return p.AvailableQuantity() >= quantity
}

// Order represents a customer or staff claim on stock. Preorders share the
// shape and are distinguished by Type.
type Order struct {
	ID             int64     `db:"id" json:"id"`
	StoreID        int64     `db:"store_id" json:"store_id"`
	CustomerID     int64     `db:"customer_id" json:"customer_id,omitempty"`
	Type           string    `db:"order_type" json:"order_type"`
	Status         string    `db:"status" json:"status"`
	ApprovalStatus string    `db:"approval_status" json:"approval_status"`
	PaymentStatus  string    `db:"payment_status" json:"payment_status"`
	TotalAmount    int64     `db:"total_amount" json:"total_amount"`
	Notes          string    `db:"notes" json:"notes,omitempty"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem represents a line item. ProductName is denormalized so the order
// stays readable after product deletion.
type OrderItem struct {
	ID          int64  `db:"id" json:"id"`
	OrderID     int64  `db:"order_id" json:"order_id"`
	ProductID   int64  `db:"product_id" json:"product_id"`
	ProductName string `db:"product_name" json:"product_name"`
	Quantity    int    `db:"quantity" json:"quantity"`
	UnitPrice   int64  `db:"unit_price" json:"unit_price"`
	TotalPrice  int64  `db:"total_price" json:"total_price"`
}

// Payment statuses
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// Audit actions
const (
	AuditActionSale         = "sale"
	AuditActionReservation  = "reservation"
	AuditActionRestock      = "restock"
	AuditActionAdjustment   = "adjustment"
	AuditActionPreorder     = "preorder"
	AuditActionCancellation = "cancellation"
	AuditActionRefund       = "refund"
)

// AuditLogEntry is an immutable record of one quantity mutation. Written once,
// never updated or deleted.
type AuditLogEntry struct {
	ID               int64           `db:"id" json:"id"`
	ProductID        int64           `db:"product_id" json:"product_id"`
	ProductName      string          `db:"product_name" json:"product_name"`
	StoreID          int64           `db:"store_id" json:"store_id"`
	Action           string          `db:"action" json:"action"`
	QuantityChange   int             `db:"quantity_change" json:"quantity_change"`
	PreviousQuantity int             `db:"previous_quantity" json:"previous_quantity"`
	NewQuantity      int             `db:"new_quantity" json:"new_quantity"`
	Reason           string          `db:"reason" json:"reason,omitempty"`
	OrderID          int64           `db:"order_id" json:"order_id,omitempty"`
	CustomerName     string          `db:"customer_name" json:"customer_name,omitempty"`
	Cashier          string          `db:"cashier" json:"cashier,omitempty"`
	UserID           int64           `db:"user_id" json:"user_id,omitempty"`
	Metadata         json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// Reservation actions
const (
	ReservationActionReserve = "reserve"
	ReservationActionRelease = "release"
)

// ReservationRequest is an ephemeral cart-level hold request. Not persisted
// as such; successful holds are tracked as CartReservation rows for the reaper.
type ReservationRequest struct {
	StoreID   int64  `json:"store_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Action    string `json:"action"`
}

// CartReservation tracks an outstanding cart hold so abandoned carts can be
// swept back into available stock.
type CartReservation struct {
	ID        int64     `db:"id" json:"id"`
	StoreID   int64     `db:"store_id" json:"store_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ProductSnapshot is the quantity view sent on the pull stream.
type ProductSnapshot struct {
	ProductID         int64     `db:"id" json:"productId"`
	TotalQuantity     int       `db:"total_quantity" json:"totalQuantity"`
	AvailableQuantity int       `db:"available_quantity" json:"availableQuantity"`
	ReservedQuantity  int       `db:"reserved_quantity" json:"reservedQuantity"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}
