package models

import "time"

// Kafka event types
const (
	EventTypeStockChanged       = "STOCK_CHANGED"
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
)

// Room event names pushed to store subscribers
const (
	RoomEventInventoryChanged   = "inventory-changed"
	RoomEventStoreStatusChanged = "store-status-changed"
	RoomEventProductDeleted     = "product-deleted"
	RoomEventCartChanged        = "cart-changed"
	RoomEventOrderChanged       = "order-changed"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// StockChangedEvent is published for every quantity mutation the ledger
// applies, whatever triggered it.
type StockChangedEvent struct {
	BaseEvent
	StoreID           int64  `json:"store_id"`
	ProductID         int64  `json:"product_id"`
	Action            string `json:"action"`
	QuantityChange    int    `json:"quantity_change"`
	TotalQuantity     int    `json:"total_quantity"`
	ReservedQuantity  int    `json:"reserved_quantity"`
	AvailableQuantity int    `json:"available_quantity"`
	OrderID           int64  `json:"order_id,omitempty"`
}

// OrderCreatedEvent is published when an order or preorder is created
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	StoreID     int64           `json:"store_id"`
	CustomerID  int64           `json:"customer_id,omitempty"`
	OrderType   string          `json:"order_type"`
	TotalAmount int64           `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent is published on every lifecycle transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID        int64  `json:"order_id"`
	StoreID        int64  `json:"store_id"`
	Status         string `json:"status"`
	ApprovalStatus string `json:"approval_status"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}
