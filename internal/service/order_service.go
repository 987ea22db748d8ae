package service

import (
	"context"
	"fmt"
	"time"

	"stock-service/internal/broker"
	"stock-service/internal/models"
	"stock-service/internal/realtime"
	"stock-service/internal/redisclient"
	"stock-service/internal/store"
	"stock-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService runs the order and preorder lifecycle on top of the
// reservation engine. Status moves pending -> completed | cancelled, approval
// moves pending -> approved | rejected, and stock flows only through the
// transitions that the claim policy says touch it.
type OrderService struct {
	store          *store.Store
	redis          *redisclient.Client
	reservations   *ReservationService
	eventPublisher *broker.EventPublisher
	broadcaster    realtime.Broadcaster
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	st *store.Store,
	redis *redisclient.Client,
	reservations *ReservationService,
	eventPublisher *broker.EventPublisher,
	broadcaster realtime.Broadcaster,
) *OrderService {
	return &OrderService{
		store:          st,
		redis:          redis,
		reservations:   reservations,
		eventPublisher: eventPublisher,
		broadcaster:    broadcaster,
		logger:         util.NamedLogger("orders"),
	}
}

// CreateOrderRequest represents a request to create an order or preorder
type CreateOrderRequest struct {
	StoreID        int64              `json:"store_id" binding:"required"`
	CustomerID     int64              `json:"customer_id"`
	OrderType      string             `json:"order_type"`
	Items          []OrderItemRequest `json:"items" binding:"required,min=1"`
	Notes          string             `json:"notes"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// EditOrderRequest replaces an order's line items wholesale
type EditOrderRequest struct {
	Items []OrderItemRequest `json:"items" binding:"required,min=1"`
	Notes string             `json:"notes"`
}

// OrderResponse represents the order state returned to clients
type OrderResponse struct {
	OrderID        int64              `json:"order_id"`
	OrderType      string             `json:"order_type"`
	Status         string             `json:"status"`
	ApprovalStatus string             `json:"approval_status"`
	TotalAmount    int64              `json:"total_amount"`
	Items          []models.OrderItem `json:"items,omitempty"`
}

func orderResponse(order *models.Order, items []models.OrderItem) *OrderResponse {
	return &OrderResponse{
		OrderID:        order.ID,
		OrderType:      order.Type,
		Status:         order.Status,
		ApprovalStatus: order.ApprovalStatus,
		TotalAmount:    order.TotalAmount,
		Items:          items,
	}
}

// CreateOrder creates a new order. Sales take their stock here, atomically
// across all lines; preorders only record the claim. Replays with the same
// idempotency key return the first outcome instead of deducting twice.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	existingOrder, err := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existingOrder != nil {
		s.logger.Info("Duplicate order request detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("order_id", existingOrder.ID))
		if seen, rerr := s.redis.CheckIdempotencyKey(ctx, req.IdempotencyKey); rerr == nil && !seen {
			// marker expired before the replay arrived; repopulate it
			_ = s.redis.SetIdempotencyKey(ctx, req.IdempotencyKey, existingOrder.ID, 24*time.Hour)
		}
		items, _ := s.store.GetOrderItemsByOrderID(ctx, existingOrder.ID)
		return orderResponse(existingOrder, items), nil
	}

	st, err := s.store.GetStoreByID(ctx, req.StoreID)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("store_not_found").Inc()
		return nil, err
	}
	if !st.Accessible() {
		util.OrdersFailedTotal.WithLabelValues("store_inactive").Inc()
		return nil, models.ErrStoreInactive
	}

	if req.OrderType == "" {
		req.OrderType = models.OrderTypeSale
	}
	if req.OrderType != models.OrderTypeSale && req.OrderType != models.OrderTypePreorder {
		util.OrdersFailedTotal.WithLabelValues("invalid_type").Inc()
		return nil, models.ValidationError("unknown order type %q", req.OrderType)
	}
	policy := PolicyFor(req.OrderType)

	items, err := s.buildOrderItems(ctx, req.StoreID, req.OrderType, req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	order := &models.Order{
		StoreID:        req.StoreID,
		CustomerID:     req.CustomerID,
		Type:           req.OrderType,
		Status:         models.OrderStatusPending,
		ApprovalStatus: models.ApprovalPending,
		PaymentStatus:  models.PaymentStatusPending,
		TotalAmount:    itemsTotal(items),
		Notes:          req.Notes,
		IdempotencyKey: req.IdempotencyKey,
	}

	if err := s.store.CreateOrderTx(ctx, order, items); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if policy.DeductsAtCreation() {
		_, err := s.reservations.CommitOrderDeduction(ctx, order, items, policy.AuditAction())
		if err != nil {
			// The deduction transaction rolled back whole; only the order row
			// needs compensating.
			if _, terr := s.store.TransitionOrderTx(ctx, order, nil,
				models.OrderStatusCancelled, order.ApprovalStatus, false); terr != nil {
				s.logger.Error("Failed to cancel order after deduction failure",
					zap.Int64("order_id", order.ID), zap.Error(terr))
			}
			util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, err
		}
	}

	util.OrdersCreatedTotal.WithLabelValues(order.Type).Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("store_id", order.StoreID),
		zap.String("order_type", order.Type),
		zap.Int64("total_amount", order.TotalAmount))

	if err := s.redis.SetIdempotencyKey(ctx, req.IdempotencyKey, order.ID, 24*time.Hour); err != nil {
		s.logger.Warn("Failed to cache idempotency key", zap.Error(err))
	}

	s.publishOrderCreated(ctx, order, items)
	s.broadcastOrderChanged(ctx, order)

	return orderResponse(order, items), nil
}

// EditOrder replaces the order's items while it is still fully pending. For
// orders that already claimed stock, the old claim is released and the new one
// taken as one net adjustment per product; a shortfall anywhere aborts the
// whole edit.
func (s *OrderService) EditOrder(ctx context.Context, orderID int64, req *EditOrderRequest) (*OrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.EditOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Editable() {
		return nil, models.ErrOrderNotEditable
	}

	newItems, err := s.buildOrderItems(ctx, order.StoreID, order.Type, req.Items)
	if err != nil {
		return nil, err
	}

	oldItems, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	order.TotalAmount = itemsTotal(newItems)
	if req.Notes != "" {
		order.Notes = req.Notes
	}

	changes, err := s.store.ReplaceOrderItemsTx(ctx, order, oldItems, newItems, order.ClaimsStockAtCreation())
	if err != nil {
		return nil, err
	}

	util.OrdersEditedTotal.Inc()
	s.logger.Info("Order edited",
		zap.Int64("order_id", order.ID),
		zap.Int("items", len(newItems)),
		zap.Int("stock_adjustments", len(changes)))

	s.reservations.PublishLedgerChanges(ctx, order, changes,
		models.AuditActionAdjustment, fmt.Sprintf("order #%d edited", order.ID))
	s.broadcastOrderChanged(ctx, order)

	return orderResponse(order, newItems), nil
}

// ApproveOrder marks a pending order approved. Stock is untouched; approval
// only unlocks completion and fulfillment.
func (s *OrderService) ApproveOrder(ctx context.Context, orderID int64) (*OrderResponse, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanApprove() {
		return nil, models.ErrInvalidTransition
	}

	if _, err := s.store.TransitionOrderTx(ctx, order, nil,
		order.Status, models.ApprovalApproved, false); err != nil {
		return nil, err
	}

	s.logger.Info("Order approved", zap.Int64("order_id", order.ID))
	s.publishStatusChanged(ctx, order)
	s.broadcastOrderChanged(ctx, order)
	return orderResponse(order, nil), nil
}

// RejectOrder rejects and terminally cancels a pending order. Stock claimed
// at creation comes back; the cancelled status then blocks any further
// restore, so rejection can never refund twice.
func (s *OrderService) RejectOrder(ctx context.Context, orderID int64) (*OrderResponse, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanReject() {
		return nil, models.ErrInvalidTransition
	}

	return s.cancelWithRestore(ctx, order, models.ApprovalRejected, "rejected")
}

// CancelOrder cancels an order that has not completed and was not already
// rejected.
func (s *OrderService) CancelOrder(ctx context.Context, orderID int64) (*OrderResponse, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanCancel() {
		return nil, models.ErrInvalidTransition
	}

	return s.cancelWithRestore(ctx, order, order.ApprovalStatus, "cancelled")
}

func (s *OrderService) cancelWithRestore(ctx context.Context, order *models.Order, approval, cause string) (*OrderResponse, error) {
	restore := order.ClaimsStockAtCreation() && order.Status == models.OrderStatusPending

	var items []models.OrderItem
	if restore {
		var err error
		items, err = s.store.GetOrderItemsByOrderID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
	}

	changes, err := s.store.TransitionOrderTx(ctx, order, items,
		models.OrderStatusCancelled, approval, restore)
	if err != nil {
		return nil, err
	}

	util.OrdersCancelledTotal.WithLabelValues(cause).Inc()
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", order.ID),
		zap.String("cause", cause),
		zap.Bool("stock_restored", restore))

	s.reservations.PublishLedgerChanges(ctx, order, changes,
		models.AuditActionCancellation, fmt.Sprintf("order #%d %s", order.ID, cause))
	s.publishStatusChanged(ctx, order)
	s.broadcastOrderChanged(ctx, order)
	return orderResponse(order, items), nil
}

// CompleteOrder closes out an approved sale. The stock already moved at
// creation, so this is a pure status transition.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID int64) (*OrderResponse, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Type != models.OrderTypeSale || !order.CanComplete() {
		return nil, models.ErrInvalidTransition
	}

	if _, err := s.store.TransitionOrderTx(ctx, order, nil,
		models.OrderStatusCompleted, order.ApprovalStatus, false); err != nil {
		return nil, err
	}

	s.logger.Info("Order completed", zap.Int64("order_id", order.ID))
	s.publishStatusChanged(ctx, order)
	s.broadcastOrderChanged(ctx, order)
	return orderResponse(order, nil), nil
}

// FulfillOrder is the deferred deduction point for approved preorders: the
// guarded deduction for every line and the completion commit together. A
// shortfall leaves the preorder approved and pending for a later retry.
func (s *OrderService) FulfillOrder(ctx context.Context, orderID int64) (*OrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.FulfillOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanFulfill() {
		return nil, models.ErrInvalidTransition
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	changes, err := s.store.FulfillOrderTx(ctx, order, items)
	if err != nil {
		if _, ok := models.IsInsufficientStock(err); ok {
			util.OrdersFailedTotal.WithLabelValues("fulfill_insufficient_stock").Inc()
		}
		return nil, err
	}

	s.logger.Info("Preorder fulfilled",
		zap.Int64("order_id", order.ID),
		zap.Int("items", len(items)))

	s.reservations.PublishLedgerChanges(ctx, order, changes,
		models.AuditActionPreorder, fmt.Sprintf("preorder #%d fulfilled", order.ID))
	s.publishStatusChanged(ctx, order)
	s.broadcastOrderChanged(ctx, order)
	return orderResponse(order, items), nil
}

// GetOrder retrieves an order and its items
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

// GetStoreOrders lists a store's orders, newest first.
func (s *OrderService) GetStoreOrders(ctx context.Context, storeID int64) ([]models.Order, error) {
	return s.store.GetOrdersByStore(ctx, storeID)
}

// buildOrderItems validates requested items against the store's catalog and
// prices them. Every product must exist, belong to the store, and, for
// preorders, be open for preorder.
func (s *OrderService) buildOrderItems(ctx context.Context, storeID int64, orderType string, reqs []OrderItemRequest) ([]models.OrderItem, error) {
	productIDs := make([]int64, len(reqs))
	for i, item := range reqs {
		if item.Quantity < 1 {
			return nil, models.ValidationError("quantity for product %d must be at least 1", item.ProductID)
		}
		productIDs[i] = item.ProductID
	}

	products, err := s.store.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	productMap := make(map[int64]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	items := make([]models.OrderItem, 0, len(reqs))
	for _, req := range reqs {
		product, ok := productMap[req.ProductID]
		if !ok || product.StoreID != storeID {
			return nil, models.ValidationError("product %d not found in store %d", req.ProductID, storeID)
		}
		if orderType == models.OrderTypePreorder && !product.AvailableForPreorder {
			return nil, models.ValidationError("product %d is not available for preorder", req.ProductID)
		}
		items = append(items, models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    req.Quantity,
			UnitPrice:   product.UnitPrice,
			TotalPrice:  product.UnitPrice * int64(req.Quantity),
		})
	}
	return items, nil
}

func itemsTotal(items []models.OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += item.TotalPrice
	}
	return total
}

func (s *OrderService) publishOrderCreated(ctx context.Context, order *models.Order, items []models.OrderItem) {
	eventItems := make([]models.OrderItemData, 0, len(items))
	for _, item := range items {
		eventItems = append(eventItems, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		StoreID:     order.StoreID,
		CustomerID:  order.CustomerID,
		OrderType:   order.Type,
		TotalAmount: order.TotalAmount,
		Items:       eventItems,
	}
	if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
}

func (s *OrderService) publishStatusChanged(ctx context.Context, order *models.Order) {
	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID:        order.ID,
		StoreID:        order.StoreID,
		Status:         order.Status,
		ApprovalStatus: order.ApprovalStatus,
	}
	if err := s.eventPublisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}
}

type orderChangedPayload struct {
	OrderID        int64  `json:"orderId"`
	OrderType      string `json:"orderType"`
	Status         string `json:"status"`
	ApprovalStatus string `json:"approvalStatus"`
}

func (s *OrderService) broadcastOrderChanged(ctx context.Context, order *models.Order) {
	payload := orderChangedPayload{
		OrderID:        order.ID,
		OrderType:      order.Type,
		Status:         order.Status,
		ApprovalStatus: order.ApprovalStatus,
	}
	if err := s.broadcaster.Publish(ctx, order.StoreID, models.RoomEventOrderChanged, payload); err != nil {
		s.logger.Warn("Broadcast failed",
			zap.String("event", models.RoomEventOrderChanged),
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}
