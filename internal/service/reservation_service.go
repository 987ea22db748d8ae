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

// ReservationService is the reservation engine: cart-level holds on top of
// the stock ledger, plus the order-time deduction used by sales and preorder
// fulfillment. The database's guarded update is the only arbiter; everything
// after a successful update (cache mirror, audit, broadcast, event feed) is
// best effort and never rolls the ledger back.
type ReservationService struct {
	store          *store.Store
	redis          *redisclient.Client
	audit          Recorder
	broadcaster    realtime.Broadcaster
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewReservationService creates a new reservation service
func NewReservationService(
	st *store.Store,
	redis *redisclient.Client,
	audit Recorder,
	broadcaster realtime.Broadcaster,
	eventPublisher *broker.EventPublisher,
) *ReservationService {
	return &ReservationService{
		store:          st,
		redis:          redis,
		audit:          audit,
		broadcaster:    broadcaster,
		eventPublisher: eventPublisher,
		logger:         util.NamedLogger("reservation"),
	}
}

// Apply dispatches a reservation request to reserve or release.
func (s *ReservationService) Apply(ctx context.Context, req *models.ReservationRequest) (*store.LedgerResult, error) {
	if req.Quantity < 1 {
		return nil, models.ValidationError("quantity must be at least 1")
	}

	switch req.Action {
	case models.ReservationActionReserve:
		return s.Reserve(ctx, req.StoreID, req.ProductID, req.Quantity)
	case models.ReservationActionRelease:
		return s.Release(ctx, req.StoreID, req.ProductID, req.Quantity)
	default:
		return nil, models.ErrInvalidAction
	}
}

// Reserve places a cart hold: reserved_quantity grows by quantity if and only
// if availability stays non-negative. Two carts racing for the last unit are
// serialized by the guarded update, not by anything in this process.
func (s *ReservationService) Reserve(ctx context.Context, storeID, productID int64, quantity int) (*store.LedgerResult, error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.Reserve")
	defer span.End()

	st, err := s.store.GetStoreByID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if !st.Accessible() {
		util.ReservationsFailedTotal.WithLabelValues("store_inactive").Inc()
		return nil, models.ErrStoreInactive
	}

	product, err := s.store.GetProductForStore(ctx, productID, storeID)
	if err != nil {
		util.ReservationsFailedTotal.WithLabelValues("product_not_found").Inc()
		return nil, err
	}
	if !product.AvailableForPreorder {
		util.ReservationsFailedTotal.WithLabelValues("not_preorderable").Inc()
		return nil, models.ValidationError("product %d does not accept holds", productID)
	}

	// Advisory pre-check. Saves a write on the obvious shortfall but proves
	// nothing; the guarded update below decides.
	if !product.CanReserve(quantity) {
		util.ReservationsFailedTotal.WithLabelValues("insufficient_stock").Inc()
		return nil, &models.InsufficientStockError{
			ProductID: productID,
			Available: product.AvailableQuantity(),
			Requested: quantity,
			Reserved:  product.ReservedQuantity,
		}
	}

	res, err := s.store.AdjustGuarded(ctx, productID, store.FieldReservedQuantity, quantity, 0)
	if err != nil {
		if _, ok := models.IsInsufficientStock(err); ok {
			util.ReservationsFailedTotal.WithLabelValues("insufficient_stock").Inc()
		}
		return nil, err
	}

	util.ReservationsTotal.Inc()
	s.logger.Info("Stock reserved",
		zap.Int64("store_id", storeID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Int("available", res.Available()))

	if err := s.store.InsertCartReservation(ctx, storeID, productID, quantity); err != nil {
		s.logger.Warn("Failed to track cart reservation", zap.Int64("product_id", productID), zap.Error(err))
	}

	ok, err := s.redis.MirrorReserve(ctx, productID, quantity)
	if err != nil {
		s.logger.Warn("Redis mirror reserve failed", zap.Int64("product_id", productID), zap.Error(err))
	} else if !ok {
		// Mirror disagreed with the ledger; the ledger wins, resync the mirror.
		s.resyncMirror(ctx, res)
	}

	s.audit.Record(ctx, models.AuditLogEntry{
		ProductID:        productID,
		ProductName:      res.ProductName,
		StoreID:          storeID,
		Action:           models.AuditActionReservation,
		QuantityChange:   -quantity,
		PreviousQuantity: res.Available() + quantity,
		NewQuantity:      res.Available(),
		Reason:           "cart hold placed",
	})

	s.broadcastCartChanged(ctx, storeID, productID, quantity, models.ReservationActionReserve)
	s.broadcastInventory(ctx, res)
	s.publishStockChanged(ctx, res, models.ReservationActionReserve, -quantity, 0)

	return res, nil
}

// Release gives a cart hold back. Releasing more than is held clamps at zero
// rather than failing, so a stale cart can always be cleaned up.
func (s *ReservationService) Release(ctx context.Context, storeID, productID int64, quantity int) (*store.LedgerResult, error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.Release")
	defer span.End()

	if _, err := s.store.GetProductForStore(ctx, productID, storeID); err != nil {
		return nil, err
	}

	res, applied, err := s.store.ReleaseReserved(ctx, productID, quantity)
	if err != nil {
		return nil, err
	}

	util.ReleasesTotal.Inc()

	if err := s.store.ConsumeCartReservations(ctx, storeID, productID, quantity); err != nil {
		s.logger.Warn("Failed to consume cart reservations", zap.Int64("product_id", productID), zap.Error(err))
	}
	if err := s.redis.MirrorRelease(ctx, productID, applied); err != nil {
		s.logger.Warn("Redis mirror release failed", zap.Int64("product_id", productID), zap.Error(err))
	}

	// The clamp may have released less than requested; the audit entry and
	// downstream consumers see the applied amount, not the ask.
	s.audit.Record(ctx, models.AuditLogEntry{
		ProductID:        productID,
		ProductName:      res.ProductName,
		StoreID:          storeID,
		Action:           models.AuditActionReservation,
		QuantityChange:   applied,
		PreviousQuantity: res.Available() - applied,
		NewQuantity:      res.Available(),
		Reason:           "cart hold released",
	})

	s.broadcastCartChanged(ctx, storeID, productID, applied, models.ReservationActionRelease)
	s.broadcastInventory(ctx, res)
	s.publishStockChanged(ctx, res, models.ReservationActionRelease, applied, 0)

	return res, nil
}

// AdjustStock is the admin path: restocks and corrections applied directly to
// one quantity field. Whichever direction can shrink availability or drive a
// counter negative goes through the guard; for reserved_quantity that is both
// directions, since growing it consumes availability and shrinking it must
// stop at zero held units.
func (s *ReservationService) AdjustStock(ctx context.Context, storeID, productID int64, field string, delta int, reason string) (*store.LedgerResult, error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.AdjustStock")
	defer span.End()

	if delta == 0 {
		return nil, models.ValidationError("delta must be non-zero")
	}
	if _, err := s.store.GetProductForStore(ctx, productID, storeID); err != nil {
		return nil, err
	}

	var res *store.LedgerResult
	var err error
	if adjustmentGuarded(field, delta) {
		res, err = s.store.AdjustGuarded(ctx, productID, field, delta, 0)
	} else {
		res, err = s.store.AdjustQuantity(ctx, productID, field, delta)
	}
	if err != nil {
		return nil, err
	}

	action := models.AuditActionAdjustment
	if field == store.FieldTotalQuantity && delta > 0 {
		action = models.AuditActionRestock
	}
	if reason == "" {
		reason = "manual adjustment"
	}

	after := res.TotalQuantity
	switch field {
	case store.FieldQuantity:
		after = res.Quantity
	case store.FieldReservedQuantity:
		after = res.ReservedQuantity
	}

	s.audit.Record(ctx, models.AuditLogEntry{
		ProductID:        productID,
		ProductName:      res.ProductName,
		StoreID:          storeID,
		Action:           action,
		QuantityChange:   delta,
		PreviousQuantity: after - delta,
		NewQuantity:      after,
		Reason:           reason,
	})

	s.resyncMirror(ctx, res)
	s.broadcastInventory(ctx, res)
	s.publishStockChanged(ctx, res, action, delta, 0)

	return res, nil
}

// adjustmentGuarded reports whether an admin adjustment needs the guarded
// update. Shrinking quantity or total_quantity can shrink availability;
// reserved_quantity is unsafe in both directions.
func adjustmentGuarded(field string, delta int) bool {
	return delta < 0 || field == store.FieldReservedQuantity
}

// CommitOrderDeduction converts an order's line items into permanent stock
// deductions, all items in one transaction. Shortfall on any line leaves the
// ledger untouched and surfaces the insufficient stock error for that line.
func (s *ReservationService) CommitOrderDeduction(ctx context.Context, order *models.Order, items []models.OrderItem, action string) ([]store.LedgerChange, error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.CommitOrderDeduction")
	defer span.End()

	changes, err := s.store.DeductOrderItemsTx(ctx, items)
	if err != nil {
		return nil, err
	}

	s.PublishLedgerChanges(ctx, order, changes, action, fmt.Sprintf("order #%d", order.ID))
	return changes, nil
}

// StoreProducts lists a store's catalog with current quantities.
func (s *ReservationService) StoreProducts(ctx context.Context, storeID int64) ([]models.Product, error) {
	if _, err := s.store.GetStoreByID(ctx, storeID); err != nil {
		return nil, err
	}
	return s.store.GetProductsByStore(ctx, storeID)
}

// ProductAvailability reads a product's quantity snapshot, Redis first with a
// ledger fallback. Advisory by nature; reservation decisions never read it.
func (s *ReservationService) ProductAvailability(ctx context.Context, productID int64) (*redisclient.Snapshot, error) {
	snap, err := s.redis.GetSnapshot(ctx, productID)
	if err != nil {
		s.logger.Warn("Redis snapshot read failed", zap.Int64("product_id", productID), zap.Error(err))
	}
	if snap != nil {
		return snap, nil
	}

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := s.redis.SetSnapshot(ctx, productID, product.TotalQuantity, product.ReservedQuantity); err != nil {
		s.logger.Warn("Redis snapshot backfill failed", zap.Int64("product_id", productID), zap.Error(err))
	}
	return &redisclient.Snapshot{
		Total:     product.TotalQuantity,
		Reserved:  product.ReservedQuantity,
		Available: product.AvailableQuantity(),
	}, nil
}

// ProductAuditTrail lists a product's recorded quantity mutations, newest
// first.
func (s *ReservationService) ProductAuditTrail(ctx context.Context, productID int64, limit int) ([]models.AuditLogEntry, error) {
	if _, err := s.store.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}
	return s.store.GetAuditEntriesByProduct(ctx, productID, limit)
}

// SyncSnapshots rewrites every product's Redis snapshot from the ledger.
// Run at boot so the mirror never serves numbers from a previous life.
func (s *ReservationService) SyncSnapshots(ctx context.Context) error {
	products, err := s.store.GetAllProducts(ctx)
	if err != nil {
		return err
	}

	for i := range products {
		p := &products[i]
		if err := s.redis.SetSnapshot(ctx, p.ID, p.TotalQuantity, p.ReservedQuantity); err != nil {
			return err
		}
	}

	s.logger.Info("Stock snapshots synced to Redis", zap.Int("products", len(products)))
	return nil
}

// ResolveStore looks a store up by URL-friendly name and reports whether it
// currently accepts orders.
func (s *ReservationService) ResolveStore(ctx context.Context, name string) (*models.Store, error) {
	return s.store.GetStoreByName(ctx, name)
}

// PublishLedgerChanges runs the best-effort tail shared by every committed
// ledger mutation: mirror sync, audit entry, room broadcast and feed event per
// affected product.
func (s *ReservationService) PublishLedgerChanges(ctx context.Context, order *models.Order, changes []store.LedgerChange, action, reason string) {
	for _, change := range changes {
		if change.Change < 0 {
			if err := s.redis.MirrorCommit(ctx, change.ProductID, -change.Change); err != nil {
				s.logger.Warn("Redis mirror commit failed", zap.Int64("product_id", change.ProductID), zap.Error(err))
			}
		} else {
			s.resyncMirror(ctx, &change.Result)
		}

		entry := models.AuditLogEntry{
			ProductID:        change.ProductID,
			ProductName:      change.ProductName,
			StoreID:          change.StoreID,
			Action:           action,
			QuantityChange:   change.Change,
			PreviousQuantity: change.PreviousQuantity,
			NewQuantity:      change.NewQuantity,
			Reason:           reason,
		}
		if order != nil {
			entry.OrderID = order.ID
		}
		s.audit.Record(ctx, entry)

		s.broadcastInventory(ctx, &change.Result)

		var orderID int64
		if order != nil {
			orderID = order.ID
		}
		s.publishStockChanged(ctx, &change.Result, action, change.Change, orderID)
	}
}

// resyncMirror overwrites the Redis snapshot with the ledger's authoritative
// numbers.
func (s *ReservationService) resyncMirror(ctx context.Context, res *store.LedgerResult) {
	if err := s.redis.SetSnapshot(ctx, res.ProductID, res.TotalQuantity, res.ReservedQuantity); err != nil {
		s.logger.Warn("Redis snapshot resync failed", zap.Int64("product_id", res.ProductID), zap.Error(err))
	}
}

type inventoryChangedPayload struct {
	ProductID         int64     `json:"productId"`
	Quantity          int       `json:"quantity"`
	TotalQuantity     int       `json:"totalQuantity"`
	AvailableQuantity int       `json:"availableQuantity"`
	ReservedQuantity  int       `json:"reservedQuantity"`
	Timestamp         time.Time `json:"timestamp"`
}

type cartChangedPayload struct {
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
	Action    string `json:"action"`
}

func (s *ReservationService) broadcastInventory(ctx context.Context, res *store.LedgerResult) {
	payload := inventoryChangedPayload{
		ProductID:         res.ProductID,
		Quantity:          res.Quantity,
		TotalQuantity:     res.TotalQuantity,
		AvailableQuantity: res.Available(),
		ReservedQuantity:  res.ReservedQuantity,
		Timestamp:         res.UpdatedAt,
	}
	if err := s.broadcaster.Publish(ctx, res.StoreID, models.RoomEventInventoryChanged, payload); err != nil {
		s.logger.Warn("Broadcast failed",
			zap.String("event", models.RoomEventInventoryChanged),
			zap.Int64("product_id", res.ProductID),
			zap.Error(err))
	}
}

func (s *ReservationService) broadcastCartChanged(ctx context.Context, storeID, productID int64, quantity int, action string) {
	payload := cartChangedPayload{ProductID: productID, Quantity: quantity, Action: action}
	if err := s.broadcaster.Publish(ctx, storeID, models.RoomEventCartChanged, payload); err != nil {
		s.logger.Warn("Broadcast failed",
			zap.String("event", models.RoomEventCartChanged),
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
}

func (s *ReservationService) publishStockChanged(ctx context.Context, res *store.LedgerResult, action string, change int, orderID int64) {
	event := &models.StockChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeStockChanged,
			Timestamp: time.Now(),
		},
		StoreID:           res.StoreID,
		ProductID:         res.ProductID,
		Action:            action,
		QuantityChange:    change,
		TotalQuantity:     res.TotalQuantity,
		ReservedQuantity:  res.ReservedQuantity,
		AvailableQuantity: res.Available(),
		OrderID:           orderID,
	}
	if err := s.eventPublisher.PublishStockChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish StockChanged event", zap.Error(err))
	}
}
