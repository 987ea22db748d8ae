package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"stock-service/internal/broker"
	"stock-service/internal/models"
	"stock-service/internal/redisclient"
	"stock-service/internal/service"
	"stock-service/internal/store"
	"stock-service/internal/util"

	"go.uber.org/zap"
)

// StockEventWorker consumes the stock change feed and keeps the Redis mirror
// in step with the ledger. Replayed events are skipped via the processed
// events table, so at-least-once delivery never double-applies.
type StockEventWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	redis        *redisclient.Client
	logger       *zap.Logger
}

// NewStockEventWorker creates a new stock event worker
func NewStockEventWorker(
	consumer *broker.Consumer,
	st *store.Store,
	redis *redisclient.Client,
) *StockEventWorker {
	w := &StockEventWorker{
		consumer: consumer,
		store:    st,
		redis:    redis,
		logger:   util.NamedLogger("stock-worker"),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnStockChanged(w.handleStockChanged)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *StockEventWorker) Start(ctx context.Context) error {
	log.Println("Starting stock event worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockEventWorker) Stop() error {
	log.Println("Stopping stock event worker...")
	return w.consumer.Close()
}

func (w *StockEventWorker) handleStockChanged(ctx context.Context, event *models.StockChangedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		w.logger.Debug("Skipping replayed event", zap.String("event_id", event.EventID))
		return nil
	}

	if err := w.redis.SetSnapshot(ctx, event.ProductID, event.TotalQuantity, event.ReservedQuantity); err != nil {
		return err
	}

	return w.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

// Reaper sweeps cart holds that outlived their TTL back into available stock.
// A crashed client or abandoned cart can therefore pin stock for at most one
// TTL plus one sweep interval.
type Reaper struct {
	store        *store.Store
	reservations *service.ReservationService
	ttl          time.Duration
	interval     time.Duration
	logger       *zap.Logger

	cancel context.CancelFunc
	done   sync.WaitGroup
}

// NewReaper creates a reaper for holds older than ttl, checked every interval.
func NewReaper(st *store.Store, reservations *service.ReservationService, ttl, interval time.Duration) *Reaper {
	return &Reaper{
		store:        st,
		reservations: reservations,
		ttl:          ttl,
		interval:     interval,
		logger:       util.NamedLogger("reaper"),
	}
}

// Start launches the sweep loop.
func (r *Reaper) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done.Add(1)

	go func() {
		defer r.done.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(ctx)
			}
		}
	}()
}

// Stop stops the sweep loop and waits for an in-flight sweep to finish.
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.done.Wait()
}

// Sweep releases every hold older than the TTL. Each expired hold is released
// through the reservation engine so the mirror, audit trail and subscribers
// see it like any explicit release.
func (r *Reaper) Sweep(ctx context.Context) {
	stale, err := r.store.StaleCartReservations(ctx, time.Now().Add(-r.ttl))
	if err != nil {
		r.logger.Error("Failed to list stale reservations", zap.Error(err))
		return
	}

	for _, hold := range stale {
		if _, err := r.reservations.Release(ctx, hold.StoreID, hold.ProductID, hold.Quantity); err != nil {
			r.logger.Warn("Failed to reap reservation",
				zap.Int64("reservation_id", hold.ID),
				zap.Int64("product_id", hold.ProductID),
				zap.Error(err))
			continue
		}
		// Release consumes outstanding rows FIFO; the expired row may already
		// be gone, deleting by ID covers the case it was not the oldest.
		if err := r.store.DeleteCartReservation(ctx, hold.ID); err != nil {
			r.logger.Warn("Failed to delete reaped reservation",
				zap.Int64("reservation_id", hold.ID), zap.Error(err))
		}

		util.ReservationsReapedTotal.Inc()
		r.logger.Info("Reaped expired cart hold",
			zap.Int64("store_id", hold.StoreID),
			zap.Int64("product_id", hold.ProductID),
			zap.Int("quantity", hold.Quantity),
			zap.Duration("age", time.Since(hold.CreatedAt)))
	}
}
