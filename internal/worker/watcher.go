package worker

import (
	"context"
	"sync"
	"time"

	"stock-service/internal/models"
	"stock-service/internal/realtime"
	"stock-service/internal/store"
	"stock-service/internal/util"

	"go.uber.org/zap"
)

// StoreStatusWatcher polls store records and broadcasts to a store's room
// when its accessibility flips, so connected clients learn about a lock or
// deactivation without reloading.
type StoreStatusWatcher struct {
	store       *store.Store
	broadcaster realtime.Broadcaster
	interval    time.Duration
	logger      *zap.Logger

	lastSeen map[int64]bool
	cancel   context.CancelFunc
	done     sync.WaitGroup
}

// NewStoreStatusWatcher creates a watcher polling every interval.
func NewStoreStatusWatcher(st *store.Store, broadcaster realtime.Broadcaster, interval time.Duration) *StoreStatusWatcher {
	return &StoreStatusWatcher{
		store:       st,
		broadcaster: broadcaster,
		interval:    interval,
		logger:      util.NamedLogger("store-watcher"),
		lastSeen:    make(map[int64]bool),
	}
}

// Start launches the poll loop.
func (w *StoreStatusWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done.Add(1)

	go func() {
		defer w.done.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.poll(ctx)
			}
		}
	}()
}

// Stop stops the poll loop.
func (w *StoreStatusWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.done.Wait()
}

type storeStatusPayload struct {
	StoreID    int64  `json:"storeId"`
	Status     string `json:"status"`
	IsLocked   bool   `json:"isLocked"`
	Accessible bool   `json:"accessible"`
}

func (w *StoreStatusWatcher) poll(ctx context.Context) {
	stores, err := w.store.GetAllStores(ctx)
	if err != nil {
		w.logger.Error("Failed to poll stores", zap.Error(err))
		return
	}

	for i := range stores {
		st := &stores[i]
		accessible := st.Accessible()
		prev, seen := w.lastSeen[st.ID]
		w.lastSeen[st.ID] = accessible

		if !seen || prev == accessible {
			continue
		}

		payload := storeStatusPayload{
			StoreID:    st.ID,
			Status:     st.Status,
			IsLocked:   st.IsLocked,
			Accessible: accessible,
		}
		if err := w.broadcaster.Publish(ctx, st.ID, models.RoomEventStoreStatusChanged, payload); err != nil {
			w.logger.Warn("Failed to broadcast store status",
				zap.Int64("store_id", st.ID), zap.Error(err))
			continue
		}

		w.logger.Info("Store accessibility changed",
			zap.Int64("store_id", st.ID),
			zap.Bool("accessible", accessible))
	}
}
