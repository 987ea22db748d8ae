package service

import (
	"context"
	"time"

	"stock-service/internal/models"
	"stock-service/internal/util"

	"go.uber.org/zap"
)

// AuditSink receives finished audit entries. Satisfied by *store.Store.
type AuditSink interface {
	InsertAuditEntry(ctx context.Context, entry *models.AuditLogEntry) error
}

// Recorder writes audit entries for quantity mutations. Recording is strictly
// best effort: a failed write must never fail or roll back the mutation it
// describes.
type Recorder interface {
	Record(ctx context.Context, entry models.AuditLogEntry)
}

// AsyncRecorder persists entries on a detached goroutine with its own timeout,
// so audit latency and audit outages stay invisible to business operations.
type AsyncRecorder struct {
	sink    AuditSink
	timeout time.Duration
	logger  *zap.Logger
}

// NewAsyncRecorder creates a recorder backed by sink.
func NewAsyncRecorder(sink AuditSink) *AsyncRecorder {
	return &AsyncRecorder{
		sink:    sink,
		timeout: 5 * time.Second,
		logger:  util.NamedLogger("audit"),
	}
}

// Record persists the entry in the background. The caller's context is not
// reused: the business request may already be finished when the write lands.
func (r *AsyncRecorder) Record(_ context.Context, entry models.AuditLogEntry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.sink.InsertAuditEntry(ctx, &entry); err != nil {
			util.AuditRecordFailures.Inc()
			r.logger.Warn("audit record dropped",
				zap.Int64("product_id", entry.ProductID),
				zap.String("action", entry.Action),
				zap.Int("quantity_change", entry.QuantityChange),
				zap.Error(err))
		}
	}()
}
