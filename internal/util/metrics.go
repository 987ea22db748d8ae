package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservations_total",
		Help: "Total number of successful stock reservations",
	})

	ReservationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservations_failed_total",
		Help: "Total number of failed stock reservations",
	}, []string{"reason"})

	ReleasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_releases_total",
		Help: "Total number of stock releases",
	})

	ReservationsReapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservations_reaped_total",
		Help: "Total number of stale cart reservations released by the reaper",
	})

	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	}, []string{"type"})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	OrdersEditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_edited_total",
		Help: "Total number of order edits that changed line items",
	})

	OrdersCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled or rejected orders",
	}, []string{"cause"})

	LedgerUpdateLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_update_latency_seconds",
		Help:    "Latency of atomic product quantity updates",
		Buckets: prometheus.DefBuckets,
	})

	AuditRecordFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_record_failures_total",
		Help: "Total number of audit log entries that could not be persisted",
	})

	BroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcasts_total",
		Help: "Total number of room events broadcast",
	}, []string{"event"})

	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stream_clients",
		Help: "Number of currently connected snapshot stream clients",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
