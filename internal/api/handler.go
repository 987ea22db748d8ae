package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"stock-service/internal/models"
	"stock-service/internal/realtime"
	"stock-service/internal/redisclient"
	"stock-service/internal/service"
	"stock-service/internal/store"
	"stock-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService       *service.OrderService
	reservationService *service.ReservationService
	stream             *realtime.StreamHandler
	db                 *store.Store
	redis              *redisclient.Client
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orderService *service.OrderService,
	reservationService *service.ReservationService,
	stream *realtime.StreamHandler,
	db *store.Store,
	redis *redisclient.Client,
) *Handler {
	return &Handler{
		orderService:       orderService,
		reservationService: reservationService,
		stream:             stream,
		db:                 db,
		redis:              redis,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/reservations", h.applyReservation)

		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.PUT("/orders/:id", h.editOrder)
		v1.POST("/orders/:id/approve", h.transition(h.orderService.ApproveOrder))
		v1.POST("/orders/:id/reject", h.transition(h.orderService.RejectOrder))
		v1.POST("/orders/:id/cancel", h.transition(h.orderService.CancelOrder))
		v1.POST("/orders/:id/complete", h.transition(h.orderService.CompleteOrder))
		v1.POST("/orders/:id/fulfill", h.transition(h.orderService.FulfillOrder))

		v1.POST("/products/:id/adjust", h.adjustStock)
		v1.GET("/products/:id/audit", h.getProductAudit)
		v1.GET("/products/:id/availability", h.getAvailability)

		v1.GET("/stream", h.stream.Snapshots)
		v1.GET("/stores/:id/events", h.stream.RoomEvents)
		v1.GET("/stores/:id/orders", h.getStoreOrders)
		v1.GET("/stores/:id/products", h.getStoreProducts)
		v1.GET("/stores/resolve/:name", h.resolveStore)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when both backing stores answer
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.GetDB().PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "dependency": "postgres"})
		return
	}
	if err := h.redis.GetClient().Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "dependency": "redis"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// applyReservation handles cart-level reserve and release requests
func (h *Handler) applyReservation(c *gin.Context) {
	var req models.ReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	res, err := h.reservationService.Apply(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id":         res.ProductID,
		"total_quantity":     res.TotalQuantity,
		"reserved_quantity":  res.ReservedQuantity,
		"available_quantity": res.Available(),
	})
}

// createOrder handles order and preorder creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, items, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

// editOrder replaces a pending order's items
func (h *Handler) editOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.EditOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.orderService.EditOrder(c.Request.Context(), orderID, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// transition adapts a lifecycle method to a POST handler.
func (h *Handler) transition(fn func(context.Context, int64) (*service.OrderResponse, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := pathID(c, "id")
		if !ok {
			return
		}

		resp, err := fn(c.Request.Context(), orderID)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// getAvailability serves the cached quantity view with a ledger fallback
func (h *Handler) getAvailability(c *gin.Context) {
	productID, ok := pathID(c, "id")
	if !ok {
		return
	}

	snap, err := h.reservationService.ProductAvailability(c.Request.Context(), productID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id":         productID,
		"total_quantity":     snap.Total,
		"reserved_quantity":  snap.Reserved,
		"available_quantity": snap.Available,
	})
}

// getStoreProducts lists a store's catalog
func (h *Handler) getStoreProducts(c *gin.Context) {
	storeID, ok := pathID(c, "id")
	if !ok {
		return
	}

	products, err := h.reservationService.StoreProducts(c.Request.Context(), storeID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": products})
}

// getStoreOrders lists a store's orders
func (h *Handler) getStoreOrders(c *gin.Context) {
	storeID, ok := pathID(c, "id")
	if !ok {
		return
	}

	orders, err := h.orderService.GetStoreOrders(c.Request.Context(), storeID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

type adjustStockRequest struct {
	StoreID int64  `json:"store_id" binding:"required"`
	Field   string `json:"field" binding:"required"`
	Delta   int    `json:"delta" binding:"required"`
	Reason  string `json:"reason"`
}

// adjustStock applies an admin restock or correction
func (h *Handler) adjustStock(c *gin.Context) {
	productID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req adjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	res, err := h.reservationService.AdjustStock(c.Request.Context(), req.StoreID, productID, req.Field, req.Delta, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id":         res.ProductID,
		"quantity":           res.Quantity,
		"total_quantity":     res.TotalQuantity,
		"reserved_quantity":  res.ReservedQuantity,
		"available_quantity": res.Available(),
	})
}

// getProductAudit lists a product's audit trail
func (h *Handler) getProductAudit(c *gin.Context) {
	productID, ok := pathID(c, "id")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.reservationService.ProductAuditTrail(c.Request.Context(), productID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// resolveStore maps a store name to its ID and accessibility
func (h *Handler) resolveStore(c *gin.Context) {
	st, err := h.reservationService.ResolveStore(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         st.ID,
		"name":       st.Name,
		"status":     st.Status,
		"is_locked":  st.IsLocked,
		"accessible": st.Accessible(),
	})
}

func pathID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param})
		return 0, false
	}
	return id, true
}

// writeError maps the error taxonomy to status codes. Stock shortfalls carry
// the observed quantities so the client can render them; only errors outside
// the taxonomy become a 500.
func writeError(c *gin.Context, err error) {
	if ise, ok := models.IsInsufficientStock(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":              "Insufficient stock",
			"product_id":         ise.ProductID,
			"available_quantity": ise.Available,
			"requested_quantity": ise.Requested,
			"reserved_quantity":  ise.Reserved,
		})
		return
	}

	switch {
	case errors.Is(err, models.ErrProductNotFound),
		errors.Is(err, models.ErrStoreNotFound),
		errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrOrderNotEditable):
		// A non-editable order reads the same as a missing one.
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrStoreInactive):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrInvalidAction):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
