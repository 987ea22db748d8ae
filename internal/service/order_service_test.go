package service

import (
	"testing"

	"stock-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestItemsTotal(t *testing.T) {
	items := []models.OrderItem{
		{ProductID: 1, Quantity: 2, UnitPrice: 1000, TotalPrice: 2000},
		{ProductID: 2, Quantity: 1, UnitPrice: 500, TotalPrice: 500},
	}

	assert.Equal(t, int64(2500), itemsTotal(items))
	assert.Equal(t, int64(0), itemsTotal(nil))
}

func TestPolicyFor(t *testing.T) {
	sale := PolicyFor(models.OrderTypeSale)
	assert.Equal(t, models.OrderTypeSale, sale.Name())
	assert.True(t, sale.DeductsAtCreation())
	assert.Equal(t, models.AuditActionSale, sale.AuditAction())

	preorder := PolicyFor(models.OrderTypePreorder)
	assert.Equal(t, models.OrderTypePreorder, preorder.Name())
	assert.False(t, preorder.DeductsAtCreation())
	assert.Equal(t, models.AuditActionPreorder, preorder.AuditAction())

	// Anything unrecognized behaves like a sale; validation rejects it before
	// the policy ever matters.
	assert.True(t, PolicyFor("").DeductsAtCreation())
}

func TestOrderResponse(t *testing.T) {
	order := &models.Order{
		ID:             9,
		Type:           models.OrderTypePreorder,
		Status:         models.OrderStatusPending,
		ApprovalStatus: models.ApprovalApproved,
		TotalAmount:    1500,
	}
	items := []models.OrderItem{{ProductID: 3, Quantity: 1}}

	resp := orderResponse(order, items)

	assert.Equal(t, int64(9), resp.OrderID)
	assert.Equal(t, models.OrderTypePreorder, resp.OrderType)
	assert.Equal(t, models.OrderStatusPending, resp.Status)
	assert.Equal(t, models.ApprovalApproved, resp.ApprovalStatus)
	assert.Equal(t, int64(1500), resp.TotalAmount)
	assert.Len(t, resp.Items, 1)
}
