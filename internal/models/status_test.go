package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	assert.True(t, CanTransitionStatus(OrderStatusPending, OrderStatusCompleted))
	assert.True(t, CanTransitionStatus(OrderStatusPending, OrderStatusCancelled))

	// Completed and cancelled are terminal.
	assert.False(t, CanTransitionStatus(OrderStatusCompleted, OrderStatusPending))
	assert.False(t, CanTransitionStatus(OrderStatusCompleted, OrderStatusCancelled))
	assert.False(t, CanTransitionStatus(OrderStatusCancelled, OrderStatusPending))
	assert.False(t, CanTransitionStatus(OrderStatusCancelled, OrderStatusCompleted))

	assert.False(t, CanTransitionStatus("bogus", OrderStatusCompleted))
}

func TestApprovalTransitions(t *testing.T) {
	assert.True(t, CanTransitionApproval(ApprovalPending, ApprovalApproved))
	assert.True(t, CanTransitionApproval(ApprovalPending, ApprovalRejected))

	assert.False(t, CanTransitionApproval(ApprovalApproved, ApprovalRejected))
	assert.False(t, CanTransitionApproval(ApprovalRejected, ApprovalApproved))
	assert.False(t, CanTransitionApproval(ApprovalRejected, ApprovalPending))
}

func TestEditable(t *testing.T) {
	order := &Order{Status: OrderStatusPending, ApprovalStatus: ApprovalPending}
	assert.True(t, order.Editable())

	order.ApprovalStatus = ApprovalApproved
	assert.False(t, order.Editable())

	order.Status = OrderStatusCancelled
	order.ApprovalStatus = ApprovalPending
	assert.False(t, order.Editable())
}

func TestCanCancelBlocksDoubleRestore(t *testing.T) {
	// Rejection already cancelled the order and restored its stock. A later
	// cancel must not be allowed, or the stock would come back twice.
	rejected := &Order{
		Type:           OrderTypeSale,
		Status:         OrderStatusCancelled,
		ApprovalStatus: ApprovalRejected,
	}
	assert.False(t, rejected.CanCancel())

	pending := &Order{
		Type:           OrderTypeSale,
		Status:         OrderStatusPending,
		ApprovalStatus: ApprovalPending,
	}
	assert.True(t, pending.CanCancel())

	approved := &Order{
		Type:           OrderTypeSale,
		Status:         OrderStatusPending,
		ApprovalStatus: ApprovalApproved,
	}
	assert.True(t, approved.CanCancel())

	completed := &Order{
		Type:           OrderTypeSale,
		Status:         OrderStatusCompleted,
		ApprovalStatus: ApprovalApproved,
	}
	assert.False(t, completed.CanCancel())
}

func TestCanComplete(t *testing.T) {
	order := &Order{Status: OrderStatusPending, ApprovalStatus: ApprovalPending}
	assert.False(t, order.CanComplete(), "unapproved orders cannot complete")

	order.ApprovalStatus = ApprovalApproved
	assert.True(t, order.CanComplete())

	order.Status = OrderStatusCompleted
	assert.False(t, order.CanComplete())
}

func TestCanFulfill(t *testing.T) {
	preorder := &Order{
		Type:           OrderTypePreorder,
		Status:         OrderStatusPending,
		ApprovalStatus: ApprovalApproved,
	}
	assert.True(t, preorder.CanFulfill())

	preorder.ApprovalStatus = ApprovalPending
	assert.False(t, preorder.CanFulfill(), "unapproved preorders cannot fulfill")

	sale := &Order{
		Type:           OrderTypeSale,
		Status:         OrderStatusPending,
		ApprovalStatus: ApprovalApproved,
	}
	assert.False(t, sale.CanFulfill(), "sales are never fulfilled")
}

func TestClaimsStockAtCreation(t *testing.T) {
	assert.True(t, (&Order{Type: OrderTypeSale}).ClaimsStockAtCreation())
	assert.False(t, (&Order{Type: OrderTypePreorder}).ClaimsStockAtCreation())
}

func TestProductAvailability(t *testing.T) {
	p := &Product{TotalQuantity: 10, ReservedQuantity: 3}
	assert.Equal(t, 7, p.AvailableQuantity())
	assert.True(t, p.CanReserve(7))
	assert.False(t, p.CanReserve(8))

	// Over-reserved snapshots read as negative availability.
	p = &Product{TotalQuantity: 2, ReservedQuantity: 5}
	assert.Equal(t, -3, p.AvailableQuantity())
	assert.False(t, p.CanReserve(1))
}

func TestStoreAccessible(t *testing.T) {
	st := &Store{Status: StoreStatusActive}
	assert.True(t, st.Accessible())

	st.IsLocked = true
	assert.False(t, st.Accessible())

	st = &Store{Status: StoreStatusInactive}
	assert.False(t, st.Accessible())
}
