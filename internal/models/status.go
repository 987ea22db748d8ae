package models

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// Approval statuses
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Order types
const (
	OrderTypeSale     = "sale"
	OrderTypePreorder = "preorder"
)

var validStatusNext = map[string]map[string]bool{
	OrderStatusPending:   {OrderStatusCompleted: true, OrderStatusCancelled: true},
	OrderStatusCompleted: {},
	OrderStatusCancelled: {},
}

var validApprovalNext = map[string]map[string]bool{
	ApprovalPending:  {ApprovalApproved: true, ApprovalRejected: true},
	ApprovalApproved: {},
	ApprovalRejected: {},
}

// CanTransitionStatus reports whether an order status transition is legal.
func CanTransitionStatus(from, to string) bool {
	return validStatusNext[from][to]
}

// CanTransitionApproval reports whether an approval transition is legal.
func CanTransitionApproval(from, to string) bool {
	return validApprovalNext[from][to]
}

// Editable reports whether the order's line items may still be changed.
// Only pending orders that have not entered the approval flow qualify.
func (o *Order) Editable() bool {
	return o.Status == OrderStatusPending && o.ApprovalStatus == ApprovalPending
}

// CanApprove reports whether the order may be approved.
func (o *Order) CanApprove() bool {
	return o.Status == OrderStatusPending && CanTransitionApproval(o.ApprovalStatus, ApprovalApproved)
}

// CanReject reports whether the order may be rejected. Rejection also
// cancels the order and restores its stock.
func (o *Order) CanReject() bool {
	return o.Status == OrderStatusPending && CanTransitionApproval(o.ApprovalStatus, ApprovalRejected)
}

// CanComplete reports whether the order may be marked completed.
// Completion never changes quantities; sale stock was taken at creation.
func (o *Order) CanComplete() bool {
	return o.ApprovalStatus == ApprovalApproved && CanTransitionStatus(o.Status, OrderStatusCompleted)
}

// CanCancel reports whether the order may be cancelled. A rejected order has
// already restored its stock, so it cannot be cancelled a second time.
func (o *Order) CanCancel() bool {
	return o.ApprovalStatus != ApprovalRejected && CanTransitionStatus(o.Status, OrderStatusCancelled)
}

// CanFulfill reports whether a preorder may be fulfilled. Fulfillment is the
// point where a deferred claim finally deducts stock.
func (o *Order) CanFulfill() bool {
	return o.Type == OrderTypePreorder &&
		o.ApprovalStatus == ApprovalApproved &&
		CanTransitionStatus(o.Status, OrderStatusCompleted)
}

// ClaimsStockAtCreation reports whether this order's stock was deducted when
// the order was created (sales) as opposed to deferred (preorders).
func (o *Order) ClaimsStockAtCreation() bool {
	return o.Type != OrderTypePreorder
}
