package service

import "stock-service/internal/models"

// ClaimPolicy decides when an order type takes stock out of the ledger. Sales
// claim at creation; preorders defer the claim until fulfillment so a preorder
// queue can be longer than the stock on hand.
type ClaimPolicy interface {
	Name() string
	DeductsAtCreation() bool
	AuditAction() string
}

// ImmediateClaim deducts stock the moment the order is created.
type ImmediateClaim struct{}

func (ImmediateClaim) Name() string            { return models.OrderTypeSale }
func (ImmediateClaim) DeductsAtCreation() bool { return true }
func (ImmediateClaim) AuditAction() string     { return models.AuditActionSale }

// DeferredClaim records the order without touching stock; the deduction runs
// at fulfillment time.
type DeferredClaim struct{}

func (DeferredClaim) Name() string            { return models.OrderTypePreorder }
func (DeferredClaim) DeductsAtCreation() bool { return false }
func (DeferredClaim) AuditAction() string     { return models.AuditActionPreorder }

// PolicyFor maps an order type to its claim policy. Unknown types fall back
// to the immediate policy, matching the sale default applied at validation.
func PolicyFor(orderType string) ClaimPolicy {
	if orderType == models.OrderTypePreorder {
		return DeferredClaim{}
	}
	return ImmediateClaim{}
}
