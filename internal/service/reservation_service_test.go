package service

import (
	"testing"

	"stock-service/internal/store"

	"github.com/stretchr/testify/assert"
)

func TestAdjustmentGuarded(t *testing.T) {
	// Growing quantity or total never shrinks availability.
	assert.False(t, adjustmentGuarded(store.FieldQuantity, 5))
	assert.False(t, adjustmentGuarded(store.FieldTotalQuantity, 5))

	// Shrinking them can, so those take the guard.
	assert.True(t, adjustmentGuarded(store.FieldQuantity, -5))
	assert.True(t, adjustmentGuarded(store.FieldTotalQuantity, -5))

	// Reserved is guarded in both directions: growing it consumes
	// availability, shrinking it must stop at zero held units.
	assert.True(t, adjustmentGuarded(store.FieldReservedQuantity, 5))
	assert.True(t, adjustmentGuarded(store.FieldReservedQuantity, -5))
}
