package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsInsufficientStock(t *testing.T) {
	err := &InsufficientStockError{ProductID: 42, Available: 1, Requested: 3, Reserved: 2}

	ise, ok := IsInsufficientStock(err)
	require.True(t, ok)
	assert.Equal(t, int64(42), ise.ProductID)
	assert.Contains(t, err.Error(), "available=1")
	assert.Contains(t, err.Error(), "requested=3")

	// Still detected through wrapping.
	wrapped := fmt.Errorf("applying reservation: %w", err)
	_, ok = IsInsufficientStock(wrapped)
	assert.True(t, ok)

	_, ok = IsInsufficientStock(ErrProductNotFound)
	assert.False(t, ok)
}

func TestValidationError(t *testing.T) {
	err := ValidationError("product %d not found in store %d", 7, 1)

	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "product 7 not found in store 1")
}
