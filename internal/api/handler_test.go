package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"stock-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name string
		err  error
		code int
	}{
		{"product not found", models.ErrProductNotFound, http.StatusNotFound},
		{"store not found", models.ErrStoreNotFound, http.StatusNotFound},
		{"order not found", models.ErrOrderNotFound, http.StatusNotFound},
		{"store inactive", models.ErrStoreInactive, http.StatusForbidden},
		{"invalid action", models.ErrInvalidAction, http.StatusBadRequest},
		{"validation", models.ValidationError("quantity must be at least 1"), http.StatusBadRequest},
		{"not editable", models.ErrOrderNotEditable, http.StatusNotFound},
		{"invalid transition", models.ErrInvalidTransition, http.StatusConflict},
		{"wrapped sentinel", fmt.Errorf("loading order: %w", models.ErrOrderNotFound), http.StatusNotFound},
		{"wrapped not editable", fmt.Errorf("editing order: %w", models.ErrOrderNotEditable), http.StatusNotFound},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			writeError(c, tc.err)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestWriteErrorInsufficientStockPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeError(c, &models.InsufficientStockError{
		ProductID: 3,
		Available: 1,
		Requested: 4,
		Reserved:  2,
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(3), body["product_id"])
	assert.Equal(t, float64(1), body["available_quantity"])
	assert.Equal(t, float64(4), body["requested_quantity"])
	assert.Equal(t, float64(2), body["reserved_quantity"])
}

func TestUnknownErrorsStayOpaque(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeError(c, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
}
