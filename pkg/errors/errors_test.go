package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidStateTransition_MatchesBusinessRule(t *testing.T) {
	err := InvalidStateTransition("grn", "RECEIVED", "approve")

	assert.True(t, Is(err, ErrInvalidStateTransition))
	assert.True(t, Is(err, ErrBusinessRule))
	assert.Equal(t, http.StatusConflict, err.StatusCode)
	assert.Equal(t, "RECEIVED", err.Details["status"])
}

func TestInsufficientStock_Details(t *testing.T) {
	err := InsufficientStock("p1", "b1", 8, 5)

	assert.Equal(t, "INSUFFICIENT_STOCK", err.Code)
	assert.Equal(t, "8", err.Details["requested"])
	assert.Equal(t, "5", err.Details["available"])
	assert.False(t, IsRetryable(err))
}

func TestIsRetryable(t *testing.T) {
	wrapped := fmt.Errorf("approve transfer: %w", ConcurrencyConflict("lock timeout"))
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(NotFound("lot")))
	assert.False(t, IsRetryable(nil))
}

func TestAs_ExtractsAppError(t *testing.T) {
	wrapped := fmt.Errorf("scan: %w", IntegrityDrift("p1", "b1", map[string]string{"aggregate_available": "7"}))

	var appErr *AppError
	require.True(t, As(wrapped, &appErr))
	assert.Equal(t, "INTEGRITY_DRIFT", appErr.Code)
	assert.Equal(t, "7", appErr.Details["aggregate_available"])
	assert.Equal(t, "p1", appErr.Details["product_id"])
}
