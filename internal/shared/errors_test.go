package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsIsMatchesByKind(t *testing.T) {
	err := InsufficientStockf("insufficient stock for SKU %s: requested %d, short %d", "WM-BLK", 5, 2)
	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "WM-BLK")
}

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	inner := NotFoundf("stock record not found")
	wrapped := fmt.Errorf("loading record: %w", inner)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, ErrNotFound))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestConstructorsCarryTheirKind(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{NotFoundf("x"), KindNotFound},
		{InsufficientStockf("x"), KindInsufficientStock},
		{OverReceiptf("x"), KindOverReceipt},
		{InvalidTransitionf("x"), KindInvalidTransition},
		{Conflictf("x"), KindConflict},
		{Validationf("x"), KindValidation},
	}
	for _, tc := range cases {
		require.Equal(t, tc.kind, KindOf(tc.err))
	}
}

func TestPaginationMetadata(t *testing.T) {
	p := NewPagination(2, 30, 65)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 30, p.Offset())

	p = NewPagination(0, 0, 5)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
	assert.Equal(t, 1, p.TotalPages)
}
