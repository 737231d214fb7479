package purchase

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/shared"
)

func TestValidateTransitionTable(t *testing.T) {
	statuses := []Status{StatusDraft, StatusSent, StatusConfirmed, StatusPartiallyReceived, StatusReceived, StatusCancelled}
	allowed := map[Status]map[Status]bool{
		StatusDraft:             {StatusSent: true, StatusCancelled: true},
		StatusSent:              {StatusConfirmed: true, StatusCancelled: true},
		StatusConfirmed:         {StatusPartiallyReceived: true, StatusReceived: true, StatusCancelled: true},
		StatusPartiallyReceived: {StatusPartiallyReceived: true, StatusReceived: true},
		StatusReceived:          {},
		StatusCancelled:         {},
	}

	for _, from := range statuses {
		for _, to := range statuses {
			err := ValidateTransition(from, to)
			if allowed[from][to] {
				assert.NoError(t, err, "%s -> %s should be allowed", from, to)
			} else {
				require.Error(t, err, "%s -> %s should be rejected", from, to)
				assert.Equal(t, shared.KindInvalidTransition, shared.KindOf(err))
			}
		}
	}
}

func TestTerminalStatesRejectCancellation(t *testing.T) {
	err := ValidateTransition(StatusReceived, StatusCancelled)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Received")

	err = ValidateTransition(StatusCancelled, StatusDraft)
	require.Error(t, err)
}

func TestOrderTotal(t *testing.T) {
	order := Order{Lines: []Line{
		{OrderedQuantity: 3, UnitPrice: decimal.RequireFromString("19.99")},
		{OrderedQuantity: 10, UnitPrice: decimal.RequireFromString("2.50")},
	}}
	assert.True(t, order.Total().Equal(decimal.RequireFromString("84.97")))
}

func TestDeriveStatus(t *testing.T) {
	lineA := uuid.New()
	lineB := uuid.New()
	order := Order{
		Status: StatusConfirmed,
		Lines: []Line{
			{ID: lineA, OrderedQuantity: 10},
			{ID: lineB, OrderedQuantity: 4},
		},
	}

	assert.Equal(t, StatusConfirmed, order.DeriveStatus(), "no progress keeps the current status")

	line, ok := order.LineByID(lineA)
	require.True(t, ok)
	line.ReceivedQuantity = 3
	assert.Equal(t, StatusPartiallyReceived, order.DeriveStatus())

	line.ReceivedQuantity = 10
	other, ok := order.LineByID(lineB)
	require.True(t, ok)
	other.ReceivedQuantity = 4
	assert.Equal(t, StatusReceived, order.DeriveStatus())
}

func TestOutstanding(t *testing.T) {
	line := Line{OrderedQuantity: 10, ReceivedQuantity: 7}
	assert.Equal(t, int64(3), line.Outstanding())
}
