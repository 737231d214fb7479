package purchase

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocklane/stocklane/internal/shared"
)

// Status enumerates the purchase order lifecycle.
type Status string

const (
	StatusDraft             Status = "Draft"
	StatusSent              Status = "Sent"
	StatusConfirmed         Status = "Confirmed"
	StatusPartiallyReceived Status = "Partially Received"
	StatusReceived          Status = "Received"
	StatusCancelled         Status = "Cancelled"
)

// Valid reports whether the status is one of the defined states.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusConfirmed, StatusPartiallyReceived, StatusReceived, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusReceived || s == StatusCancelled
}

// validTransitions is the full transition table. Received and Cancelled are
// terminal. The receiving workflow derives Partially Received/Received from
// line totals and does not go through this table.
var validTransitions = map[Status][]Status{
	StatusDraft:             {StatusSent, StatusCancelled},
	StatusSent:              {StatusConfirmed, StatusCancelled},
	StatusConfirmed:         {StatusPartiallyReceived, StatusReceived, StatusCancelled},
	StatusPartiallyReceived: {StatusPartiallyReceived, StatusReceived},
	StatusReceived:          {},
	StatusCancelled:         {},
}

// ValidateTransition fails with InvalidTransition when requested is not an
// allowed successor of current.
func ValidateTransition(current, requested Status) error {
	for _, next := range validTransitions[current] {
		if next == requested {
			return nil
		}
	}
	return shared.InvalidTransitionf("cannot transition from '%s' to '%s'", current, requested)
}

// Line is one ordered item within a purchase order.
type Line struct {
	ID               uuid.UUID
	ProductID        uuid.UUID
	VariantID        uuid.UUID
	VariantSKU       string
	OrderedQuantity  int64
	UnitPrice        decimal.Decimal
	ReceivedQuantity int64
}

// Outstanding returns the quantity still awaiting delivery.
func (l Line) Outstanding() int64 {
	return l.OrderedQuantity - l.ReceivedQuantity
}

// Subtotal returns orderedQuantity x unitPrice.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.OrderedQuantity))
}

// Order is the purchase order aggregate. Lines are replaceable only while
// Draft; after that only receivedQuantity advances, via the receiving
// workflow. Version guards concurrent edits.
type Order struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	OrderNumber      string
	SupplierID       uuid.UUID
	Lines            []Line
	Status           Status
	TotalAmount      decimal.Decimal
	Notes            string
	ExpectedDelivery time.Time
	CreatedBy        uuid.UUID
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Total recomputes the order total from its lines.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// LineByID returns the order line with the given id.
func (o *Order) LineByID(lineID uuid.UUID) (*Line, bool) {
	for i := range o.Lines {
		if o.Lines[i].ID == lineID {
			return &o.Lines[i], true
		}
	}
	return nil, false
}

// DeriveStatus computes the post-receipt status from line totals: Received
// when every line is fully received, Partially Received when any line has
// progress, otherwise the current status is kept.
func (o *Order) DeriveStatus() Status {
	allReceived := true
	someReceived := false
	for _, line := range o.Lines {
		if line.ReceivedQuantity < line.OrderedQuantity {
			allReceived = false
		}
		if line.ReceivedQuantity > 0 {
			someReceived = true
		}
	}
	switch {
	case len(o.Lines) > 0 && allReceived:
		return StatusReceived
	case someReceived:
		return StatusPartiallyReceived
	default:
		return o.Status
	}
}

// ReceiptItem is one requested receipt against an order line.
type ReceiptItem struct {
	LineID   uuid.UUID
	Quantity int64
}

// ListFilter narrows order listings for a tenant.
type ListFilter struct {
	TenantID   uuid.UUID
	Status     Status
	SupplierID uuid.UUID
	Page       int
	Limit      int
}
