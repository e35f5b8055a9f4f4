package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/xenking/storefront/internal/apperr"
)

// Note authors.
const (
	AuthorAdmin    = "Admin"
	AuthorCustomer = "Customer"
)

// ErrNotCancellable is returned when a customer cancels a shipped or
// finished order.
var ErrNotCancellable = apperr.New(apperr.KindStateConflict, "Order cannot be cancelled at this stage")

// transitionError rejects an order status change outside the lifecycle.
func transitionError(from, to Status) error {
	return apperr.Conflict(
		fmt.Sprintf("Order status cannot change from %s to %s", from, to),
		map[string]string{"from": string(from), "to": string(to)},
	)
}

// UpdateRequest is an admin update. Empty fields are left untouched.
type UpdateRequest struct {
	Status         Status
	ShippingStatus ShippingStatus
	TrackingID     string
	AWBNumber      string
	CourierName    string
	PaymentStatus  PaymentStatus
	TransactionID  string
	Notes          string
}

func (r *UpdateRequest) normalize() {
	r.Status = Status(strings.ToLower(strings.TrimSpace(string(r.Status))))
	r.ShippingStatus = ShippingStatus(strings.ToLower(strings.TrimSpace(string(r.ShippingStatus))))
	r.PaymentStatus = PaymentStatus(strings.ToLower(strings.TrimSpace(string(r.PaymentStatus))))
	r.TrackingID = strings.TrimSpace(r.TrackingID)
	r.AWBNumber = strings.TrimSpace(r.AWBNumber)
	r.CourierName = strings.TrimSpace(r.CourierName)
	r.TransactionID = strings.TrimSpace(r.TransactionID)
	r.Notes = strings.TrimSpace(r.Notes)
}

// validate checks every enum before anything is applied.
func (r *UpdateRequest) validate() error {
	if r.Status != "" && !r.Status.Valid() {
		return apperr.Validation("Invalid order status")
	}
	if r.ShippingStatus != "" && !r.ShippingStatus.Valid() {
		return apperr.Validation("Invalid shipping status")
	}
	if r.PaymentStatus != "" && !r.PaymentStatus.Valid() {
		return apperr.Validation("Invalid payment status")
	}
	return nil
}

// Empty reports whether the request carries no change at all.
func (r *UpdateRequest) Empty() bool {
	return *r == UpdateRequest{}
}

// applyUpdate mutates o according to r and reports what changed. restock is
// true when the order left a stock-holding state for cancelled, in which case
// the caller must restore inventory in the same transaction.
func (o *Order) applyUpdate(r UpdateRequest, now time.Time) (delta StatusDelta, restock bool) {
	delta = StatusDelta{
		PreviousStatus:         o.Status,
		NewStatus:              o.Status,
		PreviousShippingStatus: o.Shipping.Status,
		NewShippingStatus:      o.Shipping.Status,
		AdminNotes:             r.Notes,
	}

	if r.Status != "" && r.Status != o.Status {
		switch r.Status {
		case StatusDelivered:
			o.DeliveredAt = &now
			o.Shipping.ActualDelivery = &now
		case StatusCancelled:
			o.CancelledAt = &now
			if o.Payment.Status == PaymentPaid {
				o.Payment.Status = PaymentRefunded
			}
			restock = o.Status.Cancellable()
		}
		o.Status = r.Status
		delta.NewStatus = r.Status
		delta.HasStatusChanged = true
	}

	if r.ShippingStatus != "" && r.ShippingStatus != o.Shipping.Status {
		if r.ShippingStatus == ShippingShipped {
			eta := now.Add(DeliveryWindow)
			o.Shipping.EstimatedDelivery = &eta
			o.ExpectedDelivery = &eta
		}
		o.Shipping.Status = r.ShippingStatus
		delta.NewShippingStatus = r.ShippingStatus
		delta.HasShippingChanged = true
	}

	if r.TrackingID != "" {
		delta.TrackingAdded = r.TrackingID != o.Shipping.TrackingID
		o.Shipping.TrackingID = r.TrackingID
	}
	if r.AWBNumber != "" {
		o.Shipping.AWBNumber = r.AWBNumber
	}
	if r.CourierName != "" {
		o.Shipping.CourierName = r.CourierName
	}

	if r.PaymentStatus != "" && r.PaymentStatus != o.Payment.Status {
		if r.PaymentStatus == PaymentPaid {
			o.Payment.PaidAt = &now
		}
		o.Payment.Status = r.PaymentStatus
	}
	if r.TransactionID != "" {
		o.Payment.TransactionID = r.TransactionID
	}

	if r.Notes != "" {
		o.AddNote(now, AuthorAdmin, r.Notes)
	}
	o.UpdatedAt = now
	return delta, restock
}

// cancel moves a customer order to cancelled.
func (o *Order) cancel(reason string, now time.Time) error {
	if !o.Status.Cancellable() {
		return ErrNotCancellable
	}
	o.Status = StatusCancelled
	o.CancelledAt = &now
	if o.Payment.Status == PaymentPaid {
		o.Payment.Status = PaymentRefunded
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		o.AddNote(now, AuthorCustomer, "Cancellation reason: "+reason)
	}
	o.UpdatedAt = now
	return nil
}
