// Package order models the slice of the marketplace order this service
// reads (delivery window, payment reference, totals) and the terminal
// status it writes on an approved cancellation.
package order

import (
	"slices"
	"time"
)

type Status string

const (
	StatusActive              Status = "active"
	StatusPaid                Status = "paid"
	StatusAccepted            Status = "accepted"
	StatusCompletedByProvider Status = "completed_by_provider"
	StatusDelivered           Status = "delivered"
	StatusCancelledByAdmin    Status = "cancelled_by_admin"
)

// voluntaryCancellation lists the statuses in which a customer may still
// cancel before the delivery deadline has passed.
var voluntaryCancellation = []Status{
	StatusActive,
	StatusPaid,
	StatusAccepted,
	StatusCompletedByProvider,
}

func (s Status) AllowsVoluntaryCancellation() bool {
	return slices.Contains(voluntaryCancellation, s)
}

type Order struct {
	ID               string     `json:"orderId"`
	CustomerID       string     `json:"customerId"`
	ProviderID       string     `json:"providerId"`
	Status           Status     `json:"status"`
	TotalAmount      int64      `json:"totalAmount"`
	PaymentReference string     `json:"paymentReference"`
	DeliveryStart    *time.Time `json:"deliveryStart,omitempty"`
	DeliveryEnd      *time.Time `json:"deliveryEnd,omitempty"`
	StornoCompleted  *time.Time `json:"stornoCompletedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	LastUpdatedAt    time.Time  `json:"lastUpdatedAt"`
}

// DeliveryWindowEnd returns the agreed delivery deadline date, falling back
// to the window start when no end is set. ok is false when the order carries
// no delivery window at all.
func (o Order) DeliveryWindowEnd() (time.Time, bool) {
	if o.DeliveryEnd != nil {
		return *o.DeliveryEnd, true
	}
	if o.DeliveryStart != nil {
		return *o.DeliveryStart, true
	}
	return time.Time{}, false
}
