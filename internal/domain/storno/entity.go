// Package storno implements the order cancellation pipeline: eligibility,
// request submission, the admin review state machine, refund execution and
// the provider score follow-up.
package storno

import (
	"errors"
	"slices"
	"time"
)

// Status is the request state machine. pending and under_review are open;
// approved and rejected are terminal.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
)

var AvailableStatuses = []Status{StatusPending, StatusUnderReview, StatusApproved, StatusRejected}

// OpenStatuses are the states from which an admin decision may still be made.
var OpenStatuses = []Status{StatusPending, StatusUnderReview}

func (s Status) Open() bool {
	return slices.Contains(OpenStatuses, s)
}

func NewStatus(raw string) (Status, error) {
	if slices.Contains(AvailableStatuses, Status(raw)) {
		return Status(raw), nil
	}
	return "", errors.New("invalid storno status")
}

// Type drives the fee policy: overdue cancellations are an unconditional
// right with a full refund, normal ones carry the advisory processing fee.
type Type string

const (
	TypeNormal  Type = "normal"
	TypeOverdue Type = "overdue"
)

// OrderSnapshot is captured at submission so refund computation is insulated
// from concurrent order edits.
type OrderSnapshot struct {
	TotalAmount      int64      `json:"totalAmount"`
	PaymentReference string     `json:"paymentReference"`
	DeliveryStart    *time.Time `json:"deliveryStart,omitempty"`
	DeliveryEnd      *time.Time `json:"deliveryEnd,omitempty"`
}

type Request struct {
	ID         string `json:"id"`
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
	ProviderID string `json:"providerId"`

	Reason   string        `json:"reason"`
	Type     Type          `json:"stornoType"`
	Status   Status        `json:"status"`
	Snapshot OrderSnapshot `json:"orderSnapshot"`

	ReviewedBy *string    `json:"reviewedBy,omitempty"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`
	AdminNotes *string    `json:"adminNotes,omitempty"`

	RefundAmount    *int64  `json:"refundAmount,omitempty"`
	RefundReference *string `json:"refundReference,omitempty"`
	RefundReason    *string `json:"refundReason,omitempty"`
	RejectionReason *string `json:"rejectionReason,omitempty"`

	RequestedAt   time.Time  `json:"requestedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	LastUpdatedAt time.Time  `json:"lastUpdatedAt"`
}

type NewRequest struct {
	OrderID     string
	CustomerID  string
	ProviderID  string
	Reason      string
	Type        Type
	Snapshot    OrderSnapshot
	RequestedAt time.Time
}

// RefundAttempt records the intent to call the payment gateway for a
// request. The deterministic idempotency key lives here; a completed attempt
// whose request is still open marks a crash between the gateway call and the
// status write, picked up by reconciliation.
type RefundAttempt struct {
	StornoRequestID string
	OrderID         string
	IdempotencyKey  string
	Amount          int64
	RefundReference *string
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// Completed reports whether the gateway acknowledged the refund.
func (a RefundAttempt) Completed() bool {
	return a.RefundReference != nil && *a.RefundReference != ""
}

// Stats aggregates the review queue for the admin dashboard.
type Stats struct {
	Pending      int64   `json:"pending"`
	UnderReview  int64   `json:"underReview"`
	Approved     int64   `json:"approved"`
	Rejected     int64   `json:"rejected"`
	Total        int64   `json:"total"`
	ApprovalRate float64 `json:"approvalRate"`
}

// ComputeApprovalRate returns approved/(approved+rejected)*100, and 0.0 when
// nothing has been resolved yet.
func ComputeApprovalRate(approved, rejected int64) float64 {
	resolved := approved + rejected
	if resolved == 0 {
		return 0
	}
	return float64(approved) / float64(resolved) * 100
}
