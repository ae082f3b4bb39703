package messaging

import "time"

// Event types carried in the envelope.
const (
	EventCancellationApproved = "cancellation.approved"
	EventCancellationRejected = "cancellation.rejected"
	EventProviderBlocked      = "provider.blocked"
)

// CancellationDecided is published after a storno request is resolved.
type CancellationDecided struct {
	RequestID       string    `json:"request_id"`
	OrderID         string    `json:"order_id"`
	CustomerID      string    `json:"customer_id"`
	ProviderID      string    `json:"provider_id"`
	Status          string    `json:"status"`
	RefundAmount    *int64    `json:"refund_amount,omitempty"`
	RefundReference *string   `json:"refund_reference,omitempty"`
	DecidedBy       string    `json:"decided_by"`
	DecidedAt       time.Time `json:"decided_at"`
}

// ProviderBlocked is published when the score floor suspends a provider.
type ProviderBlocked struct {
	ProviderID   string    `json:"provider_id"`
	Reason       string    `json:"reason"`
	OverallScore float64   `json:"overall_score"`
	BlockedAt    time.Time `json:"blocked_at"`
}
