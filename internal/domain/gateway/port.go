// Package gateway defines the payment gateway port. The refund call is the
// only irreversible step in the cancellation pipeline, so every request
// carries an idempotency key to make retries safe.
package gateway

import "context"

//go:generate mockgen -source port.go -destination mock_port.go -package gateway

type Provider interface {
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

type RefundRequest struct {
	// TransactionReference identifies the original charge at the gateway.
	TransactionReference string
	// Amount in minor currency units. Partial refunds are allowed.
	Amount int64
	// IdempotencyKey must be stable across retries of the same storno
	// request so the gateway never refunds twice.
	IdempotencyKey string
	Metadata       map[string]string
}

type RefundResult struct {
	RefundID string
	Status   RefundStatus
}

type RefundStatus string

const (
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusFailed    RefundStatus = "failed"
)
