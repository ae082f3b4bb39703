// Package apperror defines the error taxonomy shared by the HTTP layer and
// the domain services. Handlers map these onto status codes in one place.
package apperror

import (
	"errors"
	"fmt"
)

// Validation errors (HTTP 400).
var (
	ErrEmptyReason         = errors.New("reason is required")
	ErrNotEligible         = errors.New("order is not eligible for cancellation")
	ErrInvalidRefundAmount = errors.New("refund amount must be positive and must not exceed the order total")
)

// Not-found errors (HTTP 404).
var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrRequestNotFound = errors.New("storno request not found")
)

// ErrOpenRequestExists is returned when an order already has a pending or
// under-review storno request (HTTP 409).
var ErrOpenRequestExists = errors.New("an open storno request already exists for this order")

// ConflictError is returned when a decision targets a request that is no
// longer open. It names the current status so the admin sees why the
// transition was refused (HTTP 409).
type ConflictError struct {
	CurrentStatus string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("request already processed: current status is %q", e.CurrentStatus)
}

// GatewayError wraps a payment gateway failure (HTTP 502). The request state
// is left unchanged; Timeout marks an unknown outcome that is safe to retry
// thanks to the idempotency key.
type GatewayError struct {
	Err     error
	Timeout bool
}

func (e *GatewayError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("payment gateway timeout: %v", e.Err)
	}
	return fmt.Sprintf("payment gateway failure: %v", e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
