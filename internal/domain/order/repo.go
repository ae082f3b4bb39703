package order

import (
	"context"
	"time"
)

// Repo reads orders and writes the cancellation terminal state. The order
// record is owned by the marketplace; nothing else is mutated here.
type Repo interface {
	// GetOrderByID returns nil when the order does not exist.
	GetOrderByID(ctx context.Context, id string) (*Order, error)

	// SetCancelledByAdmin writes the terminal status and completion
	// timestamp. Idempotent: repeating the write is a no-op.
	SetCancelledByAdmin(ctx context.Context, id string, completedAt time.Time) error
}
