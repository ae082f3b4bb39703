package storno

import (
	"context"
	"time"
)

// ListQuery filters the admin review queue.
type ListQuery struct {
	Status *Status
	Limit  int
}

// ApproveUpdate carries everything written on the approve transition. The
// repository applies it as a conditional update guarded by the open
// statuses; a stale request leaves zero rows affected.
type ApproveUpdate struct {
	ID              string
	ReviewedBy      string
	AdminNotes      *string
	RefundAmount    int64
	RefundReference string
	RefundReason    *string
	Now             time.Time
}

// RejectUpdate carries the reject transition fields. No refund, order or
// score data is touched on rejection.
type RejectUpdate struct {
	ID              string
	ReviewedBy      string
	AdminNotes      *string
	RejectionReason string
	Now             time.Time
}

// Repo persists storno requests. InTransaction runs fn against a
// transactional view of the same repository.
type Repo interface {
	TxRepo
	InTransaction(ctx context.Context, fn func(tx TxRepo) error) error
}

type TxRepo interface {
	// GetRequestByID returns nil when the request does not exist.
	GetRequestByID(ctx context.Context, id string) (*Request, error)

	// GetOpenRequestByOrderID returns the pending or under-review request
	// for the order, or nil.
	GetOpenRequestByOrderID(ctx context.Context, orderID string) (*Request, error)

	// CreateRequest inserts a new pending request. A concurrent open
	// request for the same order surfaces as apperror.ErrOpenRequestExists
	// (partial unique index).
	CreateRequest(ctx context.Context, req NewRequest) (*Request, error)

	ListRequests(ctx context.Context, query ListQuery) ([]Request, error)
	GetStats(ctx context.Context) (Stats, error)

	// MarkUnderReview moves pending -> under_review. Returns false when the
	// request was not pending.
	MarkUnderReview(ctx context.Context, id, reviewedBy string, now time.Time) (bool, error)

	// Approve and Reject apply the terminal transitions conditionally on
	// the request still being open, returning false otherwise.
	Approve(ctx context.Context, update ApproveUpdate) (bool, error)
	Reject(ctx context.Context, update RejectUpdate) (bool, error)

	// RecordRefundAttempt inserts the attempt if none exists yet for the
	// request. Re-recording is a no-op so the original idempotency key and
	// amount always win.
	RecordRefundAttempt(ctx context.Context, attempt RefundAttempt) error
	GetRefundAttempt(ctx context.Context, requestID string) (*RefundAttempt, error)
	CompleteRefundAttempt(ctx context.Context, requestID, refundReference string, now time.Time) error

	// ListDanglingRefunds returns completed attempts whose request is still
	// open: the footprint of a crash between the gateway call and the
	// status write.
	ListDanglingRefunds(ctx context.Context) ([]RefundAttempt, error)

	// ListApprovedRequiringSync returns approved requests whose provider
	// score has not been counted yet or whose order is not terminal.
	ListApprovedRequiringSync(ctx context.Context) ([]Request, error)
}
