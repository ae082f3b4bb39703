package storno_repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskilo/storno-service/internal/apperror"
	"github.com/taskilo/storno-service/internal/domain/storno"
	"github.com/taskilo/storno-service/pkg/postgres"
)

var requestColumns = []string{
	"id", "order_id", "customer_id", "provider_id",
	"reason", "storno_type", "status",
	"total_amount", "payment_reference", "delivery_start", "delivery_end",
	"reviewed_by", "reviewed_at", "admin_notes",
	"refund_amount", "refund_reference", "refund_reason", "rejection_reason",
	"requested_at", "completed_at", "last_updated_at",
}

var attemptColumns = []string{
	"storno_request_id", "order_id", "idempotency_key", "amount",
	"refund_reference", "created_at", "completed_at",
}

type PgStornoRepo struct {
	pg *postgres.Postgres
	repo
}

func NewPgStornoRepo(pg *postgres.Postgres) storno.Repo {
	return &PgStornoRepo{
		pg:   pg,
		repo: repo{db: pg.Pool, builder: pg.Builder},
	}
}

func (r *PgStornoRepo) InTransaction(ctx context.Context, fn func(tx storno.TxRepo) error) error {
	return r.pg.InTransaction(ctx, func(tx postgres.Executor) error {
		txRepo := &repo{db: tx, builder: r.pg.Builder}
		return fn(txRepo)
	})
}

type repo struct {
	db      postgres.Executor
	builder squirrel.StatementBuilderType
}

func openStatuses() []string {
	out := make([]string, 0, len(storno.OpenStatuses))
	for _, s := range storno.OpenStatuses {
		out = append(out, string(s))
	}
	return out
}

func (r *repo) GetRequestByID(ctx context.Context, id string) (*storno.Request, error) {
	query, args, err := r.builder.Select(requestColumns...).
		From("storno_requests").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build request by id query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query storno request by id: %w", err)
	}
	defer rows.Close()

	requests, err := parseRequestRows(rows)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, nil
	}
	return &requests[0], nil
}

func (r *repo) GetOpenRequestByOrderID(ctx context.Context, orderID string) (*storno.Request, error) {
	query, args, err := r.builder.Select(requestColumns...).
		From("storno_requests").
		Where(squirrel.Eq{"order_id": orderID, "status": openStatuses()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build open request query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query open storno request: %w", err)
	}
	defer rows.Close()

	requests, err := parseRequestRows(rows)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, nil
	}
	return &requests[0], nil
}

func (r *repo) CreateRequest(ctx context.Context, n storno.NewRequest) (*storno.Request, error) {
	id := uuid.New().String()

	query, args, err := r.builder.Insert("storno_requests").
		Columns("id", "order_id", "customer_id", "provider_id",
			"reason", "storno_type", "status",
			"total_amount", "payment_reference", "delivery_start", "delivery_end",
			"requested_at", "last_updated_at").
		Values(id, n.OrderID, n.CustomerID, n.ProviderID,
			n.Reason, n.Type, storno.StatusPending,
			n.Snapshot.TotalAmount, n.Snapshot.PaymentReference, n.Snapshot.DeliveryStart, n.Snapshot.DeliveryEnd,
			n.RequestedAt, n.RequestedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert query: %w", err)
	}

	_, err = r.db.Exec(ctx, query, args...)
	// The partial unique index on order_id over open statuses turns a lost
	// submit race into a unique violation.
	if postgres.IsPgErrorUniqueViolation(err) {
		return nil, apperror.ErrOpenRequestExists
	}
	if err != nil {
		return nil, fmt.Errorf("create storno request: %w", err)
	}

	return &storno.Request{
		ID:            id,
		OrderID:       n.OrderID,
		CustomerID:    n.CustomerID,
		ProviderID:    n.ProviderID,
		Reason:        n.Reason,
		Type:          n.Type,
		Status:        storno.StatusPending,
		Snapshot:      n.Snapshot,
		RequestedAt:   n.RequestedAt,
		LastUpdatedAt: n.RequestedAt,
	}, nil
}

func (r *repo) ListRequests(ctx context.Context, q storno.ListQuery) ([]storno.Request, error) {
	sel := r.builder.Select(requestColumns...).
		From("storno_requests").
		OrderBy("requested_at ASC")
	if q.Status != nil {
		sel = sel.Where(squirrel.Eq{"status": string(*q.Status)})
	}
	if q.Limit > 0 {
		sel = sel.Limit(uint64(q.Limit))
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query storno requests: %w", err)
	}
	defer rows.Close()

	return parseRequestRows(rows)
}

func (r *repo) GetStats(ctx context.Context) (storno.Stats, error) {
	query, args, err := r.builder.Select(
		"COUNT(*) FILTER (WHERE status = 'pending')",
		"COUNT(*) FILTER (WHERE status = 'under_review')",
		"COUNT(*) FILTER (WHERE status = 'approved')",
		"COUNT(*) FILTER (WHERE status = 'rejected')",
		"COUNT(*)",
	).From("storno_requests").ToSql()
	if err != nil {
		return storno.Stats{}, fmt.Errorf("build stats query: %w", err)
	}

	var s storno.Stats
	err = r.db.QueryRow(ctx, query, args...).
		Scan(&s.Pending, &s.UnderReview, &s.Approved, &s.Rejected, &s.Total)
	if err != nil {
		return storno.Stats{}, fmt.Errorf("query storno stats: %w", err)
	}

	s.ApprovalRate = storno.ComputeApprovalRate(s.Approved, s.Rejected)
	return s, nil
}

func (r *repo) MarkUnderReview(ctx context.Context, id, reviewedBy string, now time.Time) (bool, error) {
	query, args, err := r.builder.Update("storno_requests").
		Set("status", storno.StatusUnderReview).
		Set("reviewed_by", reviewedBy).
		Set("reviewed_at", now).
		Set("last_updated_at", now).
		Where(squirrel.Eq{"id": id, "status": string(storno.StatusPending)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build under review query: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("mark storno request under review: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) Approve(ctx context.Context, u storno.ApproveUpdate) (bool, error) {
	query, args, err := r.builder.Update("storno_requests").
		Set("status", storno.StatusApproved).
		Set("reviewed_by", u.ReviewedBy).
		Set("reviewed_at", u.Now).
		Set("admin_notes", u.AdminNotes).
		Set("refund_amount", u.RefundAmount).
		Set("refund_reference", u.RefundReference).
		Set("refund_reason", u.RefundReason).
		Set("completed_at", u.Now).
		Set("last_updated_at", u.Now).
		Where(squirrel.Eq{"id": u.ID, "status": openStatuses()}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build approve query: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("approve storno request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) Reject(ctx context.Context, u storno.RejectUpdate) (bool, error) {
	query, args, err := r.builder.Update("storno_requests").
		Set("status", storno.StatusRejected).
		Set("reviewed_by", u.ReviewedBy).
		Set("reviewed_at", u.Now).
		Set("admin_notes", u.AdminNotes).
		Set("rejection_reason", u.RejectionReason).
		Set("completed_at", u.Now).
		Set("last_updated_at", u.Now).
		Where(squirrel.Eq{"id": u.ID, "status": openStatuses()}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build reject query: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("reject storno request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) RecordRefundAttempt(ctx context.Context, a storno.RefundAttempt) error {
	query, args, err := r.builder.Insert("refund_attempts").
		Columns("storno_request_id", "order_id", "idempotency_key", "amount", "created_at").
		Values(a.StornoRequestID, a.OrderID, a.IdempotencyKey, a.Amount, a.CreatedAt).
		Suffix("ON CONFLICT (storno_request_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build attempt insert query: %w", err)
	}

	_, err = r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("record refund attempt: %w", err)
	}
	return nil
}

func (r *repo) GetRefundAttempt(ctx context.Context, requestID string) (*storno.RefundAttempt, error) {
	query, args, err := r.builder.Select(attemptColumns...).
		From("refund_attempts").
		Where(squirrel.Eq{"storno_request_id": requestID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build attempt query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query refund attempt: %w", err)
	}
	defer rows.Close()

	attempts, err := parseAttemptRows(rows)
	if err != nil {
		return nil, err
	}
	if len(attempts) == 0 {
		return nil, nil
	}
	return &attempts[0], nil
}

func (r *repo) CompleteRefundAttempt(ctx context.Context, requestID, refundReference string, now time.Time) error {
	query, args, err := r.builder.Update("refund_attempts").
		Set("refund_reference", refundReference).
		Set("completed_at", now).
		Where(squirrel.Eq{"storno_request_id": requestID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build attempt complete query: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("complete refund attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("refund attempt for request %s not found", requestID)
	}
	return nil
}

func (r *repo) ListDanglingRefunds(ctx context.Context) ([]storno.RefundAttempt, error) {
	cols := make([]string, 0, len(attemptColumns))
	for _, c := range attemptColumns {
		cols = append(cols, "a."+c)
	}

	query, args, err := r.builder.Select(cols...).
		From("refund_attempts a").
		Join("storno_requests r ON r.id = a.storno_request_id").
		Where("a.refund_reference IS NOT NULL").
		Where(squirrel.Eq{"r.status": openStatuses()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build dangling refunds query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dangling refunds: %w", err)
	}
	defer rows.Close()

	return parseAttemptRows(rows)
}

func (r *repo) ListApprovedRequiringSync(ctx context.Context) ([]storno.Request, error) {
	cols := make([]string, 0, len(requestColumns))
	for _, c := range requestColumns {
		cols = append(cols, "r."+c)
	}

	query, args, err := r.builder.Select(cols...).
		From("storno_requests r").
		LeftJoin("provider_score_applications psa ON psa.storno_request_id = r.id").
		LeftJoin("orders o ON o.id = r.order_id").
		Where(squirrel.Eq{"r.status": string(storno.StatusApproved)}).
		Where("(psa.storno_request_id IS NULL OR o.status IS DISTINCT FROM 'cancelled_by_admin')").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build approvals requiring sync query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query approvals requiring sync: %w", err)
	}
	defer rows.Close()

	return parseRequestRows(rows)
}

// Helper functions
func parseRequestRows(rows pgx.Rows) ([]storno.Request, error) {
	var requests []storno.Request
	for rows.Next() {
		var req storno.Request
		var rawType, rawStatus string
		var deliveryStart, deliveryEnd, reviewedAt, completedAt sql.NullTime
		var reviewedBy, adminNotes, refundReference, refundReason, rejectionReason sql.NullString
		var refundAmount sql.NullInt64

		err := rows.Scan(
			&req.ID, &req.OrderID, &req.CustomerID, &req.ProviderID,
			&req.Reason, &rawType, &rawStatus,
			&req.Snapshot.TotalAmount, &req.Snapshot.PaymentReference, &deliveryStart, &deliveryEnd,
			&reviewedBy, &reviewedAt, &adminNotes,
			&refundAmount, &refundReference, &refundReason, &rejectionReason,
			&req.RequestedAt, &completedAt, &req.LastUpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan storno request row: %w", err)
		}

		req.Type = storno.Type(rawType)
		req.Status = storno.Status(rawStatus)

		if deliveryStart.Valid {
			req.Snapshot.DeliveryStart = &deliveryStart.Time
		}
		if deliveryEnd.Valid {
			req.Snapshot.DeliveryEnd = &deliveryEnd.Time
		}
		if reviewedBy.Valid {
			req.ReviewedBy = &reviewedBy.String
		}
		if reviewedAt.Valid {
			req.ReviewedAt = &reviewedAt.Time
		}
		if adminNotes.Valid {
			req.AdminNotes = &adminNotes.String
		}
		if refundAmount.Valid {
			req.RefundAmount = &refundAmount.Int64
		}
		if refundReference.Valid {
			req.RefundReference = &refundReference.String
		}
		if refundReason.Valid {
			req.RefundReason = &refundReason.String
		}
		if rejectionReason.Valid {
			req.RejectionReason = &rejectionReason.String
		}

		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate storno request rows: %w", err)
	}

	return requests, nil
}

func parseAttemptRows(rows pgx.Rows) ([]storno.RefundAttempt, error) {
	var attempts []storno.RefundAttempt
	for rows.Next() {
		var a storno.RefundAttempt
		var refundReference sql.NullString
		var completedAt sql.NullTime

		err := rows.Scan(&a.StornoRequestID, &a.OrderID, &a.IdempotencyKey, &a.Amount,
			&refundReference, &a.CreatedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("scan refund attempt row: %w", err)
		}

		if refundReference.Valid {
			a.RefundReference = &refundReference.String
		}
		if completedAt.Valid {
			a.CompletedAt = &completedAt.Time
		}

		attempts = append(attempts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refund attempt rows: %w", err)
	}

	return attempts, nil
}
