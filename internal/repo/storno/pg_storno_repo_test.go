package storno_repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskilo/storno-service/internal/apperror"
	"github.com/taskilo/storno-service/internal/domain/storno"
	"github.com/taskilo/storno-service/pkg/postgres"
)

// testPgStornoRepo wraps the mock pool to implement the transaction testing
type testPgStornoRepo struct {
	repo
	pool pgxmock.PgxPoolIface
	pg   *postgres.Postgres
}

func (r *testPgStornoRepo) InTransaction(ctx context.Context, fn func(tx storno.TxRepo) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txRepo := &repo{db: tx, builder: r.pg.Builder}

	if err := fn(txRepo); err != nil {
		tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func requestRow(mock pgxmock.PgxPoolIface, id, status string, requestedAt time.Time) *pgxmock.Rows {
	return mock.NewRows(requestColumns).
		AddRow(id, "order-1", "cust-1", "prov-1",
			"missed delivery", "overdue", status,
			int64(20000), "pi_123", nil, nil,
			nil, nil, nil,
			nil, nil, nil, nil,
			requestedAt, nil, requestedAt)
}

func TestGetRequestByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &repo{db: mock, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
	ctx := context.Background()

	t.Run("should return request with nullable columns empty", func(t *testing.T) {
		requestedAt := time.Now()

		mock.ExpectQuery(`SELECT .* FROM storno_requests WHERE id = \$1`).
			WithArgs("req-1").
			WillReturnRows(requestRow(mock, "req-1", "pending", requestedAt))

		result, err := repo.GetRequestByID(ctx, "req-1")

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, "req-1", result.ID)
		assert.Equal(t, "order-1", result.OrderID)
		assert.Equal(t, storno.StatusPending, result.Status)
		assert.Equal(t, storno.TypeOverdue, result.Type)
		assert.EqualValues(t, 20000, result.Snapshot.TotalAmount)
		assert.Equal(t, "pi_123", result.Snapshot.PaymentReference)
		assert.Nil(t, result.ReviewedBy)
		assert.Nil(t, result.RefundAmount)
		assert.Equal(t, requestedAt, result.RequestedAt)
	})

	t.Run("should return nil when request not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM storno_requests WHERE id = \$1`).
			WithArgs("nonexistent").
			WillReturnRows(mock.NewRows(requestColumns))

		result, err := repo.GetRequestByID(ctx, "nonexistent")

		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("should handle database error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM storno_requests WHERE id = \$1`).
			WithArgs("req-1").
			WillReturnError(assert.AnError)

		result, err := repo.GetRequestByID(ctx, "req-1")

		require.Error(t, err)
		assert.Nil(t, result)
		assert.Contains(t, err.Error(), "query storno request by id")
	})
}

func TestGetOpenRequestByOrderID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &repo{db: mock, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
	ctx := context.Background()

	t.Run("should filter by order and the open statuses", func(t *testing.T) {
		requestedAt := time.Now()

		mock.ExpectQuery(`SELECT .* FROM storno_requests WHERE order_id = \$1 AND status IN \(\$2,\$3\)`).
			WithArgs("order-1", "pending", "under_review").
			WillReturnRows(requestRow(mock, "req-1", "under_review", requestedAt))

		result, err := repo.GetOpenRequestByOrderID(ctx, "order-1")

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, storno.StatusUnderReview, result.Status)
	})

	t.Run("should return nil for a resolved order", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM storno_requests WHERE order_id = \$1 AND status IN \(\$2,\$3\)`).
			WithArgs("order-2", "pending", "under_review").
			WillReturnRows(mock.NewRows(requestColumns))

		result, err := repo.GetOpenRequestByOrderID(ctx, "order-2")

		require.NoError(t, err)
		assert.Nil(t, result)
	})
}

func TestCreateRequest(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &repo{db: mock, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
	ctx := context.Background()

	requestedAt := time.Now()
	newReq := storno.NewRequest{
		OrderID:    "order-1",
		CustomerID: "cust-1",
		ProviderID: "prov-1",
		Reason:     "missed delivery",
		Type:       storno.TypeOverdue,
		Snapshot: storno.OrderSnapshot{
			TotalAmount:      20000,
			PaymentReference: "pi_123",
		},
		RequestedAt: requestedAt,
	}

	t.Run("should create pending request", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO storno_requests .+ VALUES \(\$1,\$2,\$3,\$4,\$5,\$6,\$7,\$8,\$9,\$10,\$11,\$12,\$13\)`).
			WithArgs(pgxmock.AnyArg(), "order-1", "cust-1", "prov-1",
				"missed delivery", storno.TypeOverdue, storno.StatusPending,
				int64(20000), "pi_123", (*time.Time)(nil), (*time.Time)(nil),
				requestedAt, requestedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		result, err := repo.CreateRequest(ctx, newReq)

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.NotEmpty(t, result.ID)
		assert.Equal(t, storno.StatusPending, result.Status)
		assert.Equal(t, "order-1", result.OrderID)
		assert.EqualValues(t, 20000, result.Snapshot.TotalAmount)
	})

	t.Run("should map the unique violation to the open request conflict", func(t *testing.T) {
		pgErr := &pgconn.PgError{
			Code: "23505", // unique_violation
		}

		mock.ExpectExec(`INSERT INTO storno_requests .+`).
			WillReturnError(pgErr)

		result, err := repo.CreateRequest(ctx, newReq)

		require.Error(t, err)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, apperror.ErrOpenRequestExists)
	})

	t.Run("should handle other database errors", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO storno_requests .+`).
			WillReturnError(assert.AnError)

		result, err := repo.CreateRequest(ctx, newReq)

		require.Error(t, err)
		assert.Nil(t, result)
		assert.Contains(t, err.Error(), "create storno request")
	})
}

func TestGetStats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &repo{db: mock, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
	ctx := context.Background()

	statColumns := []string{"pending", "under_review", "approved", "rejected", "total"}

	t.Run("should aggregate per-status counts and the approval rate", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FILTER .* FROM storno_requests`).
			WillReturnRows(mock.NewRows(statColumns).
				AddRow(int64(3), int64(1), int64(4), int64(2), int64(10)))

		stats, err := repo.GetStats(ctx)

		require.NoError(t, err)
		assert.EqualValues(t, 3, stats.Pending)
		assert.EqualValues(t, 1, stats.UnderReview)
		assert.EqualValues(t, 4, stats.Approved)
		assert.EqualValues(t, 2, stats.Rejected)
		assert.EqualValues(t, 10, stats.Total)
		assert.InDelta(t, 66.666, stats.ApprovalRate, 0.001)
	})

	t.Run("should report a zero approval rate over an empty table", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FILTER .* FROM storno_requests`).
			WillReturnRows(mock.NewRows(statColumns).
				AddRow(int64(0), int64(0), int64(0), int64(0), int64(0)))

		stats, err := repo.GetStats(ctx)

		require.NoError(t, err)
		assert.Zero(t, stats.Total)
		assert.Equal(t, 0.0, stats.ApprovalRate)
	})
}

func TestMarkUnderReview(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &repo{db: mock, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
	ctx := context.Background()
	now := time.Now()

	t.Run("should transition a pending request", func(t *testing.T) {
		mock.ExpectExec(`UPDATE storno_requests SET .* WHERE id = \$5 AND status = \$6`).
			WithArgs(storno.StatusUnderReview, "admin-1", now, now, "req-1", "pending").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		ok, err := repo.MarkUnderReview(ctx, "req-1", "admin-1", now)

		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("should report false when the request is not pending", func(t *testing.T) {
		mock.ExpectExec(`UPDATE storno_requests SET .* WHERE id = \$5 AND status = \$6`).
			WithArgs(storno.StatusUnderReview, "admin-1", now, now, "req-1", "pending").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		ok, err := repo.MarkUnderReview(ctx, "req-1", "admin-1", now)

		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestApprove(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &repo{db: mock, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
	ctx := context.Background()
	now := time.Now()

	update := storno.ApproveUpdate{
		ID:              "req-1",
		ReviewedBy:      "admin-1",
		RefundAmount:    20000,
		RefundReference: "re_001",
		Now:             now,
	}

	t.Run("should flip an open request to approved", func(t *testing.T) {
		mock.ExpectExec(`UPDATE storno_requests SET .* WHERE id = \$10 AND status IN \(\$11,\$12\)`).
			WithArgs(storno.StatusApproved, "admin-1", now, (*string)(nil),
				int64(20000), "re_001", (*string)(nil), now, now,
				"req-1", "pending", "under_review").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		ok, err := repo.Approve(ctx, update)

		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("should report a lost race on zero affected rows", func(t *testing.T) {
		mock.ExpectExec(`UPDATE storno_requests SET .* WHERE id = \$10 AND status IN \(\$11,\$12\)`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		ok, err := repo.Approve(ctx, update)

		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestReject(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &repo{db: mock, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
	ctx := context.Background()
	now := time.Now()

	t.Run("should flip an open request to rejected", func(t *testing.T) {
		mock.ExpectExec(`UPDATE storno_requests SET .* WHERE id = \$8 AND status IN \(\$9,\$10\)`).
			WithArgs(storno.StatusRejected, "admin-1", now, (*string)(nil),
				"not justified", now, now,
				"req-1", "pending", "under_review").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		ok, err := repo.Reject(ctx, storno.RejectUpdate{
			ID:              "req-1",
			ReviewedBy:      "admin-1",
			RejectionReason: "not justified",
			Now:             now,
		})

		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestRecordRefundAttempt(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &repo{db: mock, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
	ctx := context.Background()
	createdAt := time.Now()

	attempt := storno.RefundAttempt{
		StornoRequestID: "req-1",
		OrderID:         "order-1",
		IdempotencyKey:  "storno-refund-req-1",
		Amount:          20000,
		CreatedAt:       createdAt,
	}

	t.Run("should insert the attempt", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO refund_attempts .+ ON CONFLICT \(storno_request_id\) DO NOTHING`).
			WithArgs("req-1", "order-1", "storno-refund-req-1", int64(20000), createdAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := repo.RecordRefundAttempt(ctx, attempt)

		require.NoError(t, err)
	})

	t.Run("should treat a duplicate as a no-op", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO refund_attempts .+ ON CONFLICT \(storno_request_id\) DO NOTHING`).
			WithArgs("req-1", "order-1", "storno-refund-req-1", int64(20000), createdAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		err := repo.RecordRefundAttempt(ctx, attempt)

		require.NoError(t, err)
	})
}

func TestCompleteRefundAttempt(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &repo{db: mock, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
	ctx := context.Background()
	now := time.Now()

	t.Run("should stamp the refund reference", func(t *testing.T) {
		mock.ExpectExec(`UPDATE refund_attempts SET refund_reference = \$1, completed_at = \$2 WHERE storno_request_id = \$3`).
			WithArgs("re_001", now, "req-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.CompleteRefundAttempt(ctx, "req-1", "re_001", now)

		require.NoError(t, err)
	})

	t.Run("should fail on a missing attempt row", func(t *testing.T) {
		mock.ExpectExec(`UPDATE refund_attempts SET refund_reference = \$1, completed_at = \$2 WHERE storno_request_id = \$3`).
			WithArgs("re_001", now, "req-9").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.CompleteRefundAttempt(ctx, "req-9", "re_001", now)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestStornoInTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pg := &postgres.Postgres{
		Builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	pgRepo := &testPgStornoRepo{
		repo: repo{db: mock, builder: pg.Builder},
		pool: mock,
		pg:   pg,
	}
	ctx := context.Background()

	t.Run("should execute function in transaction successfully", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCommit()

		executed := false
		err := pgRepo.InTransaction(ctx, func(tx storno.TxRepo) error {
			executed = true
			assert.NotNil(t, tx)
			return nil
		})

		require.NoError(t, err)
		assert.True(t, executed)
	})

	t.Run("should rollback transaction on function error", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := pgRepo.InTransaction(ctx, func(tx storno.TxRepo) error {
			return assert.AnError
		})

		require.Error(t, err)
		assert.Equal(t, assert.AnError, err)
	})
}
