package order_repo

import (
	"context"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskilo/storno-service/internal/domain/order"
)

func TestGetOrderByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &repo{db: mock, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
	ctx := context.Background()

	t.Run("should return the order", func(t *testing.T) {
		createdAt := time.Now()
		deliveryEnd := createdAt.Add(48 * time.Hour)

		rows := mock.NewRows(orderColumns).
			AddRow("order-1", "cust-1", "prov-1", "paid",
				int64(20000), "pi_123", nil, deliveryEnd,
				nil, createdAt, createdAt)

		mock.ExpectQuery(`SELECT .* FROM orders WHERE id = \$1`).
			WithArgs("order-1").
			WillReturnRows(rows)

		result, err := repo.GetOrderByID(ctx, "order-1")

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, "order-1", result.ID)
		assert.Equal(t, order.StatusPaid, result.Status)
		assert.EqualValues(t, 20000, result.TotalAmount)
		assert.Nil(t, result.DeliveryStart)
		require.NotNil(t, result.DeliveryEnd)
		assert.Equal(t, deliveryEnd, *result.DeliveryEnd)
	})

	t.Run("should return nil when the order does not exist", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM orders WHERE id = \$1`).
			WithArgs("nonexistent").
			WillReturnRows(mock.NewRows(orderColumns))

		result, err := repo.GetOrderByID(ctx, "nonexistent")

		require.NoError(t, err)
		assert.Nil(t, result)
	})
}

func TestSetCancelledByAdmin(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &repo{db: mock, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
	ctx := context.Background()
	now := time.Now()

	t.Run("should write the terminal status", func(t *testing.T) {
		mock.ExpectExec(`UPDATE orders SET status = \$1, storno_completed_at = \$2, last_updated_at = \$3 WHERE id = \$4 AND status <> \$5`).
			WithArgs(order.StatusCancelledByAdmin, now, now, "order-1", "cancelled_by_admin").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.SetCancelledByAdmin(ctx, "order-1", now)

		require.NoError(t, err)
	})

	t.Run("should stay idempotent for an already cancelled order", func(t *testing.T) {
		mock.ExpectExec(`UPDATE orders SET status = \$1, storno_completed_at = \$2, last_updated_at = \$3 WHERE id = \$4 AND status <> \$5`).
			WithArgs(order.StatusCancelledByAdmin, now, now, "order-1", "cancelled_by_admin").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.SetCancelledByAdmin(ctx, "order-1", now)

		require.NoError(t, err)
	})
}
