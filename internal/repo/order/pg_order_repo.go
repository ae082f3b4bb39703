package order_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/taskilo/storno-service/internal/domain/order"
	"github.com/taskilo/storno-service/pkg/postgres"
)

var orderColumns = []string{
	"id", "customer_id", "provider_id", "status",
	"total_amount", "payment_reference", "delivery_start", "delivery_end",
	"storno_completed_at", "created_at", "last_updated_at",
}

type PgOrderRepo struct {
	pg *postgres.Postgres
	repo
}

func NewPgOrderRepo(pg *postgres.Postgres) order.Repo {
	return &PgOrderRepo{
		pg:   pg,
		repo: repo{db: pg.Pool, builder: pg.Builder},
	}
}

type repo struct {
	db      postgres.Executor
	builder squirrel.StatementBuilderType
}

func (r *repo) GetOrderByID(ctx context.Context, id string) (*order.Order, error) {
	query, args, err := r.builder.Select(orderColumns...).
		From("orders").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build order query: %w", err)
	}

	var o order.Order
	var rawStatus string
	var deliveryStart, deliveryEnd, stornoCompleted sql.NullTime

	err = r.db.QueryRow(ctx, query, args...).Scan(
		&o.ID, &o.CustomerID, &o.ProviderID, &rawStatus,
		&o.TotalAmount, &o.PaymentReference, &deliveryStart, &deliveryEnd,
		&stornoCompleted, &o.CreatedAt, &o.LastUpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}

	o.Status = order.Status(rawStatus)
	if deliveryStart.Valid {
		o.DeliveryStart = &deliveryStart.Time
	}
	if deliveryEnd.Valid {
		o.DeliveryEnd = &deliveryEnd.Time
	}
	if stornoCompleted.Valid {
		o.StornoCompleted = &stornoCompleted.Time
	}

	return &o, nil
}

// SetCancelledByAdmin writes the terminal status. Re-running it against an
// already cancelled order affects zero rows, which is fine: the write is
// retried by reconciliation until it lands.
func (r *repo) SetCancelledByAdmin(ctx context.Context, id string, completedAt time.Time) error {
	query, args, err := r.builder.Update("orders").
		Set("status", order.StatusCancelledByAdmin).
		Set("storno_completed_at", completedAt).
		Set("last_updated_at", completedAt).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.NotEq{"status": string(order.StatusCancelledByAdmin)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build cancel query: %w", err)
	}

	_, err = r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set order cancelled: %w", err)
	}
	return nil
}
