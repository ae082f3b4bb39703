package provider_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/taskilo/storno-service/internal/domain/provider"
	"github.com/taskilo/storno-service/pkg/postgres"
)

var profileColumns = []string{
	"id", "blocked", "blocked_reason", "blocked_at",
	"total_orders", "approved_stornos", "storno_rate",
	"delivery_delays", "customer_satisfaction", "response_time",
	"overall_score", "score_updated_at",
}

type PgProviderRepo struct {
	pg *postgres.Postgres
	repo
}

func NewPgProviderRepo(pg *postgres.Postgres) provider.Repo {
	return &PgProviderRepo{
		pg:   pg,
		repo: repo{db: pg.Pool, builder: pg.Builder},
	}
}

// ApplyApprovedStorno counts one approved request against the provider. The
// ledger insert and the score increment share a transaction, and the score
// is derived inside the UPDATE itself, so concurrent approvals for the same
// provider never overwrite each other with stale reads.
func (r *PgProviderRepo) ApplyApprovedStorno(ctx context.Context, requestID, providerID string, now time.Time) (*provider.Profile, bool, error) {
	var profile *provider.Profile
	var applied bool

	err := r.pg.InTransaction(ctx, func(tx postgres.Executor) error {
		txRepo := &repo{db: tx, builder: r.pg.Builder}

		inserted, err := txRepo.recordApplication(ctx, requestID, providerID, now)
		if err != nil {
			return err
		}
		if !inserted {
			profile, err = txRepo.GetProfile(ctx, providerID)
			return err
		}

		profile, err = txRepo.incrementScore(ctx, providerID, now)
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return profile, applied, nil
}

type repo struct {
	db      postgres.Executor
	builder squirrel.StatementBuilderType
}

func (r *repo) GetProfile(ctx context.Context, providerID string) (*provider.Profile, error) {
	query, args, err := r.builder.Select(profileColumns...).
		From("provider_profiles").
		Where(squirrel.Eq{"id": providerID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build profile query: %w", err)
	}

	row := r.db.QueryRow(ctx, query, args...)
	return scanProfile(row)
}

func (r *repo) Block(ctx context.Context, providerID, reason string, now time.Time) (bool, error) {
	query, args, err := r.builder.Update("provider_profiles").
		Set("blocked", true).
		Set("blocked_reason", reason).
		Set("blocked_at", now).
		Where(squirrel.Eq{"id": providerID, "blocked": false}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build block query: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("block provider: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// recordApplication inserts the request into the application ledger.
// Returns false when the request was already counted.
func (r *repo) recordApplication(ctx context.Context, requestID, providerID string, now time.Time) (bool, error) {
	query, args, err := r.builder.Insert("provider_score_applications").
		Columns("storno_request_id", "provider_id", "applied_at").
		Values(requestID, providerID, now).
		Suffix("ON CONFLICT (storno_request_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build ledger insert query: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("record score application: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// stornoRateExpr derives the rate from the post-increment counter so the
// whole recomputation happens in one statement.
const stornoRateExpr = "CASE WHEN total_orders > 0 " +
	"THEN (approved_stornos + 1)::float8 / total_orders * 100 ELSE 0 END"

func (r *repo) incrementScore(ctx context.Context, providerID string, now time.Time) (*provider.Profile, error) {
	query, args, err := r.builder.Update("provider_profiles").
		Set("approved_stornos", squirrel.Expr("approved_stornos + 1")).
		Set("storno_rate", squirrel.Expr(stornoRateExpr)).
		Set("overall_score", squirrel.Expr(
			"GREATEST(0, 100 - ("+stornoRateExpr+")) * ? "+
				"+ delivery_delays * ? + customer_satisfaction * ? + response_time * ?",
			provider.WeightStornoRate,
			provider.WeightDeliveryDelays,
			provider.WeightCustomerSatisfaction,
			provider.WeightResponseTime,
		)).
		Set("score_updated_at", now).
		Where(squirrel.Eq{"id": providerID}).
		Suffix("RETURNING " + columnList()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build score increment query: %w", err)
	}

	row := r.db.QueryRow(ctx, query, args...)
	profile, err := scanProfile(row)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("provider %s not found", providerID)
	}
	return profile, nil
}

func columnList() string {
	out := ""
	for i, c := range profileColumns {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

// Helper functions
func scanProfile(row interface {
	Scan(dest ...any) error
}) (*provider.Profile, error) {
	var p provider.Profile
	var blockedReason sql.NullString
	var blockedAt, scoreUpdatedAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.Blocked, &blockedReason, &blockedAt,
		&p.Score.TotalOrders, &p.Score.ApprovedStornos, &p.Score.StornoRate,
		&p.Score.DeliveryDelays, &p.Score.CustomerSatisfaction, &p.Score.ResponseTime,
		&p.Score.OverallScore, &scoreUpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan provider profile: %w", err)
	}

	if blockedReason.Valid {
		p.BlockedReason = &blockedReason.String
	}
	if blockedAt.Valid {
		p.BlockedAt = &blockedAt.Time
	}
	if scoreUpdatedAt.Valid {
		p.Score.LastUpdated = scoreUpdatedAt.Time
	}

	return &p, nil
}
