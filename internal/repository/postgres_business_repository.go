package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/pkg/telemetry"
)

// PostgresBusinessRepository implements BusinessRepository using PostgreSQL
type PostgresBusinessRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBusinessRepository creates a new PostgresBusinessRepository
func NewPostgresBusinessRepository(pool *pgxpool.Pool) *PostgresBusinessRepository {
	return &PostgresBusinessRepository{pool: pool}
}

// GetByID retrieves a business by its ID
func (r *PostgresBusinessRepository) GetByID(ctx context.Context, id string) (*domain.Business, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.business.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("business_id", id))

	query := `
		SELECT id, owner_id, name, categories, is_boosted, is_boost_active,
		       boost_category, boost_expiry_at, updated_at
		FROM businesses
		WHERE id = $1
	`

	biz := &domain.Business{}
	var (
		boostCategory *string
		boostExpiry   *time.Time
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&biz.ID,
		&biz.OwnerID,
		&biz.Name,
		&biz.Categories,
		&biz.IsBoosted,
		&biz.IsBoostActive,
		&boostCategory,
		&boostExpiry,
		&biz.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBusinessNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get business: %w", err)
	}

	biz.BoostCategory = derefString(boostCategory)
	biz.BoostExpiryAt = boostExpiry

	span.SetStatus(codes.Ok, "")
	return biz, nil
}

// Upsert creates or replaces a business record
func (r *PostgresBusinessRepository) Upsert(ctx context.Context, biz *domain.Business) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.business.upsert")
	defer span.End()

	span.SetAttributes(attribute.String("business_id", biz.ID))

	categories := biz.Categories
	if categories == nil {
		categories = []string{}
	}

	query := `
		INSERT INTO businesses (id, owner_id, name, categories, is_boosted, is_boost_active,
		                        boost_category, boost_expiry_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			name = EXCLUDED.name,
			categories = EXCLUDED.categories,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		biz.ID, biz.OwnerID, biz.Name, categories,
		biz.IsBoosted, biz.IsBoostActive, nullString(biz.BoostCategory), biz.BoostExpiryAt, biz.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to upsert business: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// UpdateBoostStatus writes only the derived boost flags
func (r *PostgresBusinessRepository) UpdateBoostStatus(ctx context.Context, biz *domain.Business) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.business.update_boost_status")
	defer span.End()

	span.SetAttributes(
		attribute.String("business_id", biz.ID),
		attribute.Bool("is_boosted", biz.IsBoosted),
	)

	query := `
		UPDATE businesses SET
			is_boosted = $2, is_boost_active = $3, boost_category = $4,
			boost_expiry_at = $5, updated_at = $6
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		biz.ID, biz.IsBoosted, biz.IsBoostActive, nullString(biz.BoostCategory), biz.BoostExpiryAt, biz.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update business boost status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrBusinessNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
