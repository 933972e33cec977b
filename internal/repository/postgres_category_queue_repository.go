package repository

import (
	"context"
	"encoding/json"
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

// PostgresCategoryQueueRepository stores each queue as a JSONB document guarded by a version column
type PostgresCategoryQueueRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCategoryQueueRepository creates a new PostgresCategoryQueueRepository
func NewPostgresCategoryQueueRepository(pool *pgxpool.Pool) *PostgresCategoryQueueRepository {
	return &PostgresCategoryQueueRepository{pool: pool}
}

// Get loads the queue for a category
func (r *PostgresCategoryQueueRepository) Get(ctx context.Context, category string) (*domain.CategoryQueue, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.category_queue.get")
	defer span.End()

	span.SetAttributes(attribute.String("category", category))

	q, err := r.load(ctx, category)
	if err != nil {
		if errors.Is(err, domain.ErrCategoryNotFound) {
			span.SetStatus(codes.Error, "not found")
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return q, nil
}

// GetOrCreate inserts an empty queue when absent; the primary key makes concurrent creators converge
func (r *PostgresCategoryQueueRepository) GetOrCreate(ctx context.Context, category string, duration time.Duration, now time.Time) (*domain.CategoryQueue, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.category_queue.get_or_create")
	defer span.End()

	span.SetAttributes(attribute.String("category", category))

	empty := domain.NewCategoryQueue(category, duration, now)
	doc, err := json.Marshal(empty)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to encode category queue: %w", err)
	}

	query := `
		INSERT INTO category_queues (category, document, version, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $3)
		ON CONFLICT (category) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, category, doc, now); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create category queue: %w", err)
	}

	q, err := r.load(ctx, category)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return q, nil
}

// Save writes the document only if the stored version still equals q.Version
func (r *PostgresCategoryQueueRepository) Save(ctx context.Context, q *domain.CategoryQueue) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.category_queue.save")
	defer span.End()

	span.SetAttributes(
		attribute.String("category", q.Category),
		attribute.Int64("version", q.Version),
	)

	next := q.Clone()
	next.Version = q.Version + 1
	doc, err := json.Marshal(next)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to encode category queue: %w", err)
	}

	query := `
		UPDATE category_queues
		SET document = $2, version = version + 1, updated_at = $3
		WHERE category = $1 AND version = $4
	`
	tag, err := r.pool.Exec(ctx, query, q.Category, doc, q.UpdatedAt, q.Version)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to save category queue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "version conflict")
		return domain.ErrConcurrencyConflict
	}

	q.Version = next.Version
	span.SetStatus(codes.Ok, "")
	return nil
}

// ListCategories returns every category that has a queue
func (r *PostgresCategoryQueueRepository) ListCategories(ctx context.Context) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.category_queue.list_categories")
	defer span.End()

	rows, err := r.pool.Query(ctx, `SELECT category FROM category_queues ORDER BY category`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	categories, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to scan categories: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(categories)))
	span.SetStatus(codes.Ok, "")
	return categories, nil
}

func (r *PostgresCategoryQueueRepository) load(ctx context.Context, category string) (*domain.CategoryQueue, error) {
	var (
		doc     []byte
		version int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT document, version FROM category_queues WHERE category = $1`, category,
	).Scan(&doc, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to load category queue: %w", err)
	}

	q := &domain.CategoryQueue{}
	if err := json.Unmarshal(doc, q); err != nil {
		return nil, fmt.Errorf("failed to decode category queue %s: %w", category, err)
	}
	q.Version = version
	if q.Entries == nil {
		q.Entries = []*domain.QueueEntry{}
	}
	return q, nil
}
