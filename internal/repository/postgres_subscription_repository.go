package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/pkg/telemetry"
)

const subscriptionColumns = `
	id, business_id, owner_id, category, status, payment_intent_id, payment_status,
	amount, currency, refund_percent, refund_amount, refund_id, refund_failure,
	boost_queue_info, created_at, updated_at
`

// PostgresSubscriptionRepository implements SubscriptionRepository using PostgreSQL
type PostgresSubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSubscriptionRepository creates a new PostgresSubscriptionRepository
func NewPostgresSubscriptionRepository(pool *pgxpool.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool}
}

// Create inserts a new subscription
func (r *PostgresSubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.subscription.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("subscription_id", sub.ID),
		attribute.String("business_id", sub.BusinessID),
	)

	info, err := encodeQueueInfo(sub.BoostQueueInfo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	query := `INSERT INTO boost_subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err = r.pool.Exec(ctx, query,
		sub.ID,
		sub.BusinessID,
		sub.OwnerID,
		sub.Category,
		string(sub.Status),
		nullString(sub.PaymentIntentID),
		string(sub.PaymentStatus),
		sub.Amount,
		sub.Currency,
		sub.RefundPercent,
		sub.RefundAmount,
		nullString(sub.RefundID),
		nullString(sub.RefundFailure),
		info,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a subscription by its ID
func (r *PostgresSubscriptionRepository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.subscription.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("subscription_id", id))

	sub, err := scanSubscription(r.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM boost_subscriptions WHERE id = $1`, id))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return sub, nil
}

// GetByPaymentIntentID retrieves the subscription paid by a payment intent
func (r *PostgresSubscriptionRepository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.Subscription, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.subscription.get_by_payment_intent")
	defer span.End()

	span.SetAttributes(attribute.String("payment_intent_id", paymentIntentID))

	sub, err := scanSubscription(r.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM boost_subscriptions WHERE payment_intent_id = $1`, paymentIntentID))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return sub, nil
}

// Update overwrites the mutable fields of a subscription
func (r *PostgresSubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.subscription.update")
	defer span.End()

	span.SetAttributes(
		attribute.String("subscription_id", sub.ID),
		attribute.String("status", string(sub.Status)),
		attribute.String("payment_status", string(sub.PaymentStatus)),
	)

	info, err := encodeQueueInfo(sub.BoostQueueInfo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	query := `
		UPDATE boost_subscriptions SET
			status = $2, payment_intent_id = $3, payment_status = $4,
			refund_percent = $5, refund_amount = $6, refund_id = $7, refund_failure = $8,
			boost_queue_info = $9, updated_at = $10
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		sub.ID,
		string(sub.Status),
		nullString(sub.PaymentIntentID),
		string(sub.PaymentStatus),
		sub.RefundPercent,
		sub.RefundAmount,
		nullString(sub.RefundID),
		nullString(sub.RefundFailure),
		info,
		sub.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrSubscriptionNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// UpdateProjection writes the queue-derived fields only
func (r *PostgresSubscriptionRepository) UpdateProjection(ctx context.Context, sub *domain.Subscription) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.subscription.update_projection")
	defer span.End()

	span.SetAttributes(
		attribute.String("subscription_id", sub.ID),
		attribute.String("status", string(sub.Status)),
	)

	info, err := encodeQueueInfo(sub.BoostQueueInfo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE boost_subscriptions SET status = $2, boost_queue_info = $3, updated_at = $4
		WHERE id = $1
	`, sub.ID, string(sub.Status), info, sub.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update subscription projection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrSubscriptionNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ListByPaymentStatus returns the oldest subscriptions in a payment state
func (r *PostgresSubscriptionRepository) ListByPaymentStatus(ctx context.Context, status domain.PaymentStatus, limit int) ([]*domain.Subscription, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.subscription.list_by_payment_status")
	defer span.End()

	span.SetAttributes(attribute.String("payment_status", string(status)))

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM boost_subscriptions
		 WHERE payment_status = $1 ORDER BY updated_at LIMIT $2`, string(status), limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(subs)))
	span.SetStatus(codes.Ok, "")
	return subs, nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	sub := &domain.Subscription{}
	var (
		status, paymentStatus                     string
		paymentIntentID, refundID, refundFailure *string
		info                                      []byte
	)

	err := row.Scan(
		&sub.ID,
		&sub.BusinessID,
		&sub.OwnerID,
		&sub.Category,
		&status,
		&paymentIntentID,
		&paymentStatus,
		&sub.Amount,
		&sub.Currency,
		&sub.RefundPercent,
		&sub.RefundAmount,
		&refundID,
		&refundFailure,
		&info,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}

	sub.Status = domain.BoostStatus(status)
	sub.PaymentStatus = domain.PaymentStatus(paymentStatus)
	sub.PaymentIntentID = derefString(paymentIntentID)
	sub.RefundID = derefString(refundID)
	sub.RefundFailure = derefString(refundFailure)
	if len(info) > 0 {
		sub.BoostQueueInfo = &domain.BoostQueueInfo{}
		if err := json.Unmarshal(info, sub.BoostQueueInfo); err != nil {
			return nil, fmt.Errorf("failed to decode boost queue info: %w", err)
		}
	}
	return sub, nil
}

func encodeQueueInfo(info *domain.BoostQueueInfo) ([]byte, error) {
	if info == nil {
		return nil, nil
	}
	b, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to encode boost queue info: %w", err)
	}
	return b, nil
}

// nullString converts empty strings to NULL
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
