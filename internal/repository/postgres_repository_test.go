package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
)

// setupPostgres connects to TEST_DATABASE_URL and applies the schema
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, Schema)
	require.NoError(t, err)
	return pool
}

func TestPostgresCategoryQueueRepository(t *testing.T) {
	pool := setupPostgres(t)
	repo := NewPostgresCategoryQueueRepository(pool)
	ctx := context.Background()
	category := "test-" + uuid.NewString()
	ts := time.Now().UTC().Truncate(time.Microsecond)

	t.Cleanup(func() {
		pool.Exec(context.Background(), `DELETE FROM category_queues WHERE category = $1`, category)
	})

	_, err := repo.Get(ctx, category)
	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)

	a, err := repo.GetOrCreate(ctx, category, domain.DefaultBoostDuration, ts)
	require.NoError(t, err)
	b, err := repo.GetOrCreate(ctx, category, domain.DefaultBoostDuration, ts)
	require.NoError(t, err)
	assert.Equal(t, a.Version, b.Version)

	_, _, err = a.Admit(domain.NewQueueEntry("x", "ox", "sx"), ts)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, a))

	_, _, err = b.Admit(domain.NewQueueEntry("y", "oy", "sy"), ts)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Save(ctx, b), domain.ErrConcurrencyConflict)

	stored, err := repo.Get(ctx, category)
	require.NoError(t, err)
	assert.Equal(t, a.Version, stored.Version)
	assert.True(t, stored.IsBusinessActive("x"))
	require.NoError(t, stored.Validate())

	categories, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	assert.Contains(t, categories, category)
}

func TestPostgresSubscriptionRepository(t *testing.T) {
	pool := setupPostgres(t)
	repo := NewPostgresSubscriptionRepository(pool)
	ctx := context.Background()
	ts := time.Now().UTC().Truncate(time.Microsecond)

	sub, err := domain.NewSubscription("b-"+uuid.NewString(), "o", "cafes", 2999, "usd", ts)
	require.NoError(t, err)
	sub.PaymentIntentID = "pi_" + uuid.NewString()
	require.NoError(t, repo.Create(ctx, sub))
	t.Cleanup(func() {
		pool.Exec(context.Background(), `DELETE FROM boost_subscriptions WHERE id = $1`, sub.ID)
	})

	sub.BoostQueueInfo = &domain.BoostQueueInfo{QueueID: "e1", Category: "cafes", QueuePosition: 2}
	sub.PaymentStatus = domain.PaymentPaid
	require.NoError(t, repo.Update(ctx, sub))

	got, err := repo.GetByPaymentIntentID(ctx, sub.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)
	require.NotNil(t, got.BoostQueueInfo)
	assert.Equal(t, 2, got.BoostQueueInfo.QueuePosition)

	got.Status = domain.BoostCanceled
	got.PaymentStatus = domain.PaymentRefunded
	got.BoostQueueInfo = &domain.BoostQueueInfo{QueueID: "e1", Category: "cafes"}
	require.NoError(t, repo.UpdateProjection(ctx, got))

	got, err = repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BoostCanceled, got.Status)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, 0, got.BoostQueueInfo.QueuePosition)
}
