package repository

import (
	"context"
	"time"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
)

// CategoryQueueRepository persists one CategoryQueue document per category.
// Save is a compare-and-swap on Version: a stale queue yields
// domain.ErrConcurrencyConflict and nothing is written.
type CategoryQueueRepository interface {
	// Get returns domain.ErrCategoryNotFound when no queue exists
	Get(ctx context.Context, category string) (*domain.CategoryQueue, error)

	// GetOrCreate is safe to call concurrently; at most one queue is created per category
	GetOrCreate(ctx context.Context, category string, duration time.Duration, now time.Time) (*domain.CategoryQueue, error)

	// Save writes q if its Version is still current and bumps Version on success
	Save(ctx context.Context, q *domain.CategoryQueue) error

	// ListCategories returns every category that has a queue
	ListCategories(ctx context.Context) ([]string, error)
}

// SubscriptionRepository persists boost subscriptions
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *domain.Subscription) error
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.Subscription, error)
	Update(ctx context.Context, sub *domain.Subscription) error
	// UpdateProjection writes only Status, BoostQueueInfo and UpdatedAt so a
	// queue projection never overwrites payment or refund fields
	UpdateProjection(ctx context.Context, sub *domain.Subscription) error
	ListByPaymentStatus(ctx context.Context, status domain.PaymentStatus, limit int) ([]*domain.Subscription, error)
}

// BusinessRepository reads businesses and writes their derived boost flags
type BusinessRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Business, error)
	Upsert(ctx context.Context, biz *domain.Business) error
	UpdateBoostStatus(ctx context.Context, biz *domain.Business) error
}

// CategoryLocker serializes queue mutations per category
type CategoryLocker interface {
	// Lock blocks until the category lock is held or ctx ends
	Lock(ctx context.Context, category string) (unlock func(), err error)
}
