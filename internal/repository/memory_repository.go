package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
)

// MemoryCategoryQueueRepository keeps queues in process memory with the same
// version check as the Postgres store. Used by tests and STORAGE_DRIVER=memory.
type MemoryCategoryQueueRepository struct {
	mu     sync.RWMutex
	queues map[string]*domain.CategoryQueue
}

func NewMemoryCategoryQueueRepository() *MemoryCategoryQueueRepository {
	return &MemoryCategoryQueueRepository{queues: make(map[string]*domain.CategoryQueue)}
}

func (r *MemoryCategoryQueueRepository) Get(ctx context.Context, category string) (*domain.CategoryQueue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.queues[category]
	if !ok {
		return nil, domain.ErrCategoryNotFound
	}
	return q.Clone(), nil
}

func (r *MemoryCategoryQueueRepository) GetOrCreate(ctx context.Context, category string, duration time.Duration, now time.Time) (*domain.CategoryQueue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues[category]
	if !ok {
		q = domain.NewCategoryQueue(category, duration, now)
		r.queues[category] = q
	}
	return q.Clone(), nil
}

func (r *MemoryCategoryQueueRepository) Save(ctx context.Context, q *domain.CategoryQueue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.queues[q.Category]
	if !ok || stored.Version != q.Version {
		return domain.ErrConcurrencyConflict
	}

	next := q.Clone()
	next.Version = q.Version + 1
	r.queues[q.Category] = next
	q.Version = next.Version
	return nil
}

func (r *MemoryCategoryQueueRepository) ListCategories(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	categories := make([]string, 0, len(r.queues))
	for c := range r.queues {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories, nil
}

// MemorySubscriptionRepository implements SubscriptionRepository in memory
type MemorySubscriptionRepository struct {
	mu   sync.RWMutex
	subs map[string]*domain.Subscription
}

func NewMemorySubscriptionRepository() *MemorySubscriptionRepository {
	return &MemorySubscriptionRepository{subs: make(map[string]*domain.Subscription)}
}

func (r *MemorySubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ID] = cloneSubscription(sub)
	return nil
}

func (r *MemorySubscriptionRepository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[id]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	return cloneSubscription(sub), nil
}

func (r *MemorySubscriptionRepository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sub := range r.subs {
		if sub.PaymentIntentID != "" && sub.PaymentIntentID == paymentIntentID {
			return cloneSubscription(sub), nil
		}
	}
	return nil, domain.ErrSubscriptionNotFound
}

func (r *MemorySubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[sub.ID]; !ok {
		return domain.ErrSubscriptionNotFound
	}
	r.subs[sub.ID] = cloneSubscription(sub)
	return nil
}

func (r *MemorySubscriptionRepository) UpdateProjection(ctx context.Context, sub *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.subs[sub.ID]
	if !ok {
		return domain.ErrSubscriptionNotFound
	}
	projected := cloneSubscription(sub)
	stored.Status = projected.Status
	stored.BoostQueueInfo = projected.BoostQueueInfo
	stored.UpdatedAt = projected.UpdatedAt
	return nil
}

func (r *MemorySubscriptionRepository) ListByPaymentStatus(ctx context.Context, status domain.PaymentStatus, limit int) ([]*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var subs []*domain.Subscription
	for _, sub := range r.subs {
		if sub.PaymentStatus == status {
			subs = append(subs, cloneSubscription(sub))
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].UpdatedAt.Before(subs[j].UpdatedAt) })
	if limit > 0 && len(subs) > limit {
		subs = subs[:limit]
	}
	return subs, nil
}

func cloneSubscription(sub *domain.Subscription) *domain.Subscription {
	c := *sub
	if sub.BoostQueueInfo != nil {
		info := *sub.BoostQueueInfo
		c.BoostQueueInfo = &info
	}
	return &c
}

// MemoryBusinessRepository implements BusinessRepository in memory
type MemoryBusinessRepository struct {
	mu         sync.RWMutex
	businesses map[string]*domain.Business
}

func NewMemoryBusinessRepository() *MemoryBusinessRepository {
	return &MemoryBusinessRepository{businesses: make(map[string]*domain.Business)}
}

func (r *MemoryBusinessRepository) GetByID(ctx context.Context, id string) (*domain.Business, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	biz, ok := r.businesses[id]
	if !ok {
		return nil, domain.ErrBusinessNotFound
	}
	c := *biz
	return &c, nil
}

func (r *MemoryBusinessRepository) Upsert(ctx context.Context, biz *domain.Business) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *biz
	r.businesses[biz.ID] = &c
	return nil
}

func (r *MemoryBusinessRepository) UpdateBoostStatus(ctx context.Context, biz *domain.Business) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.businesses[biz.ID]
	if !ok {
		return domain.ErrBusinessNotFound
	}
	stored.IsBoosted = biz.IsBoosted
	stored.IsBoostActive = biz.IsBoostActive
	stored.BoostCategory = biz.BoostCategory
	stored.BoostExpiryAt = biz.BoostExpiryAt
	stored.UpdatedAt = biz.UpdatedAt
	return nil
}
