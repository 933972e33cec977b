package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/internal/dto"
	"github.com/Umairakbar1/business-backend-sub000/internal/gateway"
	"github.com/Umairakbar1/business-backend-sub000/internal/notifier"
	"github.com/Umairakbar1/business-backend-sub000/internal/repository"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const (
	cafes     = "cafes"
	boostDay  = 24 * time.Hour
	priceUSD  = 100.0
	priceCent = int64(10000)
)

// recordingNotifier keeps every dispatched event in order
type recordingNotifier struct {
	mu     sync.Mutex
	events []*domain.BoostEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, recipient string, event *domain.BoostEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) types() []domain.BoostEventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	types := make([]domain.BoostEventType, 0, len(n.events))
	for _, e := range n.events {
		types = append(types, e.Type)
	}
	return types
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	n.events = nil
	n.mu.Unlock()
}

// faultySubscriptionRepository fails chosen operations until cleared or
// until the configured number of failures is used up
type faultySubscriptionRepository struct {
	*repository.MemorySubscriptionRepository

	mu     sync.Mutex
	faults map[string]*fault
}

type fault struct {
	err       error
	remaining int
}

const (
	opGetSubscription    = "get"
	opUpdateSubscription = "update"
	opUpdateProjection   = "update_projection"
)

// failOn makes op return err; times <= 0 fails until cleared with a nil err
func (r *faultySubscriptionRepository) failOn(op string, err error, times int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.faults, op)
		return
	}
	r.faults[op] = &fault{err: err, remaining: times}
}

func (r *faultySubscriptionRepository) fault(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.faults[op]
	if !ok {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			delete(r.faults, op)
		}
	}
	return f.err
}

func (r *faultySubscriptionRepository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	if err := r.fault(opGetSubscription); err != nil {
		return nil, err
	}
	return r.MemorySubscriptionRepository.GetByID(ctx, id)
}

func (r *faultySubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	if err := r.fault(opUpdateSubscription); err != nil {
		return err
	}
	return r.MemorySubscriptionRepository.Update(ctx, sub)
}

func (r *faultySubscriptionRepository) UpdateProjection(ctx context.Context, sub *domain.Subscription) error {
	if err := r.fault(opUpdateProjection); err != nil {
		return err
	}
	return r.MemorySubscriptionRepository.UpdateProjection(ctx, sub)
}

type fixture struct {
	clock      *domain.ManualClock
	queues     *repository.MemoryCategoryQueueRepository
	subs       *repository.MemorySubscriptionRepository
	subFaults  *faultySubscriptionRepository
	businesses *repository.MemoryBusinessRepository
	gateway    *gateway.MockGateway
	events     *recordingNotifier
	store      *QueueStore
	svc        BoostService
	reconciler Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:      domain.NewManualClock(t0),
		queues:     repository.NewMemoryCategoryQueueRepository(),
		subs:       repository.NewMemorySubscriptionRepository(),
		businesses: repository.NewMemoryBusinessRepository(),
		gateway:    gateway.NewMockGateway(nil),
		events:     &recordingNotifier{},
	}
	f.subFaults = &faultySubscriptionRepository{
		MemorySubscriptionRepository: f.subs,
		faults:                       make(map[string]*fault),
	}

	f.store = NewQueueStore(f.queues, nil, f.clock, &QueueStoreConfig{
		BoostDuration: boostDay,
		RetryInterval: time.Millisecond,
	})
	projector := NewProjector(f.subFaults, f.businesses, f.queues)
	dispatcher := notifier.NewDispatcher(f.events, time.Second)

	f.svc = NewBoostService(f.store, projector, f.subFaults, f.businesses, f.gateway, dispatcher, &BoostServiceConfig{
		Price:    priceUSD,
		Currency: "usd",
	})
	f.reconciler = NewReconciler(f.store, projector, dispatcher, &ReconcilerConfig{Workers: 2})
	return f
}

func ownerOf(businessID string) string {
	return "owner-" + businessID
}

func (f *fixture) addBusiness(t *testing.T, id string, categories ...string) {
	t.Helper()
	require.NoError(t, f.businesses.Upsert(context.Background(), &domain.Business{
		ID:         id,
		OwnerID:    ownerOf(id),
		Name:       "Business " + id,
		Categories: categories,
	}))
}

func (f *fixture) checkout(t *testing.T, businessID, category string) *dto.CheckoutResponse {
	t.Helper()
	resp, err := f.svc.Checkout(context.Background(), ownerOf(businessID), &dto.CheckoutRequest{
		BusinessID: businessID,
		Category:   category,
	})
	require.NoError(t, err)
	return resp
}

// purchase runs checkout and confirmation for a business that already exists
func (f *fixture) purchase(t *testing.T, businessID, category string) *dto.AdmissionResponse {
	t.Helper()
	co := f.checkout(t, businessID, category)
	resp, err := f.svc.ConfirmPurchase(context.Background(), ownerOf(businessID), co.SubscriptionID)
	require.NoError(t, err)
	return resp
}

func (f *fixture) subscription(t *testing.T, id string) *domain.Subscription {
	t.Helper()
	sub, err := f.subs.GetByID(context.Background(), id)
	require.NoError(t, err)
	return sub
}

func (f *fixture) business(t *testing.T, id string) *domain.Business {
	t.Helper()
	biz, err := f.businesses.GetByID(context.Background(), id)
	require.NoError(t, err)
	return biz
}

func (f *fixture) queue(t *testing.T, category string) *domain.CategoryQueue {
	t.Helper()
	q, err := f.queues.Get(context.Background(), category)
	require.NoError(t, err)
	return q
}

func (f *fixture) cancel(businessID, category string) (*dto.CancelResponse, error) {
	return f.svc.Cancel(context.Background(), ownerOf(businessID), &dto.CancelRequest{
		BusinessID: businessID,
		Category:   category,
	})
}
