package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/internal/repository"
)

// conflictingRepository loses the version race a fixed number of times
type conflictingRepository struct {
	*repository.MemoryCategoryQueueRepository

	mu        sync.Mutex
	conflicts int
	saves     int
}

func (r *conflictingRepository) Save(ctx context.Context, q *domain.CategoryQueue) error {
	r.mu.Lock()
	r.saves++
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return domain.ErrConcurrencyConflict
	}
	r.mu.Unlock()
	return r.MemoryCategoryQueueRepository.Save(ctx, q)
}

func newConflictingStore(conflicts int) (*QueueStore, *conflictingRepository) {
	repo := &conflictingRepository{
		MemoryCategoryQueueRepository: repository.NewMemoryCategoryQueueRepository(),
		conflicts:                     conflicts,
	}
	store := NewQueueStore(repo, nil, domain.NewManualClock(t0), &QueueStoreConfig{
		BoostDuration:      boostDay,
		MaxConflictRetries: 3,
		RetryInterval:      time.Millisecond,
	})
	return store, repo
}

func admitFn(businessID string) Mutation {
	return func(q *domain.CategoryQueue, now time.Time) error {
		_, _, err := q.Admit(domain.NewQueueEntry(businessID, "owner", ""), now)
		return err
	}
}

func TestQueueStore_RetriesConflicts(t *testing.T) {
	store, repo := newConflictingStore(2)

	commits := 0
	q, err := store.Mutate(context.Background(), cafes, admitFn("x"), func(ctx context.Context, q *domain.CategoryQueue, now time.Time) {
		commits++
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), q.Version)
	assert.Equal(t, 3, repo.saves)
	assert.Equal(t, 1, commits, "the commit hook runs once, after the winning save")
}

func TestQueueStore_GivesUpAfterRetries(t *testing.T) {
	store, repo := newConflictingStore(100)

	_, err := store.Mutate(context.Background(), cafes, admitFn("x"), nil)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	assert.Equal(t, 4, repo.saves)
}

func TestQueueStore_DomainErrorsAreNotRetried(t *testing.T) {
	store, repo := newConflictingStore(0)
	ctx := context.Background()

	_, err := store.Mutate(ctx, cafes, admitFn("x"), nil)
	require.NoError(t, err)

	_, err = store.Mutate(ctx, cafes, admitFn("x"), nil)
	assert.ErrorIs(t, err, domain.ErrDuplicateEntry)
	assert.Equal(t, 1, repo.saves)
}

func TestQueueStore_UnchangedSkipsSave(t *testing.T) {
	store, repo := newConflictingStore(0)

	hooked := false
	q, err := store.Mutate(context.Background(), cafes, func(q *domain.CategoryQueue, now time.Time) error {
		return errUnchanged
	}, func(ctx context.Context, q *domain.CategoryQueue, now time.Time) {
		hooked = true
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), q.Version)
	assert.Equal(t, 0, repo.saves)
	assert.False(t, hooked)
}

func TestQueueStore_RefusesInvalidQueue(t *testing.T) {
	store, repo := newConflictingStore(0)

	_, err := store.Mutate(context.Background(), cafes, func(q *domain.CategoryQueue, now time.Time) error {
		// slot without an active entry
		q.CurrentlyActive = &domain.ActiveSlot{EntryID: "ghost", BusinessID: "ghost"}
		return nil
	}, nil)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
	assert.Equal(t, 0, repo.saves)
}

func TestQueueStore_SerializesConcurrentAdmissions(t *testing.T) {
	store, _ := newConflictingStore(0)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Mutate(ctx, cafes, admitFn(string(rune('a'+i))), nil)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	q, err := store.Load(ctx, cafes)
	require.NoError(t, err)
	require.NoError(t, q.Validate())
	assert.Len(t, q.Entries, 10)
	assert.Len(t, q.PendingEntries(), 9)
	assert.NotNil(t, q.CurrentlyActive)
	assert.Equal(t, int64(10), q.Version)
}

func TestQueueStore_LockTimeout(t *testing.T) {
	locker := repository.NewLocalCategoryLocker()
	store := NewQueueStore(repository.NewMemoryCategoryQueueRepository(), locker, domain.NewManualClock(t0), nil)

	unlock, err := locker.Lock(context.Background(), cafes)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = store.Mutate(ctx, cafes, admitFn("x"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
