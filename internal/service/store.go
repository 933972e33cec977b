package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/internal/metrics"
	"github.com/Umairakbar1/business-backend-sub000/internal/repository"
	"github.com/Umairakbar1/business-backend-sub000/pkg/logger"
	"github.com/Umairakbar1/business-backend-sub000/pkg/retry"
	"github.com/Umairakbar1/business-backend-sub000/pkg/telemetry"
)

// errUnchanged lets a Mutation finish without writing the queue
var errUnchanged = errors.New("queue unchanged")

// Mutation runs against a freshly loaded queue while the category lock is held.
// Returning errUnchanged skips the save; any other error aborts with nothing written.
type Mutation func(q *domain.CategoryQueue, now time.Time) error

// CommitHook runs after a successful save, still under the category lock, so
// projections are written in the same order as queue versions
type CommitHook func(ctx context.Context, q *domain.CategoryQueue, now time.Time)

// QueueStore is the single write path for category queues:
// lock, load, mutate, validate, compare-and-swap save.
type QueueStore struct {
	repo     repository.CategoryQueueRepository
	locker   repository.CategoryLocker
	clock    domain.Clock
	duration time.Duration
	retrier  *retry.Retrier
}

// QueueStoreConfig contains configuration for the queue store
type QueueStoreConfig struct {
	BoostDuration      time.Duration
	MaxConflictRetries int
	RetryInterval      time.Duration
}

// NewQueueStore creates a new queue store
func NewQueueStore(
	repo repository.CategoryQueueRepository,
	locker repository.CategoryLocker,
	clock domain.Clock,
	cfg *QueueStoreConfig,
) *QueueStore {
	duration := domain.DefaultBoostDuration
	maxRetries := 3
	interval := 20 * time.Millisecond

	if cfg != nil {
		if cfg.BoostDuration > 0 {
			duration = cfg.BoostDuration
		}
		if cfg.MaxConflictRetries > 0 {
			maxRetries = cfg.MaxConflictRetries
		}
		if cfg.RetryInterval > 0 {
			interval = cfg.RetryInterval
		}
	}
	if locker == nil {
		locker = repository.NewLocalCategoryLocker()
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}

	return &QueueStore{
		repo:     repo,
		locker:   locker,
		clock:    clock,
		duration: duration,
		retrier: retry.New(&retry.Config{
			MaxRetries:      maxRetries,
			InitialInterval: interval,
			MaxInterval:     10 * interval,
			Multiplier:      2.0,
			JitterFactor:    0.2,
			ShouldRetry: func(err error) bool {
				return errors.Is(err, domain.ErrConcurrencyConflict)
			},
		}),
	}
}

// Now returns the store clock's current time
func (s *QueueStore) Now() time.Time {
	return s.clock.Now()
}

// BoostDuration returns the window length used for new queues
func (s *QueueStore) BoostDuration() time.Duration {
	return s.duration
}

// Mutate applies fn to the category's queue and persists the result. A lost
// version race reruns the whole lock-load-mutate-save cycle; once retries are
// exhausted domain.ErrConcurrencyConflict is returned.
func (s *QueueStore) Mutate(ctx context.Context, category string, fn Mutation, onCommit CommitHook) (*domain.CategoryQueue, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.queue_store.mutate")
	defer span.End()
	span.SetAttributes(attribute.String("category", category))

	var saved *domain.CategoryQueue
	result := s.retrier.DoWithCallback(ctx, func(ctx context.Context) error {
		q, err := s.mutateOnce(ctx, category, fn, onCommit)
		if err != nil {
			return err
		}
		saved = q
		return nil
	}, func(attempt int, err error, next time.Duration) {
		metrics.RecordConflictRetry(ctx, category)
		logger.Get().Debug("retrying category mutation",
			"category", category,
			"attempt", attempt,
			"backoff", next.String(),
		)
	})
	span.SetAttributes(attribute.Int("attempts", result.Attempts))

	if result.Err != nil {
		err := result.Err
		switch {
		case errors.Is(err, retry.ErrMaxRetriesExceeded):
			err = result.LastError
		case errors.Is(err, retry.ErrContextCanceled):
			err = fmt.Errorf("mutate category %s: %w", category, ctx.Err())
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return saved, nil
}

func (s *QueueStore) mutateOnce(ctx context.Context, category string, fn Mutation, onCommit CommitHook) (*domain.CategoryQueue, error) {
	unlock, err := s.locker.Lock(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("lock category %s: %w", category, err)
	}
	defer unlock()

	// time is read under the lock so transitions are ordered with versions
	now := s.clock.Now()

	q, err := s.repo.GetOrCreate(ctx, category, s.duration, now)
	if err != nil {
		return nil, err
	}

	if err := fn(q, now); err != nil {
		if errors.Is(err, errUnchanged) {
			return q, nil
		}
		return nil, err
	}

	if err := q.Validate(); err != nil {
		logger.Get().ErrorContext(ctx, "refusing to save invalid category queue",
			"category", category,
			"version", q.Version,
			"error", err,
		)
		return nil, err
	}

	if err := s.repo.Save(ctx, q); err != nil {
		return nil, err
	}

	if onCommit != nil {
		onCommit(ctx, q, now)
	}
	return q, nil
}

// Load returns the stored queue without locking; reads tolerate staleness
func (s *QueueStore) Load(ctx context.Context, category string) (*domain.CategoryQueue, error) {
	return s.repo.Get(ctx, category)
}

// Categories lists every category with a queue
func (s *QueueStore) Categories(ctx context.Context) ([]string, error) {
	return s.repo.ListCategories(ctx)
}
