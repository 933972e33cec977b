package service

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/internal/dto"
	"github.com/Umairakbar1/business-backend-sub000/internal/metrics"
	"github.com/Umairakbar1/business-backend-sub000/internal/notifier"
	"github.com/Umairakbar1/business-backend-sub000/pkg/logger"
	"github.com/Umairakbar1/business-backend-sub000/pkg/telemetry"
)

// Reconciler advances time-driven queue transitions
type Reconciler interface {
	// ReconcileCategory expires an elapsed boost and promotes the next one
	ReconcileCategory(ctx context.Context, category string) (domain.ReconcileResult, error)

	// ReconcileAll reconciles every category; per-category failures are
	// logged and counted, never returned
	ReconcileAll(ctx context.Context) *dto.ReconcileResponse
}

// ReconcilerConfig contains configuration for the reconciler
type ReconcilerConfig struct {
	// Workers bounds how many categories are reconciled at once (default: 4)
	Workers int
}

type reconciler struct {
	store      *QueueStore
	projector  *Projector
	dispatcher *notifier.Dispatcher
	workers    int
}

// NewReconciler creates a new reconciler
func NewReconciler(store *QueueStore, projector *Projector, dispatcher *notifier.Dispatcher, cfg *ReconcilerConfig) Reconciler {
	workers := 4
	if cfg != nil && cfg.Workers > 0 {
		workers = cfg.Workers
	}
	if dispatcher == nil {
		dispatcher = notifier.NewDispatcher(nil, 0)
	}
	return &reconciler{
		store:      store,
		projector:  projector,
		dispatcher: dispatcher,
		workers:    workers,
	}
}

func (r *reconciler) ReconcileCategory(ctx context.Context, category string) (domain.ReconcileResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reconciler.reconcile_category")
	defer span.End()
	span.SetAttributes(attribute.String("category", category))

	var (
		result domain.ReconcileResult
		at     time.Time
	)
	q, err := r.store.Mutate(ctx, category, func(q *domain.CategoryQueue, now time.Time) error {
		at = now
		result = q.Reconcile(now)
		if !result.Changed() {
			return errUnchanged
		}
		return nil
	}, func(ctx context.Context, q *domain.CategoryQueue, now time.Time) {
		r.projector.ProjectQueue(ctx, q, []*domain.QueueEntry{result.Expired, result.Activated}, now)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.ReconcileResult{}, err
	}

	if result.Expired != nil {
		result.Expired = result.Expired.Clone()
	}
	if result.Activated != nil {
		result.Activated = result.Activated.Clone()
	}
	publishReconciled(ctx, r.dispatcher, category, result, at)

	// projections of boosts closed within the last window that failed earlier
	repaired := r.projector.RepairClosed(ctx, q, at.Add(-r.store.BoostDuration()), at)

	span.SetAttributes(
		attribute.Bool("expired", result.Expired != nil),
		attribute.Bool("activated", result.Activated != nil),
		attribute.Int("repaired", repaired),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (r *reconciler) ReconcileAll(ctx context.Context) *dto.ReconcileResponse {
	ctx, span := telemetry.StartSpan(ctx, "service.reconciler.reconcile_all")
	defer span.End()

	started := time.Now()
	summary := &dto.ReconcileResponse{}

	categories, err := r.store.Categories(ctx)
	if err != nil {
		logger.Get().ErrorContext(ctx, "failed to list boost categories", "error", err)
		metrics.RecordReconcile(ctx, time.Since(started).Seconds(), 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		summary.Failed = 1
		summary.Duration = time.Since(started).String()
		return summary
	}
	summary.Categories = len(categories)

	var mu sync.Mutex
	jobs := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < min(r.workers, len(categories)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for category := range jobs {
				result, err := r.ReconcileCategory(ctx, category)

				mu.Lock()
				switch {
				case err != nil:
					summary.Failed++
				default:
					if result.Expired != nil {
						summary.Expired++
					}
					if result.Activated != nil {
						summary.Activated++
					}
				}
				mu.Unlock()

				if err != nil {
					logger.Get().ErrorContext(ctx, "failed to reconcile category",
						"category", category,
						"error", err,
					)
				}
			}
		}()
	}

dispatch:
	for _, category := range categories {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- category:
		}
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(started)
	summary.Duration = elapsed.String()
	metrics.RecordReconcile(ctx, elapsed.Seconds(), summary.Failed)

	span.SetAttributes(
		attribute.Int("categories", summary.Categories),
		attribute.Int("expired", summary.Expired),
		attribute.Int("activated", summary.Activated),
		attribute.Int("failed", summary.Failed),
	)
	span.SetStatus(codes.Ok, "")
	return summary
}

// publishReconciled records metrics and notifies owners about transitions
// performed by a reconcile step
func publishReconciled(ctx context.Context, d *notifier.Dispatcher, category string, result domain.ReconcileResult, now time.Time) {
	if result.Expired != nil {
		metrics.RecordExpiration(ctx, category)
		d.Dispatch(ctx, domain.NewBoostEvent(domain.EventBoostExpired, category, result.Expired, now))
		logger.Get().InfoContext(ctx, "boost expired",
			"category", category,
			"business_id", result.Expired.BusinessID,
			"entry_id", result.Expired.ID,
		)
	}
	if result.Activated != nil {
		metrics.RecordActivation(ctx, result.Activated, category)
		d.Dispatch(ctx, domain.NewBoostEvent(domain.EventBoostActivated, category, result.Activated, now))
		logger.Get().InfoContext(ctx, "boost activated",
			"category", category,
			"business_id", result.Activated.BusinessID,
			"entry_id", result.Activated.ID,
		)
	}
}
