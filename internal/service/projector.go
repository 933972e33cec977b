package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/internal/repository"
	"github.com/Umairakbar1/business-backend-sub000/pkg/logger"
	"github.com/Umairakbar1/business-backend-sub000/pkg/retry"
	"github.com/Umairakbar1/business-backend-sub000/pkg/telemetry"
)

// Projector mirrors queue entries onto subscription and business records.
// It only writes derived fields and never reads them back into the queue.
type Projector struct {
	subRepo      repository.SubscriptionRepository
	businessRepo repository.BusinessRepository
	queues       repository.CategoryQueueRepository
	writes       *retry.Retrier
}

// NewProjector creates a new projector. queues is read to find boosts a
// business still holds in other categories when one of its boosts closes.
func NewProjector(
	subRepo repository.SubscriptionRepository,
	businessRepo repository.BusinessRepository,
	queues repository.CategoryQueueRepository,
) *Projector {
	return &Projector{
		subRepo:      subRepo,
		businessRepo: businessRepo,
		queues:       queues,
		writes:       newRecordRetrier(),
	}
}

// newRecordRetrier retries record writes that follow an already committed
// queue change; missing records are not retried
func newRecordRetrier() *retry.Retrier {
	return retry.New(&retry.Config{
		MaxRetries:      2,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     100 * time.Millisecond,
		Multiplier:      2.0,
		JitterFactor:    0.2,
		ShouldRetry: func(err error) bool {
			return !domain.IsNotFoundError(err)
		},
	})
}

// retryWrite runs write through r and returns the last underlying error
func retryWrite(ctx context.Context, r *retry.Retrier, write retry.Operation) error {
	result := r.Do(ctx, write)
	if result.Err == nil {
		return nil
	}
	if result.LastError != nil {
		return result.LastError
	}
	return result.Err
}

// ProjectQueue projects the changed entries and refreshes every pending
// subscription, whose positions and estimates may have shifted. Writes are
// retried; what still fails is logged and left to RepairClosed.
func (p *Projector) ProjectQueue(ctx context.Context, q *domain.CategoryQueue, changed []*domain.QueueEntry, now time.Time) {
	ctx, span := telemetry.StartSpan(ctx, "service.projector.project_queue")
	defer span.End()
	span.SetAttributes(
		attribute.String("category", q.Category),
		attribute.Int("changed", len(changed)),
	)

	seen := make(map[string]bool, len(changed))
	for _, entry := range changed {
		if entry == nil || seen[entry.ID] {
			continue
		}
		seen[entry.ID] = true
		p.projectEntry(ctx, q.Category, entry, now, true)
	}

	for _, entry := range q.PendingEntries() {
		if seen[entry.ID] {
			continue
		}
		p.projectEntry(ctx, q.Category, entry, now, false)
	}
}

// RepairClosed reprojects entries closed at or after since whose subscription
// still shows a different status. Closed entries never change again, so the
// repair needs no ordering with later transitions. It returns how many
// entries were reprojected.
func (p *Projector) RepairClosed(ctx context.Context, q *domain.CategoryQueue, since, now time.Time) int {
	repaired := 0
	for _, entry := range q.Entries {
		if !entry.Status.IsTerminal() || entry.SubscriptionID == "" || entry.ClosedAt == nil || entry.ClosedAt.Before(since) {
			continue
		}
		sub, err := p.subRepo.GetByID(ctx, entry.SubscriptionID)
		if err != nil {
			if !errors.Is(err, domain.ErrSubscriptionNotFound) {
				logger.Get().Warn("failed to check boost projection",
					"category", q.Category,
					"entry_id", entry.ID,
					"error", err,
				)
			}
			continue
		}
		if sub.Status == entry.Status {
			continue
		}

		logger.Get().Info("repairing stale boost projection",
			"category", q.Category,
			"entry_id", entry.ID,
			"subscription_id", entry.SubscriptionID,
			"recorded_status", string(sub.Status),
			"entry_status", string(entry.Status),
		)
		p.projectEntry(ctx, q.Category, entry, now, true)
		repaired++
	}
	return repaired
}

func (p *Projector) projectEntry(ctx context.Context, category string, entry *domain.QueueEntry, now time.Time, withBusiness bool) {
	log := logger.Get()

	if err := p.ProjectSubscription(ctx, category, entry, now); err != nil {
		log.Warn("failed to project subscription",
			"category", category,
			"entry_id", entry.ID,
			"subscription_id", entry.SubscriptionID,
			"error", err,
		)
	}

	if !withBusiness {
		return
	}
	if err := p.ProjectBusiness(ctx, category, entry, now); err != nil {
		log.Warn("failed to project business boost status",
			"category", category,
			"entry_id", entry.ID,
			"business_id", entry.BusinessID,
			"error", err,
		)
	}
}

// ProjectSubscription rewrites the subscription's status and queue snapshot.
// Entries admitted without a subscription record are skipped.
func (p *Projector) ProjectSubscription(ctx context.Context, category string, entry *domain.QueueEntry, now time.Time) error {
	if entry.SubscriptionID == "" {
		return nil
	}
	err := retryWrite(ctx, p.writes, func(ctx context.Context) error {
		sub, err := p.subRepo.GetByID(ctx, entry.SubscriptionID)
		if err != nil {
			return err
		}
		domain.ProjectSubscription(sub, entry, category, now)
		return p.subRepo.UpdateProjection(ctx, sub)
	})
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		return nil
	}
	return err
}

// ProjectBusiness sets or clears the business boost flags. When a closed
// entry clears them, a boost the business still holds in any category is
// restored so one category's close never hides another's active slot.
func (p *Projector) ProjectBusiness(ctx context.Context, category string, entry *domain.QueueEntry, now time.Time) error {
	if entry.Status == domain.BoostPending {
		return nil
	}
	err := retryWrite(ctx, p.writes, func(ctx context.Context) error {
		biz, err := p.businessRepo.GetByID(ctx, entry.BusinessID)
		if err != nil {
			return err
		}
		domain.ProjectBusiness(biz, entry, category, now)
		if !biz.IsBoosted {
			slots, err := p.activeSlots(ctx, biz.ID)
			if err != nil {
				return err
			}
			domain.RestoreBusinessBoost(biz, slots, now)
		}
		return p.businessRepo.UpdateBoostStatus(ctx, biz)
	})
	if errors.Is(err, domain.ErrBusinessNotFound) {
		return nil
	}
	return err
}

// activeSlots returns the slots the business occupies, keyed by category
func (p *Projector) activeSlots(ctx context.Context, businessID string) (map[string]*domain.ActiveSlot, error) {
	categories, err := p.queues.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	slots := make(map[string]*domain.ActiveSlot)
	for _, category := range categories {
		q, err := p.queues.Get(ctx, category)
		if err != nil {
			if errors.Is(err, domain.ErrCategoryNotFound) {
				continue
			}
			return nil, err
		}
		if q.CurrentlyActive != nil && q.CurrentlyActive.BusinessID == businessID {
			slot := *q.CurrentlyActive
			slots[category] = &slot
		}
	}
	return slots, nil
}
