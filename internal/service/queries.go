package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/internal/dto"
	"github.com/Umairakbar1/business-backend-sub000/pkg/telemetry"
)

// view loads the category queue and advances a private copy to now, so reads
// reflect due transitions the reconciler has not persisted yet
func (s *boostService) view(ctx context.Context, category string) (*domain.CategoryQueue, string, error) {
	category, err := domain.NormalizeCategory(category)
	if err != nil {
		return nil, "", err
	}
	q, err := s.store.Load(ctx, category)
	if err != nil {
		return nil, category, err
	}

	now := s.now()
	v := q.Clone()
	v.Reconcile(now)
	v.RecomputeEstimates(now)
	return v, category, nil
}

// GetQueuePosition returns the business's 1-based pending position
func (s *boostService) GetQueuePosition(ctx context.Context, businessID, category string) (*dto.QueuePositionResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.boost.get_queue_position")
	defer span.End()
	span.SetAttributes(attribute.String("business_id", businessID))

	q, category, err := s.view(ctx, category)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	position, ok := q.GetQueuePosition(businessID)
	span.SetStatus(codes.Ok, "")
	return &dto.QueuePositionResponse{
		BusinessID:   businessID,
		Category:     category,
		Position:     position,
		InQueue:      ok,
		TotalPending: len(q.PendingEntries()),
	}, nil
}

// GetEstimate returns the projected window of a pending boost or the actual
// window of the active one
func (s *boostService) GetEstimate(ctx context.Context, businessID, category string) (*dto.EstimateResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.boost.get_estimate")
	defer span.End()
	span.SetAttributes(attribute.String("business_id", businessID))

	q, category, err := s.view(ctx, category)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := s.now()
	start, ok := q.GetEstimatedStartTime(businessID, now)
	if !ok {
		span.SetStatus(codes.Error, "no open boost")
		return nil, domain.ErrEntryNotFound
	}
	end, _ := q.GetEstimatedEndTime(businessID, now)

	span.SetStatus(codes.Ok, "")
	return &dto.EstimateResponse{
		BusinessID:         businessID,
		Category:           category,
		EstimatedStartTime: start,
		EstimatedEndTime:   end,
		IsActive:           q.IsBusinessActive(businessID),
	}, nil
}

// IsBusinessActive reports whether the business holds the category slot now
func (s *boostService) IsBusinessActive(ctx context.Context, businessID, category string) (*dto.ActiveResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.boost.is_business_active")
	defer span.End()

	q, category, err := s.view(ctx, category)
	if err != nil {
		if domain.IsNotFoundError(err) && category != "" {
			span.SetStatus(codes.Ok, "no queue")
			return &dto.ActiveResponse{BusinessID: businessID, Category: category}, nil
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return &dto.ActiveResponse{
		BusinessID: businessID,
		Category:   category,
		IsActive:   q.IsBusinessActive(businessID),
	}, nil
}

// GetQueueStatus returns the business's latest boost in the category
func (s *boostService) GetQueueStatus(ctx context.Context, businessID, category string) (*dto.QueueStatusResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.boost.get_queue_status")
	defer span.End()
	span.SetAttributes(attribute.String("business_id", businessID))

	q, category, err := s.view(ctx, category)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	entry := q.LatestEntry(businessID)
	if entry == nil {
		span.SetStatus(codes.Error, "no boost")
		return nil, domain.ErrEntryNotFound
	}

	span.SetStatus(codes.Ok, "")
	return &dto.QueueStatusResponse{
		BusinessID:         businessID,
		Category:           category,
		EntryID:            entry.ID,
		SubscriptionID:     entry.SubscriptionID,
		Status:             entry.Status,
		IsActive:           entry.Status == domain.BoostActive,
		Position:           entry.Position,
		TotalPending:       len(q.PendingEntries()),
		BoostStartTime:     entry.BoostStartTime,
		BoostEndTime:       entry.BoostEndTime,
		EstimatedStartTime: entry.EstimatedStartTime,
		EstimatedEndTime:   entry.EstimatedEndTime,
		CurrentlyActive:    dto.NewActiveSlotResponse(q.CurrentlyActive),
	}, nil
}

// GetCategoryQueue returns the ordered snapshot of a category
func (s *boostService) GetCategoryQueue(ctx context.Context, category string) (*dto.CategoryQueueResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.boost.get_category_queue")
	defer span.End()

	q, _, err := s.view(ctx, category)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.NewCategoryQueueResponse(q), nil
}
