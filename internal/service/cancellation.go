package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/internal/dto"
	"github.com/Umairakbar1/business-backend-sub000/internal/gateway"
	"github.com/Umairakbar1/business-backend-sub000/internal/metrics"
	"github.com/Umairakbar1/business-backend-sub000/pkg/logger"
	"github.com/Umairakbar1/business-backend-sub000/pkg/telemetry"
)

// Cancel removes the business's open boost, promotes the next entry inline
// and then settles the refund outside the category lock. An empty ownerID
// skips the ownership check (admin path).
func (s *boostService) Cancel(ctx context.Context, ownerID string, req *dto.CancelRequest) (*dto.CancelResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.boost.cancel")
	defer span.End()

	if req == nil || req.BusinessID == "" {
		span.SetStatus(codes.Error, "invalid business_id")
		return nil, domain.ErrInvalidBusinessID
	}
	category, err := domain.NormalizeCategory(req.Category)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("business_id", req.BusinessID),
		attribute.String("category", category),
	)

	if ownerID != "" {
		biz, err := s.businessRepo.GetByID(ctx, req.BusinessID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if biz.OwnerID != ownerID {
			span.SetStatus(codes.Error, "not owner")
			return nil, domain.ErrNotOwner
		}
	}

	// Mutate would create the queue; a missing category is reported instead
	q, err := s.store.Load(ctx, category)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// the subscription is read before anything is canceled so a refund owed
	// on it can always be priced and recorded
	sub, subscriptionID, err := s.cancellationSubscription(ctx, q, req.BusinessID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var (
		due         domain.ReconcileResult
		before      *domain.QueueEntry
		removed     *domain.QueueEntry
		promoted    *domain.QueueEntry
		cancelledAt time.Time
	)
	_, err = s.store.Mutate(ctx, category, func(q *domain.CategoryQueue, now time.Time) error {
		before, removed, promoted = nil, nil, nil
		// an elapsed window expires before the cancellation is judged
		due = q.Reconcile(now)
		if open := q.OpenEntry(req.BusinessID); open != nil {
			if open.SubscriptionID != subscriptionID {
				return fmt.Errorf("%w: boost replaced while canceling", domain.ErrConcurrencyConflict)
			}
			before = open.Clone()
		}

		entry, _, err := q.RemoveFromQueue(req.BusinessID, now)
		if err != nil {
			return err
		}
		removed = entry.Clone()
		promoted = q.ActivateNext(now)
		cancelledAt = now
		return nil
	}, func(ctx context.Context, q *domain.CategoryQueue, now time.Time) {
		s.projector.ProjectQueue(ctx, q, []*domain.QueueEntry{due.Expired, due.Activated, removed, promoted}, now)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	publishReconciled(ctx, s.dispatcher, category, due, cancelledAt)
	metrics.RecordCancellation(ctx, category, before.Status)
	s.dispatcher.Dispatch(ctx, domain.NewBoostEvent(domain.EventBoostCanceled, category, removed, cancelledAt))
	if promoted != nil {
		metrics.RecordActivation(ctx, promoted, category)
		s.dispatcher.Dispatch(ctx, domain.NewBoostEvent(domain.EventBoostActivated, category, promoted, cancelledAt))
	}

	resp, err := s.settleCancellation(ctx, category, before, removed, sub, cancelledAt)
	if promoted != nil {
		resp.PromotedEntry = promoted.ID
	}

	logger.Get().InfoContext(ctx, "boost canceled",
		"category", category,
		"business_id", req.BusinessID,
		"previous_status", string(before.Status),
		"refund_percent", resp.RefundPercent,
		"refund_status", resp.RefundStatus,
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// cancellationSubscription loads the subscription behind the business's open
// entry. The returned ID is the one the entry carries even when no record
// exists, so the mutation can detect a boost replaced in between.
func (s *boostService) cancellationSubscription(ctx context.Context, q *domain.CategoryQueue, businessID string) (*domain.Subscription, string, error) {
	open := q.OpenEntry(businessID)
	if open == nil || open.SubscriptionID == "" {
		return nil, "", nil
	}

	sub, err := s.subRepo.GetByID(ctx, open.SubscriptionID)
	switch {
	case err == nil:
		return sub, open.SubscriptionID, nil
	case errors.Is(err, domain.ErrSubscriptionNotFound):
		return nil, open.SubscriptionID, nil
	}
	return nil, "", fmt.Errorf("load subscription %s: %w", open.SubscriptionID, err)
}

// settleCancellation prices the refund from the entry as it was before
// cancellation and executes it. The response is always populated and never
// reports "none" while money is owed.
func (s *boostService) settleCancellation(
	ctx context.Context,
	category string,
	before, removed *domain.QueueEntry,
	sub *domain.Subscription,
	cancelledAt time.Time,
) (*dto.CancelResponse, error) {
	resp := &dto.CancelResponse{
		SubscriptionID: before.SubscriptionID,
		BusinessID:     before.BusinessID,
		Category:       category,
		PreviousStatus: before.Status,
		Currency:       s.currency,
		RefundStatus:   dto.RefundStatusNone,
	}

	var amountPaid int64
	if sub != nil {
		amountPaid = sub.Amount
		resp.Currency = sub.Currency
	}

	quote, err := domain.CalculateRefund(before, amountPaid, resp.Currency, cancelledAt, s.policy)
	if err != nil {
		return resp, err
	}
	resp.UsageFraction = quote.UsageFraction
	resp.RefundPercent = quote.Percent
	resp.RefundAmount = quote.Amount

	if sub == nil {
		resp.Message = "no payment on record"
		return resp, nil
	}
	if !quote.IsRefund() {
		resp.Message = "boost canceled; no refund due"
		return resp, nil
	}

	// the refund write carries the cancellation as well, so it cannot
	// regress the status the commit hook projected
	domain.ProjectSubscription(sub, removed, category, cancelledAt)
	sub.RefundPercent = quote.Percent
	sub.RefundAmount = quote.Amount
	outcome, settleErr := s.settleRefund(ctx, sub, quote.Amount)
	recordErr := s.recordRefund(ctx, sub, quote.Percent, quote.Amount, outcome, settleErr)

	switch {
	case errors.Is(settleErr, domain.ErrRefundNeedsReview):
		resp.RefundStatus = dto.RefundStatusReview
		resp.Message = "boost canceled; refund needs manual review"
		return resp, errors.Join(settleErr, recordErr)
	case settleErr != nil:
		resp.RefundStatus = dto.RefundStatusPending
		resp.Message = "boost canceled; refund will be retried"
		if recordErr != nil {
			resp.Message = "boost canceled; refund owed but not yet recorded"
		}
		return resp, errors.Join(settleErr, recordErr)
	}

	resp.RefundStatus = outcome.status
	resp.RefundID = outcome.refundID
	if recordErr != nil {
		resp.Message = "refund issued; subscription record not yet updated"
		return resp, recordErr
	}
	return resp, nil
}

type refundOutcome struct {
	status   string
	refundID string
}

// settleRefund voids an uncaptured full refund, captures only the kept share
// of an authorized payment, or refunds a captured one. Intents in any other
// state go to manual review rather than being retried forever.
func (s *boostService) settleRefund(ctx context.Context, sub *domain.Subscription, amount int64) (refundOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.boost.settle_refund")
	defer span.End()
	span.SetAttributes(
		attribute.String("subscription_id", sub.ID),
		attribute.Int64("amount", amount),
	)

	if amount <= 0 {
		return refundOutcome{status: dto.RefundStatusNone}, nil
	}

	fail := func(op string, err error) (refundOutcome, error) {
		err = domain.NewPaymentGatewayError(op, err)
		metrics.RecordRefundFailure(ctx, op)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return refundOutcome{}, err
	}

	pi, err := s.gateway.GetPaymentIntent(ctx, sub.PaymentIntentID)
	if err != nil {
		return fail("get_payment_intent", err)
	}

	switch {
	case pi.Status == gateway.IntentCanceled:
		span.SetStatus(codes.Ok, "already voided")
		return refundOutcome{status: dto.RefundStatusVoided}, nil

	case pi.Status.Cancelable() && amount >= sub.Amount:
		if _, err := s.gateway.CancelPaymentIntent(ctx, pi.ID); err != nil {
			return fail("cancel_payment_intent", err)
		}
		metrics.RecordRefund(ctx, sub.RefundPercent, amount)
		span.SetStatus(codes.Ok, "voided")
		return refundOutcome{status: dto.RefundStatusVoided}, nil

	case pi.Status == gateway.IntentRequiresCapture:
		// keep the used share and release the rest of the authorization
		if _, err := s.gateway.CapturePaymentIntent(ctx, &gateway.CaptureRequest{
			PaymentIntentID: pi.ID,
			AmountToCapture: sub.Amount - amount,
			IdempotencyKey:  "boost-capture-" + sub.ID,
		}); err != nil {
			return fail("capture_payment_intent", err)
		}
		metrics.RecordRefund(ctx, sub.RefundPercent, amount)
		span.SetStatus(codes.Ok, "released")
		return refundOutcome{status: dto.RefundStatusReleased}, nil

	case pi.Status.Captured():
		refund, err := s.gateway.Refund(ctx, &gateway.RefundRequest{
			PaymentIntentID: pi.ID,
			Amount:          amount,
			Reason:          "boost canceled",
			IdempotencyKey:  refundIdempotencyKey(sub.ID),
			Metadata:        map[string]string{"subscription_id": sub.ID},
		})
		if err != nil {
			return fail("create_refund", err)
		}
		metrics.RecordRefund(ctx, sub.RefundPercent, amount)
		span.SetStatus(codes.Ok, "refunded")
		return refundOutcome{status: dto.RefundStatusRefunded, refundID: refund.RefundID}, nil

	case pi.Status == gateway.IntentProcessing:
		// settles to succeeded or back to requires_payment_method on its own
		return fail("settle_refund", fmt.Errorf("payment intent %s is still processing", pi.ID))
	}

	err = fmt.Errorf("%w: payment intent %s is %s", domain.ErrRefundNeedsReview, pi.ID, pi.Status)
	metrics.RecordRefundFailure(ctx, "manual_review")
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return refundOutcome{}, err
}

// recordRefund writes the refund outcome onto the subscription and notifies
// the owner. The write is retried; an error means the outcome is not stored.
func (s *boostService) recordRefund(ctx context.Context, sub *domain.Subscription, percent int, amount int64, outcome refundOutcome, settleErr error) error {
	now := s.now()
	sub.RefundPercent = percent
	sub.RefundAmount = amount
	sub.UpdatedAt = now

	eventType := domain.EventRefundIssued
	switch {
	case errors.Is(settleErr, domain.ErrRefundNeedsReview):
		eventType = domain.EventRefundFailed
		sub.PaymentStatus = domain.PaymentRefundReview
		sub.RefundFailure = settleErr.Error()
	case settleErr != nil:
		eventType = domain.EventRefundFailed
		sub.PaymentStatus = domain.PaymentRefundPending
		sub.RefundFailure = settleErr.Error()
	default:
		sub.RefundFailure = ""
		sub.RefundID = outcome.refundID
		switch {
		case outcome.status == dto.RefundStatusVoided:
			sub.PaymentStatus = domain.PaymentVoided
		case amount >= sub.Amount:
			sub.PaymentStatus = domain.PaymentRefunded
		default:
			sub.PaymentStatus = domain.PaymentPartiallyRefunded
		}
	}

	err := retryWrite(ctx, s.writes, func(ctx context.Context) error {
		return s.subRepo.Update(ctx, sub)
	})
	if err != nil {
		logger.Get().ErrorContext(ctx, "failed to record refund outcome",
			"subscription_id", sub.ID,
			"payment_status", string(sub.PaymentStatus),
			"refund_amount", amount,
			"error", err,
		)
		err = fmt.Errorf("record refund for subscription %s: %w", sub.ID, err)
	}

	event := &domain.BoostEvent{
		ID:             uuid.NewString(),
		Type:           eventType,
		Category:       sub.Category,
		BusinessID:     sub.BusinessID,
		OwnerID:        sub.OwnerID,
		SubscriptionID: sub.ID,
		Status:         sub.Status,
		RefundPercent:  percent,
		RefundAmount:   amount,
		OccurredAt:     now,
	}
	if sub.BoostQueueInfo != nil {
		event.EntryID = sub.BoostQueueInfo.QueueID
	}
	s.dispatcher.Dispatch(ctx, event)
	return err
}

// RetryPendingRefunds re-attempts refunds left pending by gateway failures
func (s *boostService) RetryPendingRefunds(ctx context.Context, limit int) (*RefundRetrySummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.boost.retry_pending_refunds")
	defer span.End()

	subs, err := s.subRepo.ListByPaymentStatus(ctx, domain.PaymentRefundPending, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	summary := &RefundRetrySummary{}
	for _, sub := range subs {
		if ctx.Err() != nil {
			break
		}
		summary.Attempted++

		outcome, err := s.settleRefund(ctx, sub, sub.RefundAmount)
		if errors.Is(err, domain.ErrRefundNeedsReview) {
			summary.Failed++
			summary.Review++
			// leaves the pending list; later sweeps skip it
			_ = s.recordRefund(ctx, sub, sub.RefundPercent, sub.RefundAmount, outcome, err)
			continue
		}
		if err != nil {
			summary.Failed++
			sub.RefundFailure = err.Error()
			sub.UpdatedAt = s.now()
			if updateErr := s.subRepo.Update(ctx, sub); updateErr != nil {
				logger.Get().Warn("failed to record refund retry failure",
					"subscription_id", sub.ID,
					"error", updateErr,
				)
			}
			logger.Get().Warn("pending refund still failing",
				"subscription_id", sub.ID,
				"amount", sub.RefundAmount,
				"error", err,
			)
			continue
		}

		summary.Succeeded++
		_ = s.recordRefund(ctx, sub, sub.RefundPercent, sub.RefundAmount, outcome, nil)
	}

	span.SetAttributes(
		attribute.Int("attempted", summary.Attempted),
		attribute.Int("succeeded", summary.Succeeded),
		attribute.Int("failed", summary.Failed),
		attribute.Int("review", summary.Review),
	)
	span.SetStatus(codes.Ok, "")
	return summary, nil
}
