package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/internal/dto"
	"github.com/Umairakbar1/business-backend-sub000/internal/gateway"
	"github.com/Umairakbar1/business-backend-sub000/internal/metrics"
	"github.com/Umairakbar1/business-backend-sub000/pkg/logger"
	"github.com/Umairakbar1/business-backend-sub000/pkg/telemetry"
)

// Checkout validates the purchase and opens a payment intent. The queue is
// not touched until ConfirmPurchase sees a captured payment.
func (s *boostService) Checkout(ctx context.Context, ownerID string, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.boost.checkout")
	defer span.End()

	if req == nil || req.BusinessID == "" {
		span.SetStatus(codes.Error, "invalid business_id")
		return nil, domain.ErrInvalidBusinessID
	}
	if ownerID == "" {
		span.SetStatus(codes.Error, "invalid owner_id")
		return nil, domain.ErrInvalidOwnerID
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
	if !biz.HasCategory(category) {
		span.SetStatus(codes.Error, "category not configured")
		return nil, fmt.Errorf("%w: business %s is not listed in %s", domain.ErrCategoryNotFound, biz.ID, category)
	}

	// reject duplicates before anyone is charged
	if err := s.ensureNoOpenBoost(ctx, biz.ID, category); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sub, err := domain.NewSubscription(biz.ID, ownerID, category, s.price, s.currency, s.now())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	pi, err := s.gateway.CreatePaymentIntent(ctx, &gateway.PaymentIntentRequest{
		SubscriptionID: sub.ID,
		CustomerID:     req.CustomerID,
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		Description:    fmt.Sprintf("Boost for %s in %s", biz.Name, category),
		Metadata: map[string]string{
			"business_id": biz.ID,
			"owner_id":    ownerID,
			"category":    category,
		},
	})
	if err != nil {
		err = domain.NewPaymentGatewayError("create_payment_intent", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sub.PaymentIntentID = pi.ID
	if err := s.subRepo.Create(ctx, sub); err != nil {
		// nothing references the intent, so void it
		if _, cancelErr := s.gateway.CancelPaymentIntent(ctx, pi.ID); cancelErr != nil {
			logger.Get().ErrorContext(ctx, "failed to void orphaned payment intent",
				"payment_intent_id", pi.ID,
				"error", cancelErr,
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to store subscription: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return &dto.CheckoutResponse{
		SubscriptionID:  sub.ID,
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
		Amount:          sub.Amount,
		Currency:        sub.Currency,
		Category:        category,
	}, nil
}

// ConfirmPurchase admits a paid subscription. Calling it again after success
// returns the current placement.
func (s *boostService) ConfirmPurchase(ctx context.Context, ownerID, subscriptionID string) (*dto.AdmissionResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.boost.confirm_purchase")
	defer span.End()
	span.SetAttributes(attribute.String("subscription_id", subscriptionID))

	sub, err := s.subRepo.GetByID(ctx, subscriptionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if ownerID != "" && sub.OwnerID != ownerID {
		span.SetStatus(codes.Error, "not owner")
		return nil, domain.ErrNotOwner
	}

	if sub.IsAdmitted() {
		span.SetStatus(codes.Ok, "already admitted")
		return s.admissionSnapshot(ctx, sub)
	}
	if sub.Status.IsTerminal() {
		span.SetStatus(codes.Error, "subscription closed")
		return nil, domain.ErrAlreadyTerminal
	}
	if sub.PaymentIntentID == "" {
		span.SetStatus(codes.Error, "no payment intent")
		return nil, domain.ErrPaymentNotCompleted
	}

	pi, err := s.gateway.GetPaymentIntent(ctx, sub.PaymentIntentID)
	if err != nil {
		err = domain.NewPaymentGatewayError("get_payment_intent", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !pi.Status.Captured() {
		span.SetStatus(codes.Error, "payment not completed")
		return nil, fmt.Errorf("%w: payment intent %s is %s", domain.ErrPaymentNotCompleted, pi.ID, pi.Status)
	}

	if sub.PaymentStatus != domain.PaymentPaid {
		sub.PaymentStatus = domain.PaymentPaid
		sub.UpdatedAt = s.now()
		if err := s.subRepo.Update(ctx, sub); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	result, err := s.Admit(ctx, &AdmitRequest{
		BusinessID:     sub.BusinessID,
		OwnerID:        sub.OwnerID,
		SubscriptionID: sub.ID,
		Category:       sub.Category,
	})
	if err != nil {
		if rejectsAdmission(err) {
			s.compensate(ctx, sub, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.NewAdmissionResponse(result.Category, result.Entry, result.Activated), nil
}

// ConfirmPaymentIntent confirms the subscription that owns a payment intent
func (s *boostService) ConfirmPaymentIntent(ctx context.Context, paymentIntentID string) (*dto.AdmissionResponse, error) {
	sub, err := s.subRepo.GetByPaymentIntentID(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	return s.ConfirmPurchase(ctx, "", sub.ID)
}

// Admit places a paid boost: straight into the slot when the category is
// idle, otherwise at the tail of the queue. Re-admitting the same
// subscription returns its existing entry.
func (s *boostService) Admit(ctx context.Context, req *AdmitRequest) (*AdmitResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.boost.admit")
	defer span.End()

	if req == nil {
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
		attribute.String("subscription_id", req.SubscriptionID),
	)

	var (
		result AdmitResult
		due    domain.ReconcileResult
	)
	_, err = s.store.Mutate(ctx, category, func(q *domain.CategoryQueue, now time.Time) error {
		due = domain.ReconcileResult{}
		if req.SubscriptionID != "" {
			if existing := q.EntryBySubscription(req.SubscriptionID); existing != nil {
				result = AdmitResult{
					Category:  category,
					Entry:     existing,
					Activated: existing.Status == domain.BoostActive,
					Existing:  true,
				}
				return errUnchanged
			}
		}

		// a slot whose window has elapsed is released before the newcomer is placed
		due = q.Reconcile(now)
		entry, activated, err := q.Admit(domain.NewQueueEntry(req.BusinessID, req.OwnerID, req.SubscriptionID), now)
		if err != nil {
			return err
		}
		result = AdmitResult{Category: category, Entry: entry, Activated: activated}
		return nil
	}, func(ctx context.Context, q *domain.CategoryQueue, now time.Time) {
		s.projector.ProjectQueue(ctx, q, []*domain.QueueEntry{due.Expired, due.Activated, result.Entry}, now)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result.Entry = result.Entry.Clone()
	span.SetAttributes(
		attribute.Bool("activated", result.Activated),
		attribute.Bool("existing", result.Existing),
	)
	if result.Existing {
		span.SetStatus(codes.Ok, "already admitted")
		return &result, nil
	}

	now := s.now()
	publishReconciled(ctx, s.dispatcher, category, due, now)
	metrics.RecordAdmission(ctx, category, result.Activated)
	s.dispatcher.Dispatch(ctx, domain.NewBoostEvent(domain.EventBoostCreated, category, result.Entry, now))
	if result.Activated {
		s.dispatcher.Dispatch(ctx, domain.NewBoostEvent(domain.EventBoostActivated, category, result.Entry, now))
	}

	logger.Get().InfoContext(ctx, "boost admitted",
		"category", category,
		"business_id", req.BusinessID,
		"entry_id", result.Entry.ID,
		"activated", result.Activated,
		"position", result.Entry.Position,
	)

	span.SetStatus(codes.Ok, "")
	return &result, nil
}

func (s *boostService) ensureNoOpenBoost(ctx context.Context, businessID, category string) error {
	q, err := s.store.Load(ctx, category)
	if err != nil {
		if errors.Is(err, domain.ErrCategoryNotFound) {
			return nil
		}
		return err
	}
	if q.OpenEntry(businessID) != nil {
		return domain.ErrDuplicateEntry
	}
	return nil
}

func (s *boostService) admissionSnapshot(ctx context.Context, sub *domain.Subscription) (*dto.AdmissionResponse, error) {
	q, err := s.store.Load(ctx, sub.Category)
	if err != nil {
		return nil, err
	}
	entry := q.EntryByID(sub.BoostQueueInfo.QueueID)
	if entry == nil {
		return nil, domain.ErrEntryNotFound
	}
	return dto.NewAdmissionResponse(sub.Category, entry, entry.Status == domain.BoostActive), nil
}

// rejectsAdmission reports errors that will fail the same way on every retry
func rejectsAdmission(err error) bool {
	return errors.Is(err, domain.ErrDuplicateEntry) || domain.IsValidationError(err)
}

// compensate refunds a captured payment whose boost could not be admitted
// and closes the subscription
func (s *boostService) compensate(ctx context.Context, sub *domain.Subscription, cause error) {
	log := logger.Get()
	now := s.now()

	sub.Status = domain.BoostCanceled
	sub.RefundPercent = 100
	sub.RefundAmount = sub.Amount
	sub.UpdatedAt = now

	refund, err := s.gateway.Refund(ctx, &gateway.RefundRequest{
		PaymentIntentID: sub.PaymentIntentID,
		Amount:          sub.Amount,
		Reason:          "admission rejected",
		IdempotencyKey:  refundIdempotencyKey(sub.ID),
		Metadata:        map[string]string{"subscription_id": sub.ID, "cause": cause.Error()},
	})
	if err != nil {
		gwErr := domain.NewPaymentGatewayError("create_refund", err)
		sub.PaymentStatus = domain.PaymentRefundPending
		sub.RefundFailure = gwErr.Error()
		metrics.RecordRefundFailure(ctx, "create_refund")
		log.ErrorContext(ctx, "failed to refund rejected boost purchase",
			"subscription_id", sub.ID,
			"cause", cause,
			"error", err,
		)
	} else {
		sub.PaymentStatus = domain.PaymentRefunded
		sub.RefundID = refund.RefundID
		sub.RefundFailure = ""
		metrics.RecordRefund(ctx, 100, sub.Amount)
		log.InfoContext(ctx, "refunded rejected boost purchase",
			"subscription_id", sub.ID,
			"refund_id", refund.RefundID,
			"cause", cause,
		)
	}

	if err := s.subRepo.Update(ctx, sub); err != nil {
		log.ErrorContext(ctx, "failed to record boost purchase compensation",
			"subscription_id", sub.ID,
			"error", err,
		)
	}
}

func refundIdempotencyKey(subscriptionID string) string {
	return "boost-refund-" + subscriptionID
}
