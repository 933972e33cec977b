package service

import (
	"context"
	"math"
	"time"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/internal/dto"
	"github.com/Umairakbar1/business-backend-sub000/internal/gateway"
	"github.com/Umairakbar1/business-backend-sub000/internal/notifier"
	"github.com/Umairakbar1/business-backend-sub000/internal/repository"
	"github.com/Umairakbar1/business-backend-sub000/pkg/retry"
)

// BoostService defines the interface for boost purchase, cancellation and queue reads
type BoostService interface {
	// Checkout opens a payment for a boost without touching the queue
	Checkout(ctx context.Context, ownerID string, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error)

	// ConfirmPurchase admits a subscription once its payment has succeeded.
	// An empty ownerID skips the ownership check (webhook path).
	ConfirmPurchase(ctx context.Context, ownerID, subscriptionID string) (*dto.AdmissionResponse, error)

	// ConfirmPaymentIntent resolves the subscription behind a payment intent and confirms it
	ConfirmPaymentIntent(ctx context.Context, paymentIntentID string) (*dto.AdmissionResponse, error)

	// Admit places a paid boost in its category queue
	Admit(ctx context.Context, req *AdmitRequest) (*AdmitResult, error)

	// Cancel removes the business's open boost and settles the refund.
	// A gateway failure returns both the response (refund pending) and the error.
	Cancel(ctx context.Context, ownerID string, req *dto.CancelRequest) (*dto.CancelResponse, error)

	// RetryPendingRefunds re-attempts refunds the gateway previously rejected
	RetryPendingRefunds(ctx context.Context, limit int) (*RefundRetrySummary, error)

	// GetQueuePosition returns the business's pending position
	GetQueuePosition(ctx context.Context, businessID, category string) (*dto.QueuePositionResponse, error)

	// GetEstimate returns the projected start and end of the business's boost
	GetEstimate(ctx context.Context, businessID, category string) (*dto.EstimateResponse, error)

	// IsBusinessActive reports whether the business holds the category slot
	IsBusinessActive(ctx context.Context, businessID, category string) (*dto.ActiveResponse, error)

	// GetQueueStatus returns the full boost snapshot for a business
	GetQueueStatus(ctx context.Context, businessID, category string) (*dto.QueueStatusResponse, error)

	// GetCategoryQueue returns the ordered queue of a category
	GetCategoryQueue(ctx context.Context, category string) (*dto.CategoryQueueResponse, error)
}

// AdmitRequest identifies a paid boost
type AdmitRequest struct {
	BusinessID     string
	OwnerID        string
	SubscriptionID string
	Category       string
}

// AdmitResult reports where the boost landed
type AdmitResult struct {
	Category  string
	Entry     *domain.QueueEntry
	Activated bool
	// Existing is set when the subscription had already been admitted
	Existing bool
}

// RefundRetrySummary summarizes a pending refund sweep
type RefundRetrySummary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	// Review counts failures moved to manual review
	Review int `json:"review"`
}

// boostService implements BoostService
type boostService struct {
	store        *QueueStore
	projector    *Projector
	subRepo      repository.SubscriptionRepository
	businessRepo repository.BusinessRepository
	gateway      gateway.PaymentGateway
	dispatcher   *notifier.Dispatcher
	policy       domain.RefundPolicy
	price        int64
	currency     string
	writes       *retry.Retrier
}

// BoostServiceConfig contains configuration for the boost service
type BoostServiceConfig struct {
	// Price is the boost price in major units (e.g. 29.99)
	Price       float64
	Currency    string
	RefundTiers []domain.RefundTier
}

// NewBoostService creates a new boost service
func NewBoostService(
	store *QueueStore,
	projector *Projector,
	subRepo repository.SubscriptionRepository,
	businessRepo repository.BusinessRepository,
	paymentGateway gateway.PaymentGateway,
	dispatcher *notifier.Dispatcher,
	cfg *BoostServiceConfig,
) BoostService {
	price := int64(2999)
	currency := "usd"
	policy := domain.DefaultRefundPolicy()

	if cfg != nil {
		if cfg.Price > 0 {
			price = ToMinorUnits(cfg.Price)
		}
		if cfg.Currency != "" {
			currency = cfg.Currency
		}
		policy = domain.NewRefundPolicy(cfg.RefundTiers)
	}
	if dispatcher == nil {
		dispatcher = notifier.NewDispatcher(nil, 0)
	}

	return &boostService{
		store:        store,
		projector:    projector,
		subRepo:      subRepo,
		businessRepo: businessRepo,
		gateway:      paymentGateway,
		dispatcher:   dispatcher,
		policy:       policy,
		price:        price,
		currency:     currency,
		writes:       newRecordRetrier(),
	}
}

// ToMinorUnits converts a major-unit price to minor units, rounding half away from zero
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func (s *boostService) now() time.Time {
	return s.store.Now()
}
