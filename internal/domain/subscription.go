package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus tracks the money side of a boost subscription
type PaymentStatus string

const (
	PaymentRequiresPayment   PaymentStatus = "requires_payment"
	PaymentPaid              PaymentStatus = "paid"
	PaymentVoided            PaymentStatus = "voided"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentRefundPending     PaymentStatus = "refund_pending"
	// PaymentRefundReview holds refunds the gateway cannot settle automatically
	PaymentRefundReview PaymentStatus = "refund_review"
)

// BoostQueueInfo mirrors the queue entry onto its subscription
type BoostQueueInfo struct {
	QueueID            string     `json:"queue_id"`
	Category           string     `json:"category"`
	QueuePosition      int        `json:"queue_position"`
	IsCurrentlyActive  bool       `json:"is_currently_active"`
	BoostStartTime     *time.Time `json:"boost_start_time,omitempty"`
	BoostEndTime       *time.Time `json:"boost_end_time,omitempty"`
	EstimatedStartTime *time.Time `json:"estimated_start_time,omitempty"`
	EstimatedEndTime   *time.Time `json:"estimated_end_time,omitempty"`
}

// Subscription is a boost purchase for one business in one category
type Subscription struct {
	ID              string          `json:"id"`
	BusinessID      string          `json:"business_id"`
	OwnerID         string          `json:"owner_id"`
	Category        string          `json:"category"`
	Status          BoostStatus     `json:"status"`
	PaymentIntentID string          `json:"payment_intent_id"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	RefundPercent   int             `json:"refund_percent"`
	RefundAmount    int64           `json:"refund_amount"`
	RefundID        string          `json:"refund_id,omitempty"`
	RefundFailure   string          `json:"refund_failure,omitempty"`
	BoostQueueInfo  *BoostQueueInfo `json:"boost_queue_info,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewSubscription creates a boost subscription awaiting payment
func NewSubscription(businessID, ownerID, category string, amount int64, currency string, now time.Time) (*Subscription, error) {
	if strings.TrimSpace(businessID) == "" {
		return nil, ErrInvalidBusinessID
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrInvalidOwnerID
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return &Subscription{
		ID:            uuid.NewString(),
		BusinessID:    businessID,
		OwnerID:       ownerID,
		Category:      category,
		Status:        BoostPending,
		PaymentStatus: PaymentRequiresPayment,
		Amount:        amount,
		Currency:      currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// IsAdmitted reports whether the subscription already has a queue entry
func (s *Subscription) IsAdmitted() bool {
	return s.BoostQueueInfo != nil && s.BoostQueueInfo.QueueID != ""
}

// Business carries the derived boost flags read by directory listings
type Business struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"owner_id"`
	Name          string     `json:"name"`
	Categories    []string   `json:"categories"`
	IsBoosted     bool       `json:"is_boosted"`
	IsBoostActive bool       `json:"is_boost_active"`
	BoostCategory string     `json:"boost_category,omitempty"`
	BoostExpiryAt *time.Time `json:"boost_expiry_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HasCategory reports whether the business is listed in category; an
// unrestricted business (no categories) accepts any
func (b *Business) HasCategory(category string) bool {
	if len(b.Categories) == 0 {
		return true
	}
	for _, c := range b.Categories {
		if strings.EqualFold(strings.TrimSpace(c), category) {
			return true
		}
	}
	return false
}
