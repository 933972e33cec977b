package dto

import (
	"time"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
)

// CheckoutRequest represents a request to buy a boost
type CheckoutRequest struct {
	BusinessID string `json:"business_id" binding:"required"`
	Category   string `json:"category" binding:"required"`
	CustomerID string `json:"customer_id,omitempty"`
}

// CheckoutResponse carries what the client needs to complete payment
type CheckoutResponse struct {
	SubscriptionID  string `json:"subscription_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Category        string `json:"category"`
}

// AdmissionResponse describes where a paid boost landed
type AdmissionResponse struct {
	SubscriptionID     string             `json:"subscription_id"`
	BusinessID         string             `json:"business_id"`
	Category           string             `json:"category"`
	EntryID            string             `json:"entry_id"`
	Status             domain.BoostStatus `json:"status"`
	Activated          bool               `json:"activated"`
	Position           int                `json:"position,omitempty"`
	BoostStartTime     *time.Time         `json:"boost_start_time,omitempty"`
	BoostEndTime       *time.Time         `json:"boost_end_time,omitempty"`
	EstimatedStartTime *time.Time         `json:"estimated_start_time,omitempty"`
	EstimatedEndTime   *time.Time         `json:"estimated_end_time,omitempty"`
}

// CancelRequest represents a request to cancel a boost
type CancelRequest struct {
	BusinessID string `json:"business_id" binding:"required"`
	Category   string `json:"category" binding:"required"`
}

// Refund outcomes reported on cancellation
const (
	RefundStatusRefunded = "refunded"
	RefundStatusVoided   = "voided"
	RefundStatusNone     = "none"
	RefundStatusPending  = "pending"
	RefundStatusReleased = "released"
	RefundStatusReview   = "manual_review"
)

// CancelResponse always reports the refund outcome, including partial failure
type CancelResponse struct {
	SubscriptionID string             `json:"subscription_id"`
	BusinessID     string             `json:"business_id"`
	Category       string             `json:"category"`
	PreviousStatus domain.BoostStatus `json:"previous_status"`
	UsageFraction  float64            `json:"usage_fraction"`
	RefundPercent  int                `json:"refund_percent"`
	RefundAmount   int64              `json:"refund_amount"`
	Currency       string             `json:"currency"`
	RefundStatus   string             `json:"refund_status"`
	RefundID       string             `json:"refund_id,omitempty"`
	PromotedEntry  string             `json:"promoted_entry_id,omitempty"`
	Message        string             `json:"message,omitempty"`
}

// QueuePositionResponse represents a business's place in a category queue
type QueuePositionResponse struct {
	BusinessID   string `json:"business_id"`
	Category     string `json:"category"`
	Position     int    `json:"position"`
	InQueue      bool   `json:"in_queue"`
	TotalPending int    `json:"total_pending"`
}

// EstimateResponse represents the projected (or actual, once active) window
type EstimateResponse struct {
	BusinessID         string    `json:"business_id"`
	Category           string    `json:"category"`
	EstimatedStartTime time.Time `json:"estimated_start_time"`
	EstimatedEndTime   time.Time `json:"estimated_end_time"`
	IsActive           bool      `json:"is_active"`
}

// ActiveResponse reports whether a business holds the category slot
type ActiveResponse struct {
	BusinessID string `json:"business_id"`
	Category   string `json:"category"`
	IsActive   bool   `json:"is_active"`
}

// ActiveSlotResponse describes the current occupant of a category
type ActiveSlotResponse struct {
	EntryID        string    `json:"entry_id"`
	BusinessID     string    `json:"business_id"`
	SubscriptionID string    `json:"subscription_id"`
	BoostStartTime time.Time `json:"boost_start_time"`
	BoostEndTime   time.Time `json:"boost_end_time"`
}

// QueueStatusResponse is the full boost snapshot for one business in one category
type QueueStatusResponse struct {
	BusinessID         string              `json:"business_id"`
	Category           string              `json:"category"`
	EntryID            string              `json:"entry_id"`
	SubscriptionID     string              `json:"subscription_id"`
	Status             domain.BoostStatus  `json:"status"`
	IsActive           bool                `json:"is_active"`
	Position           int                 `json:"position,omitempty"`
	TotalPending       int                 `json:"total_pending"`
	BoostStartTime     *time.Time          `json:"boost_start_time,omitempty"`
	BoostEndTime       *time.Time          `json:"boost_end_time,omitempty"`
	EstimatedStartTime *time.Time          `json:"estimated_start_time,omitempty"`
	EstimatedEndTime   *time.Time          `json:"estimated_end_time,omitempty"`
	CurrentlyActive    *ActiveSlotResponse `json:"currently_active,omitempty"`
}

// QueueEntryResponse is one row of a category snapshot
type QueueEntryResponse struct {
	EntryID            string             `json:"entry_id"`
	BusinessID         string             `json:"business_id"`
	SubscriptionID     string             `json:"subscription_id"`
	Status             domain.BoostStatus `json:"status"`
	Position           int                `json:"position,omitempty"`
	EnqueuedAt         time.Time          `json:"enqueued_at"`
	BoostStartTime     *time.Time         `json:"boost_start_time,omitempty"`
	BoostEndTime       *time.Time         `json:"boost_end_time,omitempty"`
	EstimatedStartTime *time.Time         `json:"estimated_start_time,omitempty"`
	EstimatedEndTime   *time.Time         `json:"estimated_end_time,omitempty"`
	ClosedAt           *time.Time         `json:"closed_at,omitempty"`
}

// CategoryQueueResponse is the ordered snapshot of a category queue
type CategoryQueueResponse struct {
	Category         string               `json:"category"`
	Version          int64                `json:"version"`
	BoostDuration    string               `json:"boost_duration"`
	CurrentlyActive  *ActiveSlotResponse  `json:"currently_active,omitempty"`
	PendingCount     int                  `json:"pending_count"`
	NextTransitionAt *time.Time           `json:"next_transition_at,omitempty"`
	Entries          []QueueEntryResponse `json:"entries"`
}

// NewActiveSlotResponse converts a slot; nil stays nil
func NewActiveSlotResponse(slot *domain.ActiveSlot) *ActiveSlotResponse {
	if slot == nil {
		return nil
	}
	return &ActiveSlotResponse{
		EntryID:        slot.EntryID,
		BusinessID:     slot.BusinessID,
		SubscriptionID: slot.SubscriptionID,
		BoostStartTime: slot.BoostStartTime,
		BoostEndTime:   slot.BoostEndTime,
	}
}

// NewAdmissionResponse builds the response for an admitted entry
func NewAdmissionResponse(category string, entry *domain.QueueEntry, activated bool) *AdmissionResponse {
	return &AdmissionResponse{
		SubscriptionID:     entry.SubscriptionID,
		BusinessID:         entry.BusinessID,
		Category:           category,
		EntryID:            entry.ID,
		Status:             entry.Status,
		Activated:          activated,
		Position:           entry.Position,
		BoostStartTime:     entry.BoostStartTime,
		BoostEndTime:       entry.BoostEndTime,
		EstimatedStartTime: entry.EstimatedStartTime,
		EstimatedEndTime:   entry.EstimatedEndTime,
	}
}

// NewCategoryQueueResponse builds an ordered snapshot
func NewCategoryQueueResponse(q *domain.CategoryQueue) *CategoryQueueResponse {
	resp := &CategoryQueueResponse{
		Category:        q.Category,
		Version:         q.Version,
		BoostDuration:   q.BoostDuration.String(),
		CurrentlyActive: NewActiveSlotResponse(q.CurrentlyActive),
		PendingCount:    len(q.PendingEntries()),
		Entries:         make([]QueueEntryResponse, 0, len(q.Entries)),
	}
	if next, ok := q.NextTransitionAt(); ok {
		resp.NextTransitionAt = &next
	}
	for _, e := range q.Entries {
		resp.Entries = append(resp.Entries, QueueEntryResponse{
			EntryID:            e.ID,
			BusinessID:         e.BusinessID,
			SubscriptionID:     e.SubscriptionID,
			Status:             e.Status,
			Position:           e.Position,
			EnqueuedAt:         e.EnqueuedAt,
			BoostStartTime:     e.BoostStartTime,
			BoostEndTime:       e.BoostEndTime,
			EstimatedStartTime: e.EstimatedStartTime,
			EstimatedEndTime:   e.EstimatedEndTime,
			ClosedAt:           e.ClosedAt,
		})
	}
	return resp
}

// ReconcileResponse summarizes a reconcile pass
type ReconcileResponse struct {
	Categories int    `json:"categories"`
	Expired    int    `json:"expired"`
	Activated  int    `json:"activated"`
	Failed     int    `json:"failed"`
	Duration   string `json:"duration"`
}
