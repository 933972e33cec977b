package domain

import (
	"time"

	"github.com/google/uuid"
)

// BoostEventType names a notification emitted on a boost transition
type BoostEventType string

const (
	EventBoostCreated   BoostEventType = "boost.created"
	EventBoostActivated BoostEventType = "boost.activated"
	EventBoostExpired   BoostEventType = "boost.expired"
	EventBoostCanceled  BoostEventType = "boost.canceled"
	EventRefundIssued   BoostEventType = "boost.refund_issued"
	EventRefundFailed   BoostEventType = "boost.refund_failed"
)

// BoostEvent is the payload sent to the notification dispatcher
type BoostEvent struct {
	ID             string         `json:"id"`
	Type           BoostEventType `json:"type"`
	Category       string         `json:"category"`
	BusinessID     string         `json:"business_id"`
	OwnerID        string         `json:"owner_id"`
	SubscriptionID string         `json:"subscription_id"`
	EntryID        string         `json:"entry_id"`
	Status         BoostStatus    `json:"status"`
	Position       int            `json:"position,omitempty"`
	BoostStartTime *time.Time     `json:"boost_start_time,omitempty"`
	BoostEndTime   *time.Time     `json:"boost_end_time,omitempty"`
	EstimatedStart *time.Time     `json:"estimated_start_time,omitempty"`
	RefundPercent  int            `json:"refund_percent,omitempty"`
	RefundAmount   int64          `json:"refund_amount,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// NewBoostEvent builds an event from the entry's current state
func NewBoostEvent(eventType BoostEventType, category string, entry *QueueEntry, now time.Time) *BoostEvent {
	return &BoostEvent{
		ID:             uuid.NewString(),
		Type:           eventType,
		Category:       category,
		BusinessID:     entry.BusinessID,
		OwnerID:        entry.OwnerID,
		SubscriptionID: entry.SubscriptionID,
		EntryID:        entry.ID,
		Status:         entry.Status,
		Position:       entry.Position,
		BoostStartTime: cloneTime(entry.BoostStartTime),
		BoostEndTime:   cloneTime(entry.BoostEndTime),
		EstimatedStart: cloneTime(entry.EstimatedStartTime),
		OccurredAt:     now,
	}
}
