package gateway

import (
	"context"
)

// IntentStatus mirrors the Stripe PaymentIntent lifecycle
type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresCapture       IntentStatus = "requires_capture"
	IntentSucceeded             IntentStatus = "succeeded"
	IntentCanceled              IntentStatus = "canceled"
)

// Captured reports whether money has moved and must be refunded rather than voided
func (s IntentStatus) Captured() bool {
	return s == IntentSucceeded
}

// Cancelable reports whether the intent can still be voided
func (s IntentStatus) Cancelable() bool {
	switch s {
	case IntentRequiresPaymentMethod, IntentRequiresConfirmation, IntentRequiresAction, IntentRequiresCapture, IntentProcessing:
		return true
	}
	return false
}

// PaymentIntentRequest represents a request to open a payment for a boost
type PaymentIntentRequest struct {
	SubscriptionID string
	CustomerID     string
	Amount         int64 // minor units
	Currency       string
	Description    string
	Metadata       map[string]string
}

// PaymentIntent is the gateway view of a payment
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
	Amount       int64
	// AmountReceived is what was actually captured; zero until capture
	AmountReceived int64
	Currency       string
	Metadata       map[string]string
}

// CaptureRequest captures part or all of an authorized intent.
// The uncaptured remainder is released back to the customer.
type CaptureRequest struct {
	PaymentIntentID string
	AmountToCapture int64
	IdempotencyKey  string
}

// RefundRequest asks for Amount (minor units) back on a captured intent
type RefundRequest struct {
	PaymentIntentID string
	Amount          int64
	Reason          string
	IdempotencyKey  string
	Metadata        map[string]string
}

// RefundResult is the outcome of a refund
type RefundResult struct {
	RefundID string
	Status   string
	Amount   int64
}

// PaymentGateway defines the interface for payment processing
type PaymentGateway interface {
	// CreatePaymentIntent opens a payment the client completes with ClientSecret
	CreatePaymentIntent(ctx context.Context, req *PaymentIntentRequest) (*PaymentIntent, error)

	// GetPaymentIntent fetches the current state of an intent
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error)

	// CancelPaymentIntent voids an uncaptured intent
	CancelPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error)

	// CapturePaymentIntent captures an intent in requires_capture
	CapturePaymentIntent(ctx context.Context, req *CaptureRequest) (*PaymentIntent, error)

	// Refund returns money on a captured intent
	Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error)

	// Name returns the gateway name
	Name() string
}
