package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// alphanumericChars for generating Stripe-compatible IDs
const alphanumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomAlphanumeric(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphanumericChars[rand.Intn(len(alphanumericChars))]
	}
	return string(b)
}

// MockGateway implements PaymentGateway in memory for development and tests
type MockGateway struct {
	config *MockGatewayConfig

	mu       sync.Mutex
	intents  map[string]*PaymentIntent
	refunds  map[string][]*RefundResult
	failures map[string]error
}

// MockGatewayConfig holds configuration for the mock gateway
type MockGatewayConfig struct {
	// AutoSucceed marks new intents as succeeded, standing in for client-side confirmation
	AutoSucceed bool

	// DelayMs is the simulated processing delay in milliseconds
	DelayMs int
}

// DefaultMockGatewayConfig returns default configuration
func DefaultMockGatewayConfig() *MockGatewayConfig {
	return &MockGatewayConfig{AutoSucceed: true}
}

// NewMockGateway creates a new mock gateway
func NewMockGateway(config *MockGatewayConfig) *MockGateway {
	if config == nil {
		config = DefaultMockGatewayConfig()
	}
	return &MockGateway{
		config:   config,
		intents:  make(map[string]*PaymentIntent),
		refunds:  make(map[string][]*RefundResult),
		failures: make(map[string]error),
	}
}

// Operation names accepted by FailOn
const (
	OpCreateIntent  = "create_intent"
	OpGetIntent     = "get_intent"
	OpCancelIntent  = "cancel_intent"
	OpCaptureIntent = "capture_intent"
	OpRefund        = "refund"
)

// FailOn makes every call to op return err until cleared with a nil err
func (g *MockGateway) FailOn(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failures, op)
		return
	}
	g.failures[op] = err
}

// SetIntentStatus simulates the client completing (or abandoning) a payment
func (g *MockGateway) SetIntentStatus(paymentIntentID string, status IntentStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	pi, ok := g.intents[paymentIntentID]
	if !ok {
		return fmt.Errorf("payment intent not found: %s", paymentIntentID)
	}
	pi.Status = status
	if status.Captured() && pi.AmountReceived == 0 {
		pi.AmountReceived = pi.Amount
	}
	return nil
}

// Refunds returns the refunds issued against an intent
func (g *MockGateway) Refunds(paymentIntentID string) []*RefundResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*RefundResult(nil), g.refunds[paymentIntentID]...)
}

func (g *MockGateway) CreatePaymentIntent(ctx context.Context, req *PaymentIntentRequest) (*PaymentIntent, error) {
	if req == nil {
		return nil, fmt.Errorf("payment intent request is required")
	}
	if err := g.simulate(ctx, OpCreateIntent); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	id := fmt.Sprintf("pi_mock_%s", randomAlphanumeric(24))
	status := IntentRequiresPaymentMethod
	if g.config.AutoSucceed {
		status = IntentSucceeded
	}
	metadata := map[string]string{"subscription_id": req.SubscriptionID}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	pi := &PaymentIntent{
		ID:           id,
		ClientSecret: fmt.Sprintf("%s_secret_%s", id, randomAlphanumeric(24)),
		Status:       status,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Metadata:     metadata,
	}
	if status.Captured() {
		pi.AmountReceived = req.Amount
	}
	g.intents[id] = pi

	c := *pi
	return &c, nil
}

func (g *MockGateway) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error) {
	if err := g.simulate(ctx, OpGetIntent); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	pi, ok := g.intents[paymentIntentID]
	if !ok {
		return nil, fmt.Errorf("payment intent not found: %s", paymentIntentID)
	}
	c := *pi
	return &c, nil
}

func (g *MockGateway) CancelPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error) {
	if err := g.simulate(ctx, OpCancelIntent); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	pi, ok := g.intents[paymentIntentID]
	if !ok {
		return nil, fmt.Errorf("payment intent not found: %s", paymentIntentID)
	}
	if !pi.Status.Cancelable() {
		return nil, fmt.Errorf("payment intent %s cannot be canceled in status %s", paymentIntentID, pi.Status)
	}
	pi.Status = IntentCanceled
	c := *pi
	return &c, nil
}

func (g *MockGateway) CapturePaymentIntent(ctx context.Context, req *CaptureRequest) (*PaymentIntent, error) {
	if req == nil || req.PaymentIntentID == "" {
		return nil, fmt.Errorf("payment intent ID is required")
	}
	if err := g.simulate(ctx, OpCaptureIntent); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	pi, ok := g.intents[req.PaymentIntentID]
	if !ok {
		return nil, fmt.Errorf("payment intent not found: %s", req.PaymentIntentID)
	}
	if pi.Status != IntentRequiresCapture {
		return nil, fmt.Errorf("payment intent %s cannot be captured in status %s", req.PaymentIntentID, pi.Status)
	}
	if req.AmountToCapture <= 0 || req.AmountToCapture > pi.Amount {
		return nil, fmt.Errorf("capture of %d is outside 1..%d", req.AmountToCapture, pi.Amount)
	}
	pi.Status = IntentSucceeded
	pi.AmountReceived = req.AmountToCapture
	c := *pi
	return &c, nil
}

func (g *MockGateway) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	if req == nil || req.PaymentIntentID == "" {
		return nil, fmt.Errorf("payment intent ID is required")
	}
	if err := g.simulate(ctx, OpRefund); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	pi, ok := g.intents[req.PaymentIntentID]
	if !ok {
		return nil, fmt.Errorf("payment intent not found: %s", req.PaymentIntentID)
	}
	if !pi.Status.Captured() {
		return nil, fmt.Errorf("payment intent %s has not been captured", req.PaymentIntentID)
	}

	var refunded int64
	for _, r := range g.refunds[req.PaymentIntentID] {
		refunded += r.Amount
	}
	if refunded+req.Amount > pi.AmountReceived {
		return nil, fmt.Errorf("refund of %d exceeds remaining %d", req.Amount, pi.AmountReceived-refunded)
	}

	result := &RefundResult{
		RefundID: fmt.Sprintf("re_mock_%s", uuid.New().String()[:12]),
		Status:   "succeeded",
		Amount:   req.Amount,
	}
	g.refunds[req.PaymentIntentID] = append(g.refunds[req.PaymentIntentID], result)
	return result, nil
}

// Name returns the gateway name
func (g *MockGateway) Name() string {
	return "mock"
}

func (g *MockGateway) simulate(ctx context.Context, op string) error {
	if g.config.DelayMs > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(g.config.DelayMs) * time.Millisecond):
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures[op]
}
