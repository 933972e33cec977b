package gateway

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Umairakbar1/business-backend-sub000/pkg/telemetry"
)

// StripeGateway implements PaymentGateway using Stripe
type StripeGateway struct {
	config *StripeGatewayConfig
}

// StripeGatewayConfig holds configuration for Stripe gateway
type StripeGatewayConfig struct {
	SecretKey     string
	WebhookSecret string
}

// NewStripeGateway creates a new Stripe gateway
func NewStripeGateway(config *StripeGatewayConfig) (*StripeGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}

	// Set Stripe API key globally
	stripe.Key = config.SecretKey

	return &StripeGateway{config: config}, nil
}

// CreatePaymentIntent creates a Stripe PaymentIntent and returns client_secret
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, req *PaymentIntentRequest) (*PaymentIntent, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.stripe.create_payment_intent")
	defer span.End()

	if req == nil {
		return nil, fmt.Errorf("payment intent request is required")
	}
	span.SetAttributes(
		attribute.String("subscription_id", req.SubscriptionID),
		attribute.Int64("amount", req.Amount),
	)

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{"subscription_id": req.SubscriptionID},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	// one intent per subscription even if checkout is retried
	params.SetIdempotencyKey("boost-intent-" + req.SubscriptionID)

	pi, err := paymentintent.New(params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return fromStripeIntent(pi), nil
}

// GetPaymentIntent retrieves a PaymentIntent
func (g *StripeGateway) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.stripe.get_payment_intent")
	defer span.End()
	span.SetAttributes(attribute.String("payment_intent_id", paymentIntentID))

	if paymentIntentID == "" {
		return nil, fmt.Errorf("payment intent ID is required")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(paymentIntentID, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return fromStripeIntent(pi), nil
}

// CancelPaymentIntent voids an uncaptured PaymentIntent
func (g *StripeGateway) CancelPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.stripe.cancel_payment_intent")
	defer span.End()
	span.SetAttributes(attribute.String("payment_intent_id", paymentIntentID))

	if paymentIntentID == "" {
		return nil, fmt.Errorf("payment intent ID is required")
	}

	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)),
	}
	params.Context = ctx

	pi, err := paymentintent.Cancel(paymentIntentID, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to cancel payment intent: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return fromStripeIntent(pi), nil
}

// CapturePaymentIntent captures AmountToCapture of an authorized PaymentIntent
func (g *StripeGateway) CapturePaymentIntent(ctx context.Context, req *CaptureRequest) (*PaymentIntent, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.stripe.capture_payment_intent")
	defer span.End()

	if req == nil || req.PaymentIntentID == "" {
		return nil, fmt.Errorf("payment intent ID is required")
	}
	span.SetAttributes(
		attribute.String("payment_intent_id", req.PaymentIntentID),
		attribute.Int64("amount_to_capture", req.AmountToCapture),
	)

	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(req.AmountToCapture),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := paymentintent.Capture(req.PaymentIntentID, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to capture payment intent: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return fromStripeIntent(pi), nil
}

// Refund processes a refund through Stripe
func (g *StripeGateway) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.stripe.refund")
	defer span.End()

	if req == nil || req.PaymentIntentID == "" {
		return nil, fmt.Errorf("payment intent ID is required")
	}
	span.SetAttributes(
		attribute.String("payment_intent_id", req.PaymentIntentID),
		attribute.Int64("amount", req.Amount),
	)

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentIntentID),
		Amount:        stripe.Int64(req.Amount),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
		Metadata:      req.Metadata,
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	r, err := refund.New(params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return &RefundResult{
		RefundID: r.ID,
		Status:   string(r.Status),
		Amount:   r.Amount,
	}, nil
}

// Name returns the gateway name
func (g *StripeGateway) Name() string {
	return "stripe"
}

// WebhookSecret returns the signing secret for webhook verification
func (g *StripeGateway) WebhookSecret() string {
	return g.config.WebhookSecret
}

func fromStripeIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	return &PaymentIntent{
		ID:             pi.ID,
		ClientSecret:   pi.ClientSecret,
		Status:         IntentStatus(pi.Status),
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		Metadata:       pi.Metadata,
	}
}
