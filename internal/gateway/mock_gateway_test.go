package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGateway_IntentLifecycle(t *testing.T) {
	g := NewMockGateway(&MockGatewayConfig{})
	ctx := context.Background()

	pi, err := g.CreatePaymentIntent(ctx, &PaymentIntentRequest{SubscriptionID: "sub-1", Amount: 2999, Currency: "usd"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(pi.ID, "pi_mock_"))
	assert.True(t, strings.HasPrefix(pi.ClientSecret, pi.ID+"_secret_"))
	assert.Equal(t, IntentRequiresPaymentMethod, pi.Status)
	assert.Equal(t, "sub-1", pi.Metadata["subscription_id"])

	_, err = g.Refund(ctx, &RefundRequest{PaymentIntentID: pi.ID, Amount: 100})
	assert.Error(t, err, "uncaptured intents cannot be refunded")

	canceled, err := g.CancelPaymentIntent(ctx, pi.ID)
	require.NoError(t, err)
	assert.Equal(t, IntentCanceled, canceled.Status)

	_, err = g.CancelPaymentIntent(ctx, pi.ID)
	assert.Error(t, err)
}

func TestMockGateway_Refunds(t *testing.T) {
	g := NewMockGateway(nil)
	ctx := context.Background()

	pi, err := g.CreatePaymentIntent(ctx, &PaymentIntentRequest{SubscriptionID: "sub-1", Amount: 1000, Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, IntentSucceeded, pi.Status)

	r, err := g.Refund(ctx, &RefundRequest{PaymentIntentID: pi.ID, Amount: 600})
	require.NoError(t, err)
	assert.Equal(t, int64(600), r.Amount)

	_, err = g.Refund(ctx, &RefundRequest{PaymentIntentID: pi.ID, Amount: 500})
	assert.Error(t, err, "cannot refund more than was paid")

	assert.Len(t, g.Refunds(pi.ID), 1)
}

func TestMockGateway_PartialCapture(t *testing.T) {
	g := NewMockGateway(&MockGatewayConfig{})
	ctx := context.Background()

	pi, err := g.CreatePaymentIntent(ctx, &PaymentIntentRequest{SubscriptionID: "sub-1", Amount: 1000, Currency: "usd"})
	require.NoError(t, err)

	_, err = g.CapturePaymentIntent(ctx, &CaptureRequest{PaymentIntentID: pi.ID, AmountToCapture: 400})
	assert.Error(t, err, "only authorized intents can be captured")

	require.NoError(t, g.SetIntentStatus(pi.ID, IntentRequiresCapture))
	_, err = g.CapturePaymentIntent(ctx, &CaptureRequest{PaymentIntentID: pi.ID, AmountToCapture: 1001})
	assert.Error(t, err)

	captured, err := g.CapturePaymentIntent(ctx, &CaptureRequest{PaymentIntentID: pi.ID, AmountToCapture: 400})
	require.NoError(t, err)
	assert.Equal(t, IntentSucceeded, captured.Status)
	assert.Equal(t, int64(400), captured.AmountReceived)

	_, err = g.Refund(ctx, &RefundRequest{PaymentIntentID: pi.ID, Amount: 500})
	assert.Error(t, err, "refunds are bounded by the captured amount")
}

func TestMockGateway_FailOn(t *testing.T) {
	g := NewMockGateway(nil)
	ctx := context.Background()
	boom := errors.New("card network down")

	g.FailOn(OpCreateIntent, boom)
	_, err := g.CreatePaymentIntent(ctx, &PaymentIntentRequest{SubscriptionID: "s", Amount: 1, Currency: "usd"})
	assert.ErrorIs(t, err, boom)

	g.FailOn(OpCreateIntent, nil)
	pi, err := g.CreatePaymentIntent(ctx, &PaymentIntentRequest{SubscriptionID: "s", Amount: 1, Currency: "usd"})
	require.NoError(t, err)

	require.NoError(t, g.SetIntentStatus(pi.ID, IntentProcessing))
	got, err := g.GetPaymentIntent(ctx, pi.ID)
	require.NoError(t, err)
	assert.Equal(t, IntentProcessing, got.Status)
}

func TestIntentStatus(t *testing.T) {
	assert.True(t, IntentSucceeded.Captured())
	assert.False(t, IntentSucceeded.Cancelable())
	assert.True(t, IntentRequiresCapture.Cancelable())
	assert.False(t, IntentCanceled.Cancelable())
}
