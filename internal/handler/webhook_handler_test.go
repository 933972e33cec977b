package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/internal/dto"
)

const testWebhookSecret = "whsec_test"

func eventPayload(eventType, intentID string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": "evt_1",
  "object": "event",
  "api_version": %q,
  "type": %q,
  "data": {"object": {"id": %q, "object": "payment_intent", "metadata": {"subscription_id": "sub-1"}}}
}`, stripe.APIVersion, eventType, intentID))
}

func postWebhook(router *gin.Engine, payload []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	if header != "" {
		req.Header.Set("Stripe-Signature", header)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func signed(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	}).Header
}

func setupWebhookRouter(svc *MockBoostService) *gin.Engine {
	router := gin.New()
	router.POST("/webhooks/stripe", NewWebhookHandler(svc, testWebhookSecret).HandleStripeWebhook)
	return router
}

func TestWebhookHandler_PaymentSucceeded(t *testing.T) {
	svc := new(MockBoostService)
	router := setupWebhookRouter(svc)
	svc.On("ConfirmPaymentIntent", mock.Anything, "pi_1").Return(&dto.AdmissionResponse{
		SubscriptionID: "sub-1",
		EntryID:        "entry-1",
		Status:         domain.BoostActive,
		Activated:      true,
	}, nil)

	payload := eventPayload("payment_intent.succeeded", "pi_1")
	w := postWebhook(router, payload, signed(payload))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true,"admitted":true}`, w.Body.String())
	svc.AssertExpectations(t)
}

func TestWebhookHandler_Rejections(t *testing.T) {
	t.Run("missing signature", func(t *testing.T) {
		svc := new(MockBoostService)
		w := postWebhook(setupWebhookRouter(svc), eventPayload("payment_intent.succeeded", "pi_1"), "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		svc := new(MockBoostService)
		w := postWebhook(setupWebhookRouter(svc), eventPayload("payment_intent.succeeded", "pi_1"), "t=1,v1=deadbeef")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "ConfirmPaymentIntent", mock.Anything, mock.Anything)
	})

	t.Run("other event types are acknowledged", func(t *testing.T) {
		svc := new(MockBoostService)
		payload := eventPayload("payment_intent.created", "pi_1")
		w := postWebhook(setupWebhookRouter(svc), payload, signed(payload))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"received":true}`, w.Body.String())
		svc.AssertNotCalled(t, "ConfirmPaymentIntent", mock.Anything, mock.Anything)
	})
}

func TestWebhookHandler_ConfirmFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"duplicate is final", domain.ErrDuplicateEntry, http.StatusOK},
		{"unknown intent is final", domain.ErrSubscriptionNotFound, http.StatusOK},
		{"gateway error is redelivered", domain.NewPaymentGatewayError("get_intent", errors.New("timeout")), http.StatusInternalServerError},
		{"conflict is redelivered", domain.ErrConcurrencyConflict, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockBoostService)
			svc.On("ConfirmPaymentIntent", mock.Anything, "pi_1").Return(nil, tt.err)

			payload := eventPayload("payment_intent.succeeded", "pi_1")
			w := postWebhook(setupWebhookRouter(svc), payload, signed(payload))
			assert.Equal(t, tt.code, w.Code)
		})
	}
}
