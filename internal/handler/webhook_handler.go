package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/internal/service"
	"github.com/Umairakbar1/business-backend-sub000/pkg/logger"
	"github.com/Umairakbar1/business-backend-sub000/pkg/telemetry"
)

const maxWebhookBody = 64 << 10

// WebhookHandler handles Stripe webhook events
type WebhookHandler struct {
	boostService  service.BoostService
	webhookSecret string
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(boostService service.BoostService, webhookSecret string) *WebhookHandler {
	return &WebhookHandler{
		boostService:  boostService,
		webhookSecret: webhookSecret,
	}
}

// HandleStripeWebhook handles POST /webhooks/stripe
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.webhook.stripe")
	defer span.End()
	log := logger.Get()

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	if sigHeader == "" {
		log.Warn("missing Stripe-Signature header")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing Stripe-Signature header"})
		return
	}

	event, err := webhook.ConstructEvent(payload, sigHeader, h.webhookSecret)
	if err != nil {
		log.Warn("failed to verify webhook signature", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			log.Error("failed to parse payment_intent.succeeded", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse event data"})
			return
		}

		result, err := h.boostService.ConfirmPaymentIntent(ctx, pi.ID)
		if err != nil {
			if retryableWebhookError(err) {
				log.ErrorContext(ctx, "failed to confirm boost from webhook",
					"payment_intent_id", pi.ID,
					"error", err,
				)
				// non-2xx makes Stripe redeliver
				c.JSON(http.StatusInternalServerError, gin.H{"error": "confirmation failed"})
				return
			}
			log.Warn("boost confirmation rejected",
				"payment_intent_id", pi.ID,
				"subscription_id", pi.Metadata["subscription_id"],
				"error", err,
			)
			c.JSON(http.StatusOK, gin.H{"received": true, "admitted": false})
			return
		}

		log.InfoContext(ctx, "boost confirmed from webhook",
			"payment_intent_id", pi.ID,
			"entry_id", result.EntryID,
			"status", string(result.Status),
		)
		c.JSON(http.StatusOK, gin.H{"received": true, "admitted": true})

	default:
		log.Debug("unhandled webhook event", "type", string(event.Type))
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

// retryableWebhookError reports failures a later delivery may get past
func retryableWebhookError(err error) bool {
	switch {
	case domain.IsNotFoundError(err),
		domain.IsValidationError(err),
		errors.Is(err, domain.ErrDuplicateEntry),
		errors.Is(err, domain.ErrAlreadyTerminal),
		errors.Is(err, domain.ErrPaymentNotCompleted):
		return false
	}
	return true
}
