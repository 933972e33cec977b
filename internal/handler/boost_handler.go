package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/internal/dto"
	"github.com/Umairakbar1/business-backend-sub000/internal/service"
	"github.com/Umairakbar1/business-backend-sub000/pkg/logger"
	"github.com/Umairakbar1/business-backend-sub000/pkg/middleware"
	"github.com/Umairakbar1/business-backend-sub000/pkg/response"
	"github.com/Umairakbar1/business-backend-sub000/pkg/telemetry"
)

// BoostHandler handles boost HTTP requests
type BoostHandler struct {
	boostService service.BoostService
	reconciler   service.Reconciler
}

// NewBoostHandler creates a new boost handler
func NewBoostHandler(boostService service.BoostService, reconciler service.Reconciler) *BoostHandler {
	return &BoostHandler{
		boostService: boostService,
		reconciler:   reconciler,
	}
}

// Checkout handles POST /boosts/checkout
func (h *BoostHandler) Checkout(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.boost.checkout")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	ownerID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.Error(c, http.StatusBadRequest, response.CodeInvalidRequest, "invalid request", err.Error())
		return
	}
	span.SetAttributes(
		attribute.String("business_id", req.BusinessID),
		attribute.String("category", req.Category),
	)

	result, err := h.boostService.Checkout(ctx, ownerID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Created(c, result)
}

// Confirm handles POST /boosts/:subscription_id/confirm
func (h *BoostHandler) Confirm(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.boost.confirm")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	ownerID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "unauthorized")
		return
	}

	subscriptionID := c.Param("subscription_id")
	span.SetAttributes(attribute.String("subscription_id", subscriptionID))

	result, err := h.boostService.ConfirmPurchase(ctx, ownerID, subscriptionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// Cancel handles POST /boosts/cancel. A refund the gateway rejected is
// reported with 202 and refund_status "pending"; the boost is still canceled.
func (h *BoostHandler) Cancel(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.boost.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	ownerID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "unauthorized")
		return
	}
	// admins may cancel any business's boost
	if c.GetString(middleware.ContextKeyRole) == middleware.RoleAdmin {
		ownerID = ""
	}

	var req dto.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.Error(c, http.StatusBadRequest, response.CodeInvalidRequest, "invalid request", err.Error())
		return
	}
	span.SetAttributes(
		attribute.String("business_id", req.BusinessID),
		attribute.String("category", req.Category),
	)

	result, err := h.boostService.Cancel(ctx, ownerID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if result != nil {
			logger.Get().Warn("boost canceled with refund pending",
				"business_id", req.BusinessID,
				"category", req.Category,
				"error", err,
			)
			response.Accepted(c, result)
			return
		}
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// GetStatus handles GET /boosts/status?business_id=&category=
func (h *BoostHandler) GetStatus(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.boost.status")
	defer span.End()

	businessID, category, ok := businessQuery(c)
	if !ok {
		span.SetStatus(codes.Error, "invalid request")
		return
	}

	result, err := h.boostService.GetQueueStatus(ctx, businessID, category)
	h.respond(c, span, result, err)
}

// GetPosition handles GET /boosts/position?business_id=&category=
func (h *BoostHandler) GetPosition(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.boost.position")
	defer span.End()

	businessID, category, ok := businessQuery(c)
	if !ok {
		span.SetStatus(codes.Error, "invalid request")
		return
	}

	result, err := h.boostService.GetQueuePosition(ctx, businessID, category)
	h.respond(c, span, result, err)
}

// GetEstimate handles GET /boosts/estimate?business_id=&category=
func (h *BoostHandler) GetEstimate(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.boost.estimate")
	defer span.End()

	businessID, category, ok := businessQuery(c)
	if !ok {
		span.SetStatus(codes.Error, "invalid request")
		return
	}

	result, err := h.boostService.GetEstimate(ctx, businessID, category)
	h.respond(c, span, result, err)
}

// IsActive handles GET /boosts/active?business_id=&category=
func (h *BoostHandler) IsActive(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.boost.active")
	defer span.End()

	businessID, category, ok := businessQuery(c)
	if !ok {
		span.SetStatus(codes.Error, "invalid request")
		return
	}

	result, err := h.boostService.IsBusinessActive(ctx, businessID, category)
	h.respond(c, span, result, err)
}

// GetCategoryQueue handles GET /categories/:category/queue
func (h *BoostHandler) GetCategoryQueue(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.boost.category_queue")
	defer span.End()

	category := c.Param("category")
	span.SetAttributes(attribute.String("category", category))

	result, err := h.boostService.GetCategoryQueue(ctx, category)
	h.respond(c, span, result, err)
}

// Reconcile handles POST /admin/reconcile
func (h *BoostHandler) Reconcile(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.boost.reconcile")
	defer span.End()

	if category := c.Query("category"); category != "" {
		category, err := domain.NormalizeCategory(category)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			h.handleError(c, err)
			return
		}
		result, err := h.reconciler.ReconcileCategory(ctx, category)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			h.handleError(c, err)
			return
		}
		summary := &dto.ReconcileResponse{Categories: 1}
		if result.Expired != nil {
			summary.Expired = 1
		}
		if result.Activated != nil {
			summary.Activated = 1
		}
		span.SetStatus(codes.Ok, "")
		response.Success(c, summary)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, h.reconciler.ReconcileAll(ctx))
}

// RegisterRoutes mounts the boost routes on an authenticated API group
func (h *BoostHandler) RegisterRoutes(api *gin.RouterGroup, writeMiddleware ...gin.HandlerFunc) {
	boosts := api.Group("/boosts")
	{
		write := append(append([]gin.HandlerFunc{}, writeMiddleware...), h.Checkout)
		boosts.POST("/checkout", write...)

		write = append(append([]gin.HandlerFunc{}, writeMiddleware...), h.Confirm)
		boosts.POST("/:subscription_id/confirm", write...)

		write = append(append([]gin.HandlerFunc{}, writeMiddleware...), h.Cancel)
		boosts.POST("/cancel", write...)

		boosts.GET("/status", h.GetStatus)
		boosts.GET("/position", h.GetPosition)
		boosts.GET("/estimate", h.GetEstimate)
		boosts.GET("/active", h.IsActive)
	}

	api.GET("/categories/:category/queue", h.GetCategoryQueue)

	admin := api.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("/reconcile", h.Reconcile)
}

func businessQuery(c *gin.Context) (string, string, bool) {
	businessID := c.Query("business_id")
	category := c.Query("category")
	if businessID == "" || category == "" {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidRequest, "business_id and category are required", "")
		return "", "", false
	}
	return businessID, category, true
}

func (h *BoostHandler) respond(c *gin.Context, span trace.Span, result interface{}, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}
	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// handleError converts domain errors to HTTP responses
func (h *BoostHandler) handleError(c *gin.Context, err error) {
	switch {
	case domain.IsValidationError(err):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidRequest, err.Error(), "")
	case errors.Is(err, domain.ErrNotOwner):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, err.Error(), "")
	case errors.Is(err, domain.ErrCategoryNotFound):
		response.Error(c, http.StatusNotFound, response.CodeCategoryNotFound, err.Error(), "")
	case errors.Is(err, domain.ErrEntryNotFound):
		response.Error(c, http.StatusNotFound, response.CodeBoostNotFound, err.Error(), "")
	case domain.IsNotFoundError(err):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error(), "")
	case errors.Is(err, domain.ErrDuplicateEntry):
		response.Error(c, http.StatusConflict, response.CodeDuplicateBoost, err.Error(), "")
	case errors.Is(err, domain.ErrAlreadyTerminal):
		response.Error(c, http.StatusConflict, response.CodeBoostClosed, err.Error(), "")
	case errors.Is(err, domain.ErrConcurrencyConflict):
		response.Error(c, http.StatusConflict, response.CodeConcurrentUpdate, err.Error(), "retry the request")
	case domain.IsConflictError(err):
		response.Error(c, http.StatusConflict, response.CodeConflict, err.Error(), "")
	case errors.Is(err, domain.ErrPaymentNotCompleted):
		response.Error(c, http.StatusPaymentRequired, response.CodePaymentNotCompleted, err.Error(), "")
	case errors.Is(err, domain.ErrPaymentGateway):
		response.Error(c, http.StatusBadGateway, response.CodePaymentGateway, "payment provider unavailable", err.Error())
	default:
		logger.Get().ErrorContext(c.Request.Context(), "unhandled boost error", "error", err)
		response.InternalError(c, err)
	}
}
