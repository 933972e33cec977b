package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/internal/dto"
	"github.com/Umairakbar1/business-backend-sub000/internal/service"
	"github.com/Umairakbar1/business-backend-sub000/pkg/middleware"
	"github.com/Umairakbar1/business-backend-sub000/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockBoostService is a mock implementation of service.BoostService
type MockBoostService struct {
	mock.Mock
}

var _ service.BoostService = (*MockBoostService)(nil)

func (m *MockBoostService) Checkout(ctx context.Context, ownerID string, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	args := m.Called(ctx, ownerID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.CheckoutResponse), args.Error(1)
}

func (m *MockBoostService) ConfirmPurchase(ctx context.Context, ownerID, subscriptionID string) (*dto.AdmissionResponse, error) {
	args := m.Called(ctx, ownerID, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.AdmissionResponse), args.Error(1)
}

func (m *MockBoostService) ConfirmPaymentIntent(ctx context.Context, paymentIntentID string) (*dto.AdmissionResponse, error) {
	args := m.Called(ctx, paymentIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.AdmissionResponse), args.Error(1)
}

func (m *MockBoostService) Admit(ctx context.Context, req *service.AdmitRequest) (*service.AdmitResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AdmitResult), args.Error(1)
}

func (m *MockBoostService) Cancel(ctx context.Context, ownerID string, req *dto.CancelRequest) (*dto.CancelResponse, error) {
	args := m.Called(ctx, ownerID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.CancelResponse), args.Error(1)
}

func (m *MockBoostService) RetryPendingRefunds(ctx context.Context, limit int) (*service.RefundRetrySummary, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RefundRetrySummary), args.Error(1)
}

func (m *MockBoostService) GetQueuePosition(ctx context.Context, businessID, category string) (*dto.QueuePositionResponse, error) {
	args := m.Called(ctx, businessID, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.QueuePositionResponse), args.Error(1)
}

func (m *MockBoostService) GetEstimate(ctx context.Context, businessID, category string) (*dto.EstimateResponse, error) {
	args := m.Called(ctx, businessID, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.EstimateResponse), args.Error(1)
}

func (m *MockBoostService) IsBusinessActive(ctx context.Context, businessID, category string) (*dto.ActiveResponse, error) {
	args := m.Called(ctx, businessID, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ActiveResponse), args.Error(1)
}

func (m *MockBoostService) GetQueueStatus(ctx context.Context, businessID, category string) (*dto.QueueStatusResponse, error) {
	args := m.Called(ctx, businessID, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.QueueStatusResponse), args.Error(1)
}

func (m *MockBoostService) GetCategoryQueue(ctx context.Context, category string) (*dto.CategoryQueueResponse, error) {
	args := m.Called(ctx, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.CategoryQueueResponse), args.Error(1)
}

// MockReconciler is a mock implementation of service.Reconciler
type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) ReconcileCategory(ctx context.Context, category string) (domain.ReconcileResult, error) {
	args := m.Called(ctx, category)
	return args.Get(0).(domain.ReconcileResult), args.Error(1)
}

func (m *MockReconciler) ReconcileAll(ctx context.Context) *dto.ReconcileResponse {
	args := m.Called(ctx)
	return args.Get(0).(*dto.ReconcileResponse)
}

// withUser stands in for JWTAuth
func withUser(userID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != "" {
			c.Set(middleware.ContextKeyUserID, userID)
			c.Set(middleware.ContextKeyRole, role)
		}
		c.Next()
	}
}

func setupRouter(svc *MockBoostService, rec *MockReconciler, userID, role string) *gin.Engine {
	router := gin.New()
	api := router.Group("/api/v1", withUser(userID, role))
	NewBoostHandler(svc, rec).RegisterRoutes(api)
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data interface{}) response.Response {
	t.Helper()
	var env struct {
		Success bool                `json:"success"`
		Data    json.RawMessage     `json:"data"`
		Error   *response.ErrorData `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return response.Response{Success: env.Success, Error: env.Error}
}

func TestBoostHandler_Checkout(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := new(MockBoostService)
		router := setupRouter(svc, nil, "owner-1", "")

		req := &dto.CheckoutRequest{BusinessID: "biz-1", Category: "cafes"}
		svc.On("Checkout", mock.Anything, "owner-1", req).Return(&dto.CheckoutResponse{
			SubscriptionID:  "sub-1",
			PaymentIntentID: "pi_1",
			ClientSecret:    "secret",
			Amount:          2999,
			Currency:        "usd",
			Category:        "cafes",
		}, nil)

		w := doJSON(router, http.MethodPost, "/api/v1/boosts/checkout", req)
		assert.Equal(t, http.StatusCreated, w.Code)

		var got dto.CheckoutResponse
		env := decodeEnvelope(t, w, &got)
		assert.True(t, env.Success)
		assert.Equal(t, "sub-1", got.SubscriptionID)
		assert.Equal(t, "secret", got.ClientSecret)
		svc.AssertExpectations(t)
	})

	t.Run("unauthorized", func(t *testing.T) {
		svc := new(MockBoostService)
		router := setupRouter(svc, nil, "", "")

		w := doJSON(router, http.MethodPost, "/api/v1/boosts/checkout", &dto.CheckoutRequest{BusinessID: "biz-1", Category: "cafes"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		svc.AssertNotCalled(t, "Checkout", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing fields", func(t *testing.T) {
		svc := new(MockBoostService)
		router := setupRouter(svc, nil, "owner-1", "")

		w := doJSON(router, http.MethodPost, "/api/v1/boosts/checkout", map[string]string{"business_id": "biz-1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("duplicate", func(t *testing.T) {
		svc := new(MockBoostService)
		router := setupRouter(svc, nil, "owner-1", "")
		svc.On("Checkout", mock.Anything, "owner-1", mock.Anything).Return(nil, domain.ErrDuplicateEntry)

		w := doJSON(router, http.MethodPost, "/api/v1/boosts/checkout", &dto.CheckoutRequest{BusinessID: "biz-1", Category: "cafes"})
		assert.Equal(t, http.StatusConflict, w.Code)
		env := decodeEnvelope(t, w, nil)
		require.NotNil(t, env.Error)
		assert.Equal(t, response.CodeDuplicateBoost, env.Error.Code)
	})
}

func TestBoostHandler_Confirm(t *testing.T) {
	svc := new(MockBoostService)
	router := setupRouter(svc, nil, "owner-1", "")

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	svc.On("ConfirmPurchase", mock.Anything, "owner-1", "sub-1").Return(&dto.AdmissionResponse{
		SubscriptionID: "sub-1",
		EntryID:        "entry-1",
		Status:         domain.BoostActive,
		Activated:      true,
		BoostStartTime: &start,
		BoostEndTime:   &end,
	}, nil)
	svc.On("ConfirmPurchase", mock.Anything, "owner-1", "sub-2").
		Return(nil, fmt.Errorf("%w: payment intent pi_2 is processing", domain.ErrPaymentNotCompleted))

	w := doJSON(router, http.MethodPost, "/api/v1/boosts/sub-1/confirm", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var got dto.AdmissionResponse
	decodeEnvelope(t, w, &got)
	assert.True(t, got.Activated)
	assert.Equal(t, end, *got.BoostEndTime)

	w = doJSON(router, http.MethodPost, "/api/v1/boosts/sub-2/confirm", nil)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestBoostHandler_Cancel(t *testing.T) {
	req := &dto.CancelRequest{BusinessID: "biz-1", Category: "cafes"}

	t.Run("refunded", func(t *testing.T) {
		svc := new(MockBoostService)
		router := setupRouter(svc, nil, "owner-1", "")
		svc.On("Cancel", mock.Anything, "owner-1", req).Return(&dto.CancelResponse{
			BusinessID:     "biz-1",
			PreviousStatus: domain.BoostActive,
			RefundPercent:  50,
			RefundAmount:   1499,
			RefundStatus:   dto.RefundStatusRefunded,
		}, nil)

		w := doJSON(router, http.MethodPost, "/api/v1/boosts/cancel", req)
		assert.Equal(t, http.StatusOK, w.Code)
		var got dto.CancelResponse
		decodeEnvelope(t, w, &got)
		assert.Equal(t, 50, got.RefundPercent)
		assert.Equal(t, int64(1499), got.RefundAmount)
	})

	t.Run("refund pending", func(t *testing.T) {
		svc := new(MockBoostService)
		router := setupRouter(svc, nil, "owner-1", "")
		svc.On("Cancel", mock.Anything, "owner-1", req).Return(
			&dto.CancelResponse{RefundStatus: dto.RefundStatusPending, RefundAmount: 1499},
			domain.NewPaymentGatewayError("create_refund", errors.New("timeout")),
		)

		w := doJSON(router, http.MethodPost, "/api/v1/boosts/cancel", req)
		assert.Equal(t, http.StatusAccepted, w.Code)
		var got dto.CancelResponse
		env := decodeEnvelope(t, w, &got)
		assert.True(t, env.Success)
		assert.Equal(t, dto.RefundStatusPending, got.RefundStatus)
	})

	t.Run("admin cancels any business", func(t *testing.T) {
		svc := new(MockBoostService)
		router := setupRouter(svc, nil, "admin-1", middleware.RoleAdmin)
		svc.On("Cancel", mock.Anything, "", req).Return(&dto.CancelResponse{RefundStatus: dto.RefundStatusNone}, nil)

		w := doJSON(router, http.MethodPost, "/api/v1/boosts/cancel", req)
		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			err  error
			code int
		}{
			{domain.ErrEntryNotFound, http.StatusNotFound},
			{domain.ErrCategoryNotFound, http.StatusNotFound},
			{domain.ErrAlreadyTerminal, http.StatusConflict},
			{domain.ErrNotOwner, http.StatusForbidden},
			{domain.ErrConcurrencyConflict, http.StatusConflict},
			{domain.ErrInvalidCategory, http.StatusBadRequest},
			{errors.New("boom"), http.StatusInternalServerError},
		}
		for _, tt := range tests {
			svc := new(MockBoostService)
			router := setupRouter(svc, nil, "owner-1", "")
			svc.On("Cancel", mock.Anything, "owner-1", req).Return(nil, tt.err)

			w := doJSON(router, http.MethodPost, "/api/v1/boosts/cancel", req)
			assert.Equal(t, tt.code, w.Code, tt.err.Error())
		}
	})
}

func TestBoostHandler_Reads(t *testing.T) {
	svc := new(MockBoostService)
	router := setupRouter(svc, nil, "owner-1", "")

	svc.On("GetQueuePosition", mock.Anything, "biz-1", "cafes").
		Return(&dto.QueuePositionResponse{BusinessID: "biz-1", Category: "cafes", Position: 2, InQueue: true, TotalPending: 3}, nil)
	svc.On("IsBusinessActive", mock.Anything, "biz-1", "cafes").
		Return(&dto.ActiveResponse{BusinessID: "biz-1", Category: "cafes", IsActive: false}, nil)
	svc.On("GetEstimate", mock.Anything, "biz-9", "cafes").Return(nil, domain.ErrEntryNotFound)
	svc.On("GetQueueStatus", mock.Anything, "biz-1", "cafes").
		Return(&dto.QueueStatusResponse{BusinessID: "biz-1", Status: domain.BoostPending, Position: 2}, nil)
	svc.On("GetCategoryQueue", mock.Anything, "cafes").
		Return(&dto.CategoryQueueResponse{Category: "cafes", PendingCount: 3}, nil)

	w := doJSON(router, http.MethodGet, "/api/v1/boosts/position?business_id=biz-1&category=cafes", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var pos dto.QueuePositionResponse
	decodeEnvelope(t, w, &pos)
	assert.Equal(t, 2, pos.Position)

	w = doJSON(router, http.MethodGet, "/api/v1/boosts/active?business_id=biz-1&category=cafes", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/boosts/estimate?business_id=biz-9&category=cafes", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/boosts/status?business_id=biz-1&category=cafes", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/categories/cafes/queue", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var snapshot dto.CategoryQueueResponse
	decodeEnvelope(t, w, &snapshot)
	assert.Equal(t, 3, snapshot.PendingCount)

	w = doJSON(router, http.MethodGet, "/api/v1/boosts/status?category=cafes", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertExpectations(t)
}

func TestBoostHandler_Reconcile(t *testing.T) {
	t.Run("requires admin", func(t *testing.T) {
		rec := new(MockReconciler)
		router := setupRouter(new(MockBoostService), rec, "owner-1", "")

		w := doJSON(router, http.MethodPost, "/api/v1/admin/reconcile", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		rec.AssertNotCalled(t, "ReconcileAll", mock.Anything)
	})

	t.Run("all categories", func(t *testing.T) {
		rec := new(MockReconciler)
		router := setupRouter(new(MockBoostService), rec, "admin-1", middleware.RoleAdmin)
		rec.On("ReconcileAll", mock.Anything).Return(&dto.ReconcileResponse{Categories: 4, Expired: 1, Activated: 1})

		w := doJSON(router, http.MethodPost, "/api/v1/admin/reconcile", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		var got dto.ReconcileResponse
		decodeEnvelope(t, w, &got)
		assert.Equal(t, 4, got.Categories)
	})

	t.Run("one category", func(t *testing.T) {
		rec := new(MockReconciler)
		router := setupRouter(new(MockBoostService), rec, "admin-1", middleware.RoleAdmin)
		rec.On("ReconcileCategory", mock.Anything, "cafes").
			Return(domain.ReconcileResult{Expired: &domain.QueueEntry{ID: "e1"}}, nil)

		w := doJSON(router, http.MethodPost, "/api/v1/admin/reconcile?category=Cafes", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		var got dto.ReconcileResponse
		decodeEnvelope(t, w, &got)
		assert.Equal(t, 1, got.Expired)
		assert.Equal(t, 0, got.Activated)
	})
}
