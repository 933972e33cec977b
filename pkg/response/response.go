package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Umairakbar1/business-backend-sub000/pkg/telemetry"
)

// Code is the machine-readable error code clients switch on
type Code string

const (
	CodeInvalidRequest      Code = "INVALID_REQUEST"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeCategoryNotFound    Code = "CATEGORY_NOT_FOUND"
	CodeBoostNotFound       Code = "BOOST_NOT_FOUND"
	CodeDuplicateBoost      Code = "DUPLICATE_BOOST"
	CodeBoostClosed         Code = "BOOST_CLOSED"
	CodeConcurrentUpdate    Code = "CONCURRENT_UPDATE"
	CodeConflict            Code = "CONFLICT"
	CodePaymentNotCompleted Code = "PAYMENT_NOT_COMPLETED"
	CodePaymentGateway      Code = "PAYMENT_GATEWAY_ERROR"
	CodeMissingIdempotency  Code = "MISSING_IDEMPOTENCY_KEY"
	CodeIdempotencyReused   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRequestInProgress   Code = "REQUEST_IN_PROGRESS"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// Response is the JSON envelope for every API reply
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorData  `json:"error,omitempty"`
}

// ErrorData describes a failed request. TraceID lets support find the
// request's spans and logs.
type ErrorData struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// Accepted reports a request that took effect while part of its work is
// still outstanding, such as a cancellation whose refund will be retried
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, Response{Success: true, Data: data})
}

func Error(c *gin.Context, status int, code Code, message, details string) {
	c.JSON(status, errorEnvelope(c, code, message, details))
}

// Abort writes the error and stops the middleware chain
func Abort(c *gin.Context, status int, code Code, message string) {
	c.AbortWithStatusJSON(status, errorEnvelope(c, code, message, ""))
}

// InternalError hides the cause from the client; the trace ID links to it
func InternalError(c *gin.Context, err error) {
	_ = c.Error(err)
	Error(c, http.StatusInternalServerError, CodeInternal, "internal server error", "")
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, CodeUnauthorized, message, "")
}

func errorEnvelope(c *gin.Context, code Code, message, details string) Response {
	return Response{
		Success: false,
		Error: &ErrorData{
			Code:    code,
			Message: message,
			Details: details,
			TraceID: c.GetString(telemetry.TraceIDKey),
		},
	}
}
