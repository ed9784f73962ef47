// internal/utils/response.go
package utils

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestIDKey is the gin context key holding the request ID
const RequestIDKey = "request_id"

// APIResponse is the envelope of every API reply
type APIResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError describes a failed request. The command fields are set when a
// device command was attempted.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	CommandID string `json:"command_id,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	LastReply any    `json:"last_reply,omitempty"`
}

// ErrorOption adds detail to an APIError
type ErrorOption func(*APIError)

// WithCode overrides the code derived from the HTTP status
func WithCode(code string) ErrorOption {
	return func(e *APIError) { e.Code = code }
}

// WithCommand records which command failed and after how many attempts
func WithCommand(commandID string, attempts int) ErrorOption {
	return func(e *APIError) {
		e.CommandID = commandID
		e.Attempts = attempts
	}
}

// WithLastReply records the last decoded device reply
func WithLastReply(reply any) ErrorOption {
	return func(e *APIError) { e.LastReply = reply }
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, statusCode int, message string, data any) {
	c.JSON(statusCode, APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: c.GetString(RequestIDKey),
	})
}

// ErrorResponse sends an error response. err, when set, becomes the details.
func ErrorResponse(c *gin.Context, statusCode int, message string, err error, opts ...ErrorOption) {
	apiErr := &APIError{
		Code:    errorCode(statusCode),
		Message: message,
	}
	if err != nil {
		apiErr.Details = err.Error()
	}
	for _, opt := range opts {
		opt(apiErr)
	}

	c.JSON(statusCode, APIResponse{
		Success:   false,
		Message:   message,
		Error:     apiErr,
		Timestamp: time.Now(),
		RequestID: c.GetString(RequestIDKey),
	})
}

// ValidationErrorResponse sends a 400 for a request that failed validation
func ValidationErrorResponse(c *gin.Context, err error) {
	ErrorResponse(c, http.StatusBadRequest, "Request validation failed", err, WithCode("VALIDATION_ERROR"))
}

func errorCode(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusInternalServerError:
		return "INTERNAL_SERVER_ERROR"
	case http.StatusBadGateway:
		return "DEVICE_ERROR"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case http.StatusGatewayTimeout:
		return "DEVICE_TIMEOUT"
	default:
		return "UNKNOWN_ERROR"
	}
}
