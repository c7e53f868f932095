package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every error this API returns
type ErrorResponse struct {
	// Human-readable error message
	Error string `json:"error"`
	// Machine-readable error code (e.g., INVALID_INPUT, NOT_FOUND)
	Code string `json:"code,omitempty"`
	// HTTP status code
	Status int `json:"status,omitempty"`
}

// Common error codes
const (
	ErrInvalidInput    = "INVALID_INPUT"
	ErrNotFound        = "NOT_FOUND"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrConflict        = "CONFLICT"
	ErrBadRequest      = "BAD_REQUEST"
	ErrInternal        = "INTERNAL_ERROR"
	ErrServiceUnavail  = "SERVICE_UNAVAILABLE"
	ErrExternalService = "EXTERNAL_SERVICE_ERROR"
)

// RespondError sends {"error": msg, "code": CODE, "status": n}
func RespondError(c *gin.Context, status int, code string, message string) {
	c.JSON(status, ErrorResponse{
		Error:  message,
		Code:   code,
		Status: status,
	})
}

// RespondSuccess sends {"ok": true, "message": msg}
func RespondSuccess(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": message})
}

// RespondData returns the item directly without wrapper
func RespondData(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// BadRequest returns a 400 Bad Request error
func BadRequest(c *gin.Context, message string) {
	RespondError(c, http.StatusBadRequest, ErrBadRequest, message)
}

// InvalidInput returns a 400 Invalid Input error
func InvalidInput(c *gin.Context, message string) {
	RespondError(c, http.StatusBadRequest, ErrInvalidInput, message)
}

// Unauthorized returns a 401 Unauthorized error
func Unauthorized(c *gin.Context, message string) {
	RespondError(c, http.StatusUnauthorized, ErrUnauthorized, message)
}

// Conflict returns a 409 Conflict error
func Conflict(c *gin.Context, message string) {
	RespondError(c, http.StatusConflict, ErrConflict, message)
}

// InternalError returns a 500 Internal Server Error
func InternalError(c *gin.Context, message string) {
	RespondError(c, http.StatusInternalServerError, ErrInternal, message)
}
