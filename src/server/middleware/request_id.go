package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDKey is the gin context key holding the request ID
	RequestIDKey = "request_id"

	HeaderXRequestID     = "X-Request-ID"
	HeaderXCorrelationID = "X-Correlation-ID"

	// longer incoming IDs are replaced rather than logged
	maxRequestIDLength = 128
)

// RequestID reuses an incoming X-Request-ID or X-Correlation-ID header, or
// generates a UUID v4, and echoes it back on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := extractRequestID(c)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Header(HeaderXRequestID, requestID)

		c.Next()
	}
}

func extractRequestID(c *gin.Context) string {
	for _, header := range []string{HeaderXRequestID, HeaderXCorrelationID} {
		id := c.GetHeader(header)
		if id == "" || len(id) > maxRequestIDLength {
			continue
		}
		if isPrintableASCII(id) {
			return id
		}
	}
	return ""
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// GetRequestID retrieves the request ID from the context
// Returns empty string if not found
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
