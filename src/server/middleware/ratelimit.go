package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/httprate"
)

const (
	// Global rate limit (all endpoints)
	GlobalRequestsPerWindow = 100
	GlobalWindowDuration    = time.Second

	// Auth rate limit (register, login)
	AuthRequestsPerWindow = 10
	AuthWindowDuration    = time.Minute
)

type clientIPKey struct{}

// keyByClientIP keys limits on gin's ClientIP, which honours the trusted
// proxy list, instead of the raw remote address.
func keyByClientIP(r *http.Request) (string, error) {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok && ip != "" {
		return ip, nil
	}
	return httprate.KeyByIP(r)
}

// GlobalRateLimitMiddleware applies the per-IP global limit
func GlobalRateLimitMiddleware() gin.HandlerFunc {
	return RateLimit(GlobalRequestsPerWindow, GlobalWindowDuration)
}

// AuthRateLimitMiddleware applies the stricter per-IP limit for auth routes
func AuthRateLimitMiddleware() gin.HandlerFunc {
	return RateLimit(AuthRequestsPerWindow, AuthWindowDuration)
}

// RateLimit allows limit requests per window per client IP. Each call
// creates an independent limiter.
func RateLimit(limit int, window time.Duration) gin.HandlerFunc {
	limiter := httprate.NewRateLimiter(
		limit,
		window,
		httprate.WithKeyFuncs(keyByClientIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":       "Rate limit exceeded",
				"code":        "RATE_LIMITED",
				"status":      http.StatusTooManyRequests,
				"retry_after": int(window.Seconds()),
			})
		}),
	)

	return func(c *gin.Context) {
		passed := false
		next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			passed = true
		})

		req := c.Request.WithContext(context.WithValue(c.Request.Context(), clientIPKey{}, c.ClientIP()))
		limiter.Handler(next).ServeHTTP(c.Writer, req)

		if !passed {
			c.Abort()
			return
		}
		c.Next()
	}
}
