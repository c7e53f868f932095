package middleware

import (
	"time"

	"github.com/apimgr/weatherdash/src/utils"
	"github.com/gin-gonic/gin"
)

// slowRequest is the duration above which a request is also logged as slow
const slowRequest = time.Second

// AccessLogger writes one Apache combined line per request to access.log
func AccessLogger(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		method := c.Request.Method
		path := c.Request.URL.Path

		username := ""
		if user, ok := GetCurrentUser(c); ok {
			username = user.Email
		}

		logger.Access(c.ClientIP(), username, method, path, c.Request.Proto,
			c.Writer.Status(), int64(c.Writer.Size()), c.Request.Referer(), c.Request.UserAgent())

		// websocket connections stay open for their whole lifetime
		if duration > slowRequest && !c.IsWebsocket() {
			logger.Warn("Slow request: %s %s took %v (request_id=%s)", method, path, duration, GetRequestID(c))
		}
	}
}
