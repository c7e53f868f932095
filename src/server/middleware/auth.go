package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/apimgr/weatherdash/src/server/model"
	"github.com/gin-gonic/gin"
)

const (
	UserContextKey    = "user"
	SessionContextKey = "session"
	TokenContextKey   = "session_token"
)

// Authenticator resolves a session token to its user
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, *model.Session, error)
}

// AuthMiddleware reads a session token from the Authorization header or the
// session cookie. With required set, requests without a valid session get
// a 401.
func AuthMiddleware(auth Authenticator, cookieName string, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := TokenFromRequest(c, cookieName); token != "" {
			user, session, err := auth.Authenticate(c.Request.Context(), token)
			if err == nil {
				c.Set(UserContextKey, user)
				c.Set(SessionContextKey, session)
				c.Set(TokenContextKey, token)
				c.Next()
				return
			}
		}

		if required {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":  "Authentication required",
				"code":   "UNAUTHORIZED",
				"status": http.StatusUnauthorized,
			})
			return
		}

		c.Next()
	}
}

// RequireAuth is a convenience wrapper for required authentication
func RequireAuth(auth Authenticator, cookieName string) gin.HandlerFunc {
	return AuthMiddleware(auth, cookieName, true)
}

// OptionalAuth is a convenience wrapper for optional authentication
func OptionalAuth(auth Authenticator, cookieName string) gin.HandlerFunc {
	return AuthMiddleware(auth, cookieName, false)
}

// TokenFromRequest returns the bearer token, falling back to the cookie
func TokenFromRequest(c *gin.Context, cookieName string) string {
	if token := BearerToken(c.GetHeader("Authorization")); token != "" {
		return token
	}
	if cookieName == "" {
		return ""
	}
	if token, err := c.Cookie(cookieName); err == nil {
		return token
	}
	return ""
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// GetCurrentUser retrieves the current user from context
func GetCurrentUser(c *gin.Context) (*model.User, bool) {
	v, exists := c.Get(UserContextKey)
	if !exists {
		return nil, false
	}
	user, ok := v.(*model.User)
	return user, ok && user != nil
}

// GetCurrentSession retrieves the current session from context
func GetCurrentSession(c *gin.Context) (*model.Session, bool) {
	v, exists := c.Get(SessionContextKey)
	if !exists {
		return nil, false
	}
	session, ok := v.(*model.Session)
	return session, ok && session != nil
}

// RequireAdmin lets through only signed-in users whose email is listed.
// It must run after RequireAuth. An empty list rejects everyone.
func RequireAdmin(emails []string) gin.HandlerFunc {
	admins := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			admins[e] = struct{}{}
		}
	}
	return func(c *gin.Context) {
		user, ok := GetCurrentUser(c)
		if ok {
			if _, admin := admins[strings.ToLower(user.Email)]; admin {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":  "Admin access required",
			"code":   "FORBIDDEN",
			"status": http.StatusForbidden,
		})
	}
}
