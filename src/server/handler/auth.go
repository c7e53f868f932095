package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/apimgr/weatherdash/src/server/middleware"
	"github.com/apimgr/weatherdash/src/server/service"
	"github.com/apimgr/weatherdash/src/utils"
	"github.com/gin-gonic/gin"
)

// RegisterRequest is the body of POST /api/v1/auth/register
type RegisterRequest struct {
	Email           string `json:"email" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password"`
}

// LoginRequest is the body of POST /api/v1/auth/login
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthHandler serves the account endpoints
type AuthHandler struct {
	Auth       *service.AuthService
	CookieName string
	Logger     *utils.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth *service.AuthService, cookieName string, logger *utils.Logger) *AuthHandler {
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	return &AuthHandler{Auth: auth, CookieName: cookieName, Logger: logger}
}

// HandleRegister handles POST /api/v1/auth/register
func (h *AuthHandler) HandleRegister(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidInput(c, "email and password are required")
		return
	}
	// the API accepts a single password; the confirm field is for forms
	if req.ConfirmPassword == "" {
		req.ConfirmPassword = req.Password
	}

	user, err := h.Auth.Register(c.Request.Context(), req.Email, req.Password, req.ConfirmPassword)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			Conflict(c, "Error registering, email most likely taken")
		case errors.Is(err, service.ErrInvalidEmail),
			errors.Is(err, service.ErrPasswordMismatch),
			errors.Is(err, service.ErrWeakPassword):
			InvalidInput(c, err.Error())
		default:
			h.Logger.Error("Registration failed: %v", err)
			InternalError(c, "Registration failed")
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// HandleLogin handles POST /api/v1/auth/login
func (h *AuthHandler) HandleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidInput(c, "email and password are required")
		return
	}

	res, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			Unauthorized(c, "Invalid email or password")
			return
		}
		h.Logger.Error("Login failed: %v", err)
		InternalError(c, "Login failed")
		return
	}

	h.setSessionCookie(c, res.Token, res.ExpiresAt)
	c.JSON(http.StatusOK, res)
}

// HandleLogout handles POST /api/v1/auth/logout
func (h *AuthHandler) HandleLogout(c *gin.Context) {
	if token := middleware.TokenFromRequest(c, h.CookieName); token != "" {
		if err := h.Auth.Logout(c.Request.Context(), token); err != nil {
			h.Logger.Error("Logout failed: %v", err)
			InternalError(c, "Logout failed")
			return
		}
	}

	h.setSessionCookie(c, "", time.Time{})
	RespondSuccess(c, "Logged out")
}

// HandleMe handles GET /api/v1/auth/me
func (h *AuthHandler) HandleMe(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		Unauthorized(c, "Authentication required")
		return
	}
	resp := gin.H{"user": user}
	if session, ok := middleware.GetCurrentSession(c); ok {
		resp["session_expires_at"] = session.ExpiresAt
	}
	c.JSON(http.StatusOK, resp)
}

// setSessionCookie writes the session cookie; an empty token clears it
func (h *AuthHandler) setSessionCookie(c *gin.Context, token string, expires time.Time) {
	maxAge := -1
	if token != "" {
		maxAge = int(time.Until(expires).Seconds())
	}
	secure := c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https"

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.CookieName, token, maxAge, "/", "", secure, true)
}
