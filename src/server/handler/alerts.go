package handler

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/apimgr/weatherdash/src/server/middleware"
	"github.com/apimgr/weatherdash/src/server/service"
	"github.com/apimgr/weatherdash/src/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// AlertHandler receives alert webhooks and serves the live alert feed
type AlertHandler struct {
	Alerts *service.AlertService
	Hub    *service.Hub
	Logger *utils.Logger

	token    string
	upgrader websocket.Upgrader
}

// NewAlertHandler creates an alert handler. When token is non-empty the
// webhook requires it as a bearer token. origins restricts websocket
// upgrades the same way CORS restricts XHR; "*" allows any origin.
func NewAlertHandler(alerts *service.AlertService, hub *service.Hub, token string, origins []string, logger *utils.Logger) *AlertHandler {
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	return &AlertHandler{
		Alerts: alerts,
		Hub:    hub,
		Logger: logger,
		token:  token,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// non-browser clients send no Origin
		if origin == "" {
			return true
		}
		return allowed[strings.ToLower(origin)]
	}
}

// HandleWebhook handles POST /alerts
func (h *AlertHandler) HandleWebhook(c *gin.Context) {
	if h.token != "" {
		got := middleware.BearerToken(c.GetHeader("Authorization"))
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			h.Logger.Security(c.ClientIP(), "alert_token_rejected", c.Request.UserAgent())
			Unauthorized(c, "Invalid alert token")
			return
		}
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			RespondError(c, http.StatusRequestEntityTooLarge, ErrBadRequest, "Request body too large")
			return
		}
		BadRequest(c, "Failed to read request body")
		return
	}

	if _, err := h.Alerts.Receive(c.Request.Context(), body); err != nil {
		if errors.Is(err, service.ErrInvalidPayload) {
			InvalidInput(c, err.Error())
			return
		}
		// stored and remembered; only the push failed
		h.Logger.Warn("Alert accepted with error: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// HandleList handles GET /alerts?limit=
func (h *AlertHandler) HandleList(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			InvalidInput(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	alerts := h.Alerts.Recent(limit)
	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// HandleWebSocket handles GET /ws/alerts
func (h *AlertHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.Logger.Warn("WebSocket upgrade failed from %s: %v", c.ClientIP(), err)
		return
	}

	client := service.NewHubClient(h.Hub, conn)
	h.Hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
