package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/apimgr/weatherdash/src/server/metrics"
	"github.com/apimgr/weatherdash/src/server/model"
	"github.com/apimgr/weatherdash/src/utils"
)

// recentAlertsSize bounds the in-memory alert ring
const recentAlertsSize = 100

// NoDescription is shown when a webhook carries no annotation description
const NoDescription = "No description"

// alertmanagerPayload holds the webhook fields we read. Everything else is
// passed through untouched.
type alertmanagerPayload struct {
	Status string `json:"status"`
	Alerts []struct {
		Status      string            `json:"status"`
		Annotations map[string]string `json:"annotations"`
	} `json:"alerts"`
}

// AlertService receives alert webhooks, stores them and pushes them to
// websocket subscribers as "new_alert" messages.
type AlertService struct {
	alerts *model.AlertModel
	hub    *Hub
	logger *utils.Logger

	mu     sync.RWMutex
	recent []model.Alert
}

// NewAlertService creates an alert service. alerts may be nil, in which
// case only the in-memory ring is kept.
func NewAlertService(alerts *model.AlertModel, hub *Hub, logger *utils.Logger) *AlertService {
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	return &AlertService{
		alerts: alerts,
		hub:    hub,
		logger: logger,
	}
}

// Receive handles one webhook body. The raw payload is broadcast as is.
func (s *AlertService) Receive(ctx context.Context, raw []byte) (*model.Alert, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' || !json.Valid(raw) {
		return nil, ErrInvalidPayload
	}

	var payload alertmanagerPayload
	// shape mismatches in known fields are tolerated
	_ = json.Unmarshal(raw, &payload)

	alert := model.Alert{
		Status:      payload.Status,
		Description: NoDescription,
		Payload:     json.RawMessage(append([]byte(nil), raw...)),
		ReceivedAt:  time.Now(),
	}
	if len(payload.Alerts) > 0 {
		first := payload.Alerts[0]
		if d := first.Annotations["description"]; d != "" {
			alert.Description = d
		}
		if alert.Status == "" {
			alert.Status = first.Status
		}
	}

	s.logger.Info("Received alert: status=%s description=%q", alert.Status, alert.Description)
	metrics.RecordAlert(alert.Status)

	if s.alerts != nil {
		if err := s.alerts.Insert(ctx, &alert); err != nil {
			// delivery to dashboards matters more than history
			s.logger.Error("Failed to store alert: %v", err)
		}
	}
	if alert.ID == "" {
		alert.ID = model.NewID()
	}

	s.remember(alert)

	if s.hub != nil {
		if err := s.hub.Broadcast("new_alert", alert.Payload); err != nil {
			return &alert, fmt.Errorf("failed to broadcast alert: %w", err)
		}
	}

	return &alert, nil
}

func (s *AlertService) remember(a model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent = append(s.recent, a)
	if over := len(s.recent) - recentAlertsSize; over > 0 {
		s.recent = append(s.recent[:0:0], s.recent[over:]...)
	}
}

// Recent returns up to limit alerts, newest first
func (s *AlertService) Recent(limit int) []model.Alert {
	if limit <= 0 || limit > recentAlertsSize {
		limit = recentAlertsSize
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.recent)
	if limit > n {
		limit = n
	}
	out := make([]model.Alert, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.recent[i])
	}
	return out
}

// Load fills the in-memory ring from storage, typically at startup
func (s *AlertService) Load(ctx context.Context) error {
	if s.alerts == nil {
		return nil
	}

	stored, err := s.alerts.Recent(ctx, recentAlertsSize)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent = make([]model.Alert, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		s.recent = append(s.recent, stored[i])
	}
	return nil
}
