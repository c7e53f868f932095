package model

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apimgr/weatherdash/src/database"
)

// Alert is a webhook notification received from Alertmanager
type Alert struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Description string          `json:"description"`
	Payload     json.RawMessage `json:"payload"`
	ReceivedAt  time.Time       `json:"received_at"`
}

// AlertModel handles alert persistence
type AlertModel struct {
	DB *database.DB
}

// Insert stores an alert, assigning its ID
func (m *AlertModel) Insert(ctx context.Context, a *Alert) error {
	ctx, cancel := context.WithTimeout(ctx, database.TimeoutWrite)
	defer cancel()

	if a.ID == "" {
		a.ID = NewID()
	}
	if a.ReceivedAt.IsZero() {
		a.ReceivedAt = time.Now()
	}
	a.ReceivedAt = a.ReceivedAt.UTC().Truncate(time.Second)

	_, err := m.DB.ExecContext(ctx, m.DB.Rebind(`
		INSERT INTO alerts (id, status, description, payload, received_at)
		VALUES (?, ?, ?, ?, ?)
	`), a.ID, a.Status, a.Description, string(a.Payload), toUnix(a.ReceivedAt))
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// Recent returns up to limit alerts, newest first
func (m *AlertModel) Recent(ctx context.Context, limit int) ([]Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, database.TimeoutSimpleSelect)
	defer cancel()

	rows, err := m.DB.QueryContext(ctx, `
		SELECT id, status, description, payload, received_at
		FROM alerts
		ORDER BY received_at DESC, id DESC
	`+m.DB.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	out := []Alert{}
	for rows.Next() {
		var (
			a       Alert
			payload string
			at      int64
		)
		if err := rows.Scan(&a.ID, &a.Status, &a.Description, &payload, &at); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Payload = json.RawMessage(payload)
		a.ReceivedAt = fromUnix(at)
		out = append(out, a)
	}
	return out, rows.Err()
}
