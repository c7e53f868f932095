package model

import (
	"context"
	"fmt"
	"time"

	"github.com/apimgr/weatherdash/src/database"
)

// Observation is one stored current-weather reading for a city
type Observation struct {
	ID          string    `json:"id"`
	City        string    `json:"city"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	WindSpeed   float64   `json:"wind_speed"`
	Pressure    float64   `json:"pressure"`
	ObservedAt  time.Time `json:"observed_at"`
}

// ObservationModel handles observation history
type ObservationModel struct {
	DB *database.DB
}

// Insert stores an observation, assigning its ID
func (m *ObservationModel) Insert(ctx context.Context, o *Observation) error {
	ctx, cancel := context.WithTimeout(ctx, database.TimeoutWrite)
	defer cancel()

	if o.ID == "" {
		o.ID = NewID()
	}
	if o.ObservedAt.IsZero() {
		o.ObservedAt = time.Now()
	}
	o.ObservedAt = o.ObservedAt.UTC().Truncate(time.Second)

	_, err := m.DB.ExecContext(ctx, m.DB.Rebind(`
		INSERT INTO observations (id, city, temperature, humidity, wind_speed, pressure, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), o.ID, o.City, o.Temperature, o.Humidity, o.WindSpeed, o.Pressure, toUnix(o.ObservedAt))
	if err != nil {
		return fmt.Errorf("failed to insert observation: %w", err)
	}
	return nil
}

// History returns the newest observations for city, newest first
func (m *ObservationModel) History(ctx context.Context, city string, limit int) ([]Observation, error) {
	ctx, cancel := context.WithTimeout(ctx, database.TimeoutSimpleSelect)
	defer cancel()

	rows, err := m.DB.QueryContext(ctx, m.DB.Rebind(`
		SELECT id, city, temperature, humidity, wind_speed, pressure, observed_at
		FROM observations WHERE city = ?
		ORDER BY observed_at DESC, id DESC
	`+m.DB.Limit(limit)), city)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	out := []Observation{}
	for rows.Next() {
		var (
			o  Observation
			at int64
		)
		if err := rows.Scan(&o.ID, &o.City, &o.Temperature, &o.Humidity, &o.WindSpeed, &o.Pressure, &at); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		o.ObservedAt = fromUnix(at)
		out = append(out, o)
	}
	return out, rows.Err()
}

// Prune deletes observations older than before and returns how many
func (m *ObservationModel) Prune(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, database.TimeoutWrite)
	defer cancel()

	res, err := m.DB.ExecContext(ctx, m.DB.Rebind(`DELETE FROM observations WHERE observed_at < ?`), toUnix(before))
	if err != nil {
		return 0, fmt.Errorf("failed to prune observations: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
