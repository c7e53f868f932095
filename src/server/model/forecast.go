package model

import (
	"context"
	"fmt"
	"time"

	"github.com/apimgr/weatherdash/src/database"
)

// ForecastPoint is one forecast step for a city. Timestamp is the upstream
// unix time of the step.
type ForecastPoint struct {
	Timestamp   int64   `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Pressure    float64 `json:"pressure"`
}

// ForecastModel stores the latest forecast per city
type ForecastModel struct {
	DB *database.DB
}

// ReplaceForCity swaps the stored forecast for city with points
func (m *ForecastModel) ReplaceForCity(ctx context.Context, city string, points []ForecastPoint) error {
	ctx, cancel := context.WithTimeout(ctx, database.TimeoutWrite)
	defer cancel()

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin forecast update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.DB.Rebind(`DELETE FROM forecast_points WHERE city = ?`), city); err != nil {
		return fmt.Errorf("failed to clear forecast: %w", err)
	}

	insert := m.DB.Rebind(`
		INSERT INTO forecast_points (id, city, forecast_at, temperature, humidity, wind_speed, pressure, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	fetchedAt := toUnix(time.Now())
	for _, p := range points {
		if _, err := tx.ExecContext(ctx, insert, NewID(), city, p.Timestamp, p.Temperature, p.Humidity, p.WindSpeed, p.Pressure, fetchedAt); err != nil {
			return fmt.Errorf("failed to insert forecast point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit forecast: %w", err)
	}
	return nil
}

// ForCity returns the stored forecast for city ordered by time
func (m *ForecastModel) ForCity(ctx context.Context, city string) ([]ForecastPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, database.TimeoutSimpleSelect)
	defer cancel()

	rows, err := m.DB.QueryContext(ctx, m.DB.Rebind(`
		SELECT forecast_at, temperature, humidity, wind_speed, pressure
		FROM forecast_points WHERE city = ?
		ORDER BY forecast_at
	`), city)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecast: %w", err)
	}
	defer rows.Close()

	out := []ForecastPoint{}
	for rows.Next() {
		var p ForecastPoint
		if err := rows.Scan(&p.Timestamp, &p.Temperature, &p.Humidity, &p.WindSpeed, &p.Pressure); err != nil {
			return nil, fmt.Errorf("failed to scan forecast point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
