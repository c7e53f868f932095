package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/apimgr/weatherdash/src/server/service"
)

// Task names
const (
	TaskWeatherRefresh = "weather-refresh"
	TaskSessionCleanup = "session-cleanup"
	TaskHistoryPrune   = "history-prune"
)

// WeatherRefresher is the part of the weather service the refresh and
// prune tasks use
type WeatherRefresher interface {
	Refresh(ctx context.Context, cities []string) (*service.Report, error)
	Cities() []string
	MaxCities() int
	PruneHistory(ctx context.Context, retention time.Duration) (int64, error)
}

// SessionPurger removes expired sessions
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// TaskConfig holds the schedules and inputs of the built-in tasks
type TaskConfig struct {
	RefreshSchedule        string
	SessionCleanupSchedule string
	HistoryPruneSchedule   string
	HistoryRetention       time.Duration
	// TrackedCities returns the cities to refresh. When it is nil or
	// returns nothing, the selectable city list is used.
	TrackedCities func() []string
}

// RegisterTasks adds weather-refresh, session-cleanup and history-prune
func (s *Scheduler) RegisterTasks(cfg TaskConfig, weather WeatherRefresher, sessions SessionPurger) error {
	if err := s.AddTask(TaskWeatherRefresh, cfg.RefreshSchedule, RefreshWeather(weather, cfg.TrackedCities)); err != nil {
		return err
	}
	if err := s.AddTask(TaskSessionCleanup, cfg.SessionCleanupSchedule, func(ctx context.Context) error {
		n, err := sessions.PurgeExpired(ctx)
		if err != nil {
			return fmt.Errorf("failed to purge sessions: %w", err)
		}
		if n > 0 {
			s.logger.Info("Removed %d expired sessions", n)
		}
		return nil
	}); err != nil {
		return err
	}
	return s.AddTask(TaskHistoryPrune, cfg.HistoryPruneSchedule, func(ctx context.Context) error {
		n, err := weather.PruneHistory(ctx, cfg.HistoryRetention)
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
		if n > 0 {
			s.logger.Info("Pruned %d observations older than %v", n, cfg.HistoryRetention)
		}
		return nil
	})
}

// RefreshWeather fetches current weather for the tracked cities from the
// provider, bypassing the cache, in batches no larger than the per-request limit. A batch in which every
// city failed is reported as an error.
func RefreshWeather(weather WeatherRefresher, tracked func() []string) TaskFunc {
	return func(ctx context.Context) error {
		var cities []string
		if tracked != nil {
			cities = tracked()
		}
		if len(cities) == 0 {
			cities = weather.Cities()
		}
		if len(cities) == 0 {
			return nil
		}

		batch := weather.MaxCities()
		if batch <= 0 {
			batch = len(cities)
		}

		var failed []string
		for start := 0; start < len(cities); start += batch {
			end := min(start+batch, len(cities))
			report, err := weather.Refresh(ctx, cities[start:end])
			if err != nil {
				return err
			}
			failed = append(failed, report.Failed...)
		}

		if len(failed) == len(cities) {
			return fmt.Errorf("all %d cities failed to refresh", len(cities))
		}
		return nil
	}
}
