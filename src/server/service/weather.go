package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/apimgr/weatherdash/src/config"
	"github.com/apimgr/weatherdash/src/server/metrics"
	"github.com/apimgr/weatherdash/src/server/model"
	"github.com/apimgr/weatherdash/src/utils"
	"golang.org/x/sync/errgroup"
)

// Provider fetches weather from an upstream source
type Provider interface {
	FetchCurrent(ctx context.Context, city string) (*Conditions, error)
	FetchForecast(ctx context.Context, city string) ([]model.ForecastPoint, error)
}

// Report is the result of a current-weather lookup. Cities whose lookup
// failed are left out of Data and listed in Failed.
type Report struct {
	Data      map[string]Conditions `json:"weather_data"`
	Failed    []string              `json:"failed,omitempty"`
	FetchedAt time.Time             `json:"fetched_at"`
}

// ForecastReport is the result of a forecast lookup
type ForecastReport struct {
	Data   map[string][]model.ForecastPoint `json:"forecast_data"`
	Failed []string                         `json:"failed,omitempty"`
}

// WeatherService fetches, caches, records and exports weather per city
type WeatherService struct {
	provider     Provider
	cache        *CacheManager
	observations *model.ObservationModel
	forecasts    *model.ForecastModel
	logger       *utils.Logger
	units        string
	concurrency  int

	mu        sync.RWMutex
	cities    []string
	maxCities int
	latest    *Report
}

// WeatherDeps groups the collaborators of a WeatherService
type WeatherDeps struct {
	Provider     Provider
	Cache        *CacheManager
	Observations *model.ObservationModel
	Forecasts    *model.ForecastModel
	Logger       *utils.Logger
}

// NewWeatherService creates a new weather service instance
func NewWeatherService(cfg config.WeatherConfig, deps WeatherDeps) *WeatherService {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	logger := deps.Logger
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}

	cities := config.CleanCities(cfg.Cities)
	if len(cities) == 0 {
		cities = append([]string(nil), config.DefaultCities...)
	}

	return &WeatherService{
		provider:     deps.Provider,
		cache:        deps.Cache,
		observations: deps.Observations,
		forecasts:    deps.Forecasts,
		logger:       logger,
		units:        cfg.Units,
		concurrency:  concurrency,
		cities:       cities,
		maxCities:    cfg.MaxCities,
		latest:       &Report{Data: map[string]Conditions{}},
	}
}

// Cities returns the selectable city list
func (s *WeatherService) Cities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.cities...)
}

// SetCities replaces the selectable city list
func (s *WeatherService) SetCities(cities []string) {
	cleaned := config.CleanCities(cities)
	if len(cleaned) == 0 {
		return
	}
	s.mu.Lock()
	s.cities = cleaned
	s.mu.Unlock()
}

// MaxCities returns the per-request limit, zero meaning unlimited
func (s *WeatherService) MaxCities() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxCities
}

// SetMaxCities changes the per-request limit
func (s *WeatherService) SetMaxCities(n int) {
	s.mu.Lock()
	s.maxCities = n
	s.mu.Unlock()
}

// Latest returns a copy of the snapshot produced by the last Current call
func (s *WeatherService) Latest() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := make(map[string]Conditions, len(s.latest.Data))
	for k, v := range s.latest.Data {
		data[k] = v
	}
	return Report{
		Data:      data,
		Failed:    append([]string(nil), s.latest.Failed...),
		FetchedAt: s.latest.FetchedAt,
	}
}

// Current fetches current conditions for cities. A city that cannot be
// fetched is logged and omitted; the call itself only fails on invalid
// input. The returned report replaces the latest snapshot.
func (s *WeatherService) Current(ctx context.Context, cities []string) (*Report, error) {
	return s.collect(ctx, cities, false)
}

// Refresh is Current without the cache read: every city goes to the
// provider and the cache is rewritten. Used by the scheduled refresh so a
// cache ttl equal to the refresh interval cannot hide a run.
func (s *WeatherService) Refresh(ctx context.Context, cities []string) (*Report, error) {
	return s.collect(ctx, cities, true)
}

func (s *WeatherService) collect(ctx context.Context, cities []string, skipCache bool) (*Report, error) {
	cities, err := s.validate(cities)
	if err != nil {
		return nil, err
	}

	results := make([]*Conditions, len(cities))
	fresh := make([]bool, len(cities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, city := range cities {
		i, city := i, city
		g.Go(func() error {
			cond, wasFresh, err := s.current(gctx, city, skipCache)
			if err != nil {
				s.logger.Warn("Failed to fetch weather for %s: %v", city, err)
				return nil
			}
			results[i] = cond
			fresh[i] = wasFresh
			return nil
		})
	}
	g.Wait()

	report := &Report{
		Data:      make(map[string]Conditions, len(cities)),
		FetchedAt: time.Now().UTC(),
	}
	for i, city := range cities {
		cond := results[i]
		if cond == nil {
			report.Failed = append(report.Failed, city)
			continue
		}

		report.Data[city] = *cond
		metrics.RecordWeather(city, cond.Temperature, cond.Humidity, cond.WindSpeed, cond.Pressure)
		s.logger.Debug("Updated metrics for %s: Temp=%v, Humidity=%v, Wind=%v, Pressure=%v",
			city, cond.Temperature, cond.Humidity, cond.WindSpeed, cond.Pressure)

		if fresh[i] && s.observations != nil {
			obs := &model.Observation{
				City:        city,
				Temperature: cond.Temperature,
				Humidity:    cond.Humidity,
				WindSpeed:   cond.WindSpeed,
				Pressure:    cond.Pressure,
				ObservedAt:  report.FetchedAt,
			}
			if err := s.observations.Insert(ctx, obs); err != nil {
				s.logger.Error("Failed to record observation for %s: %v", city, err)
			}
		}
	}

	s.mu.Lock()
	s.latest = report
	s.mu.Unlock()

	return report, nil
}

// current returns conditions for one city and whether they came from the
// provider rather than the cache. skipCache forces a provider call.
func (s *WeatherService) current(ctx context.Context, city string, skipCache bool) (*Conditions, bool, error) {
	key := s.cacheKey("current", city)

	if s.cache != nil && !skipCache {
		var cached Conditions
		if s.cache.Get(ctx, key, &cached) {
			return &cached, false, nil
		}
	}

	cond, err := s.provider.FetchCurrent(ctx, city)
	if err != nil {
		return nil, false, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cond); err != nil {
			s.logger.Warn("Failed to cache weather for %s: %v", city, err)
		}
	}
	return cond, true, nil
}

// Forecast fetches the forecast for cities, exports it as gauges and
// stores it. Failed cities are omitted, as with Current.
func (s *WeatherService) Forecast(ctx context.Context, cities []string) (*ForecastReport, error) {
	cities, err := s.validate(cities)
	if err != nil {
		return nil, err
	}

	results := make([][]model.ForecastPoint, len(cities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, city := range cities {
		i, city := i, city
		g.Go(func() error {
			points, err := s.forecast(gctx, city)
			if err != nil {
				s.logger.Warn("Failed to fetch forecast for %s: %v", city, err)
				return nil
			}
			results[i] = points
			return nil
		})
	}
	g.Wait()

	report := &ForecastReport{Data: make(map[string][]model.ForecastPoint, len(cities))}
	for i, city := range cities {
		points := results[i]
		if points == nil {
			report.Failed = append(report.Failed, city)
			continue
		}

		metrics.ResetForecast(city)
		for _, p := range points {
			metrics.RecordForecast(city, strconv.FormatInt(p.Timestamp, 10), p.Temperature, p.Humidity, p.WindSpeed, p.Pressure)
		}

		if s.forecasts != nil {
			if err := s.forecasts.ReplaceForCity(ctx, city, points); err != nil {
				s.logger.Error("Failed to store forecast for %s: %v", city, err)
			}
		}

		report.Data[city] = points
		s.logger.Debug("Updated forecast for %s (%d points)", city, len(points))
	}

	return report, nil
}

func (s *WeatherService) forecast(ctx context.Context, city string) ([]model.ForecastPoint, error) {
	key := s.cacheKey("forecast", city)

	if s.cache != nil {
		var cached []model.ForecastPoint
		if s.cache.Get(ctx, key, &cached) && cached != nil {
			return cached, nil
		}
	}

	points, err := s.provider.FetchForecast(ctx, city)
	if err != nil {
		return nil, err
	}
	if points == nil {
		points = []model.ForecastPoint{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, points); err != nil {
			s.logger.Warn("Failed to cache forecast for %s: %v", city, err)
		}
	}
	return points, nil
}

// History returns stored observations for city, newest first
func (s *WeatherService) History(ctx context.Context, city string, limit int) ([]model.Observation, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, ErrNoCities
	}
	if s.observations == nil {
		return []model.Observation{}, nil
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.observations.History(ctx, city, limit)
}

// PruneHistory deletes observations older than retention
func (s *WeatherService) PruneHistory(ctx context.Context, retention time.Duration) (int64, error) {
	if s.observations == nil || retention <= 0 {
		return 0, nil
	}
	return s.observations.Prune(ctx, time.Now().Add(-retention))
}

func (s *WeatherService) validate(cities []string) ([]string, error) {
	cities = config.CleanCities(cities)
	if len(cities) == 0 {
		return nil, ErrNoCities
	}
	if max := s.MaxCities(); max > 0 && len(cities) > max {
		return nil, fmt.Errorf("%w: %d requested, limit is %d", ErrTooManyCities, len(cities), max)
	}
	if s.provider == nil {
		return nil, errors.New("weather provider not configured")
	}
	return cities, nil
}

func (s *WeatherService) cacheKey(kind, city string) string {
	return kind + ":" + s.units + ":" + strings.ToLower(city)
}
