package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/apimgr/weatherdash/src/config"
	"github.com/apimgr/weatherdash/src/server/metrics"
	"github.com/apimgr/weatherdash/src/server/model"
)

// Conditions is the current weather for one city
type Conditions struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Pressure    float64 `json:"pressure"`
}

// owmMain and owmWind mirror the fields read from OpenWeather payloads
type owmMain struct {
	Temp     float64 `json:"temp"`
	Humidity float64 `json:"humidity"`
	Pressure float64 `json:"pressure"`
}

type owmWind struct {
	Speed float64 `json:"speed"`
}

type owmCurrentResponse struct {
	Main owmMain `json:"main"`
	Wind owmWind `json:"wind"`
}

type owmForecastResponse struct {
	List []struct {
		Dt   int64   `json:"dt"`
		Main owmMain `json:"main"`
		Wind owmWind `json:"wind"`
	} `json:"list"`
}

// OpenWeatherClient talks to the OpenWeather current and forecast endpoints
type OpenWeatherClient struct {
	client      *http.Client
	apiKey      string
	baseURL     string
	forecastURL string
	units       string
}

// NewOpenWeatherClient creates a client with connection pooling
func NewOpenWeatherClient(cfg config.WeatherConfig) *OpenWeatherClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	units := cfg.Units
	if units == "" {
		units = "metric"
	}

	return &OpenWeatherClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		forecastURL: cfg.ForecastURL,
		units:       units,
	}
}

// FetchCurrent returns the current conditions for city
func (c *OpenWeatherClient) FetchCurrent(ctx context.Context, city string) (*Conditions, error) {
	var data owmCurrentResponse
	if err := c.get(ctx, "current", c.baseURL, city, &data); err != nil {
		return nil, err
	}

	return &Conditions{
		Temperature: data.Main.Temp,
		Humidity:    data.Main.Humidity,
		WindSpeed:   data.Wind.Speed,
		Pressure:    data.Main.Pressure,
	}, nil
}

// FetchForecast returns every forecast point the provider lists for city
func (c *OpenWeatherClient) FetchForecast(ctx context.Context, city string) ([]model.ForecastPoint, error) {
	var data owmForecastResponse
	if err := c.get(ctx, "forecast", c.forecastURL, city, &data); err != nil {
		return nil, err
	}

	points := make([]model.ForecastPoint, 0, len(data.List))
	for _, item := range data.List {
		points = append(points, model.ForecastPoint{
			Timestamp:   item.Dt,
			Temperature: item.Main.Temp,
			Humidity:    item.Main.Humidity,
			WindSpeed:   item.Wind.Speed,
			Pressure:    item.Main.Pressure,
		})
	}
	return points, nil
}

func (c *OpenWeatherClient) get(ctx context.Context, endpoint, base, city string, out interface{}) error {
	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", c.units)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.RecordUpstream(endpoint, "error", time.Since(start))
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	metrics.RecordUpstream(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s (status %d)", ErrUnknownCity, city, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: failed to parse %s data: %v", ErrUpstream, endpoint, err)
	}
	return nil
}
