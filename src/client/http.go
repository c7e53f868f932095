package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Conditions is the current weather for one city
type Conditions struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Pressure    float64 `json:"pressure"`
}

// WeatherReport is the body of POST /weather
type WeatherReport struct {
	Data      map[string]Conditions `json:"weather_data"`
	Failed    []string              `json:"failed,omitempty"`
	FetchedAt time.Time             `json:"fetched_at"`
}

// ForecastPoint is one forecast entry
type ForecastPoint struct {
	Timestamp   int64   `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Pressure    float64 `json:"pressure"`
}

// ForecastReport is the body of POST /forecast
type ForecastReport struct {
	Data   map[string][]ForecastPoint `json:"forecast_data"`
	Failed []string                   `json:"failed,omitempty"`
}

// Alert is a stored webhook alert
type Alert struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Description string          `json:"description"`
	Payload     json.RawMessage `json:"payload"`
	ReceivedAt  time.Time       `json:"received_at"`
}

// AlertList is the body of GET /alerts
type AlertList struct {
	Alerts []Alert `json:"alerts"`
	Count  int     `json:"count"`
}

// CityList is the body of GET /api/v1/cities
type CityList struct {
	Cities    []string `json:"cities"`
	MaxCities int      `json:"max_cities_per_request"`
}

// User is the public view of an account
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// LoginResult is the body of POST /api/v1/auth/login
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// HubMessage is one websocket frame from /ws/alerts
type HubMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// HTTPClient talks to a weatherdash server
type HTTPClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// NewHTTPClient creates a client from the CLI configuration
func NewHTTPClient(cfg *CLIConfig) *HTTPClient {
	return &HTTPClient{
		BaseURL:    strings.TrimRight(cfg.Server, "/"),
		Token:      cfg.Token,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.Timeout,
		},
	}
}

// Login exchanges credentials for a session token
func (c *HTTPClient) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var res LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Logout revokes the current session
func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil)
}

// Cities returns the server's configured city list
func (c *HTTPClient) Cities(ctx context.Context) (*CityList, error) {
	var res CityList
	if err := c.do(ctx, http.MethodGet, "/api/v1/cities", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Current fetches current conditions for cities
func (c *HTTPClient) Current(ctx context.Context, cities []string) (*WeatherReport, error) {
	var res WeatherReport
	if err := c.do(ctx, http.MethodPost, "/weather", map[string][]string{"cities": cities}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Forecast fetches the forecast for cities
func (c *HTTPClient) Forecast(ctx context.Context, cities []string) (*ForecastReport, error) {
	var res ForecastReport
	if err := c.do(ctx, http.MethodPost, "/forecast", map[string][]string{"cities": cities}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Alerts lists recent alerts, newest first
func (c *HTTPClient) Alerts(ctx context.Context, limit int) (*AlertList, error) {
	path := "/alerts"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var res AlertList
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DialAlerts opens the live alert websocket
func (c *HTTPClient) DialAlerts(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.BaseURL + "/ws/alerts")
	if err != nil {
		return nil, NewUsageError(fmt.Sprintf("invalid server URL: %v", err))
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	header.Set("User-Agent", UserAgent())
	if c.Token != "" {
		header.Set("Authorization", "Bearer "+c.Token)
	}

	conn, resp, err := c.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, statusError(resp.StatusCode, nil)
		}
		return nil, NewConnectionError(fmt.Sprintf("failed to connect to %s: %v", c.BaseURL, err))
	}
	return conn, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return NewAPIError(fmt.Sprintf("failed to encode request: %v", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return NewUsageError(fmt.Sprintf("invalid request: %v", err))
	}
	req.Header.Set("User-Agent", UserAgent())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return NewConnectionError(fmt.Sprintf("failed to connect to %s: %v", c.BaseURL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return statusError(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return NewAPIError(fmt.Sprintf("failed to decode response: %v", err))
	}
	return nil
}

func statusError(status int, body []byte) *ExitError {
	var errResp struct {
		Error string `json:"error"`
	}
	message := ""
	if json.Unmarshal(body, &errResp) == nil {
		message = errResp.Error
	}
	if message == "" {
		message = fmt.Sprintf("server returned %d %s", status, http.StatusText(status))
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return NewAuthError(message)
	}
	return NewAPIError(message)
}
