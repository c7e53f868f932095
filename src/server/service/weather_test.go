package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apimgr/weatherdash/src/config"
	"github.com/apimgr/weatherdash/src/database"
	"github.com/apimgr/weatherdash/src/server/metrics"
	"github.com/apimgr/weatherdash/src/server/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeUpstream serves OpenWeather-shaped responses. "Nowhere" is unknown,
// "Broken" fails with 500, every other city has temperature len(city).
type fakeUpstream struct {
	*httptest.Server
	calls atomic.Int32
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		q := r.URL.Query()
		city := q.Get("q")

		if q.Get("appid") != "test-key" || q.Get("units") != "metric" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch city {
		case "Nowhere":
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"cod":"404","message":"city not found"}`)
			return
		case "Broken":
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		temp := float64(len(city))
		switch r.URL.Path {
		case "/weather":
			fmt.Fprintf(w, `{"main":{"temp":%v,"humidity":50,"pressure":1013},"wind":{"speed":3.5}}`, temp)
		case "/forecast":
			fmt.Fprintf(w, `{"list":[
				{"dt":1000,"main":{"temp":%v,"humidity":60,"pressure":1010},"wind":{"speed":1}},
				{"dt":2000,"main":{"temp":%v,"humidity":65,"pressure":1011},"wind":{"speed":2}}
			]}`, temp, temp+1)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeUpstream) weatherConfig() config.WeatherConfig {
	return config.WeatherConfig{
		APIKey:      "test-key",
		BaseURL:     f.URL + "/weather",
		ForecastURL: f.URL + "/forecast",
		Units:       "metric",
		Timeout:     2 * time.Second,
		CacheTTL:    time.Minute,
		MaxCities:   5,
		Concurrency: 2,
	}
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestWeatherService(t *testing.T, up *fakeUpstream) (*WeatherService, *database.DB) {
	t.Helper()
	db := newTestDB(t)
	cfg := up.weatherConfig()
	svc := NewWeatherService(cfg, WeatherDeps{
		Provider:     NewOpenWeatherClient(cfg),
		Cache:        NewCacheManager(context.Background(), cfg.CacheTTL, config.CacheConfig{}),
		Observations: &model.ObservationModel{DB: db},
		Forecasts:    &model.ForecastModel{DB: db},
	})
	return svc, db
}

func TestWeatherService_Current(t *testing.T) {
	up := newFakeUpstream(t)
	svc, _ := newTestWeatherService(t, up)
	ctx := context.Background()

	report, err := svc.Current(ctx, []string{"London", " london ", "Nowhere", "Broken", "Tokyo"})
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}

	if len(report.Data) != 2 {
		t.Fatalf("Current() returned %d cities, want 2: %+v", len(report.Data), report.Data)
	}
	london := report.Data["London"]
	if london.Temperature != 6 || london.Humidity != 50 || london.WindSpeed != 3.5 || london.Pressure != 1013 {
		t.Errorf("London = %+v", london)
	}
	if fmt.Sprint(report.Failed) != "[Nowhere Broken]" {
		t.Errorf("Failed = %v, want [Nowhere Broken]", report.Failed)
	}

	if got := testutil.ToFloat64(metrics.WeatherTemperature.WithLabelValues("Tokyo")); got != 5 {
		t.Errorf("weather_temperature{Tokyo} = %v, want 5", got)
	}

	latest := svc.Latest()
	if len(latest.Data) != 2 {
		t.Errorf("Latest() has %d cities, want 2", len(latest.Data))
	}

	hist, err := svc.History(ctx, "London", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(hist) != 1 {
		t.Errorf("History(London) = %d rows, want 1", len(hist))
	}
}

func TestWeatherService_CurrentReplacesSnapshot(t *testing.T) {
	up := newFakeUpstream(t)
	svc, _ := newTestWeatherService(t, up)
	ctx := context.Background()

	if _, err := svc.Current(ctx, []string{"London", "Tokyo"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Current(ctx, []string{"Dubai"}); err != nil {
		t.Fatal(err)
	}

	latest := svc.Latest()
	if _, ok := latest.Data["London"]; ok || len(latest.Data) != 1 {
		t.Errorf("Latest() = %+v, want only Dubai", latest.Data)
	}
}

func TestWeatherService_CurrentUsesCache(t *testing.T) {
	up := newFakeUpstream(t)
	svc, _ := newTestWeatherService(t, up)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Current(ctx, []string{"Sydney"}); err != nil {
			t.Fatal(err)
		}
	}
	if n := up.calls.Load(); n != 1 {
		t.Errorf("upstream called %d times, want 1", n)
	}

	hist, _ := svc.History(ctx, "Sydney", 10)
	if len(hist) != 1 {
		t.Errorf("cached reads recorded %d observations, want 1", len(hist))
	}
}

func TestWeatherService_RefreshSkipsCacheRead(t *testing.T) {
	up := newFakeUpstream(t)
	svc, _ := newTestWeatherService(t, up)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Refresh(ctx, []string{"Sydney"}); err != nil {
			t.Fatal(err)
		}
	}
	if n := up.calls.Load(); n != 2 {
		t.Errorf("upstream called %d times, want 2", n)
	}

	if _, err := svc.Current(ctx, []string{"Sydney"}); err != nil {
		t.Fatal(err)
	}
	if n := up.calls.Load(); n != 2 {
		t.Errorf("Current() after Refresh missed the cache, calls = %d", n)
	}

	hist, _ := svc.History(ctx, "Sydney", 10)
	if len(hist) != 2 {
		t.Errorf("recorded %d observations, want 2", len(hist))
	}
}

func TestWeatherService_Validation(t *testing.T) {
	up := newFakeUpstream(t)
	svc, _ := newTestWeatherService(t, up)
	ctx := context.Background()

	tests := []struct {
		name   string
		cities []string
		want   error
	}{
		{"nil", nil, ErrNoCities},
		{"blank", []string{" ", ""}, ErrNoCities},
		{"too many", []string{"a", "b", "c", "d", "e", "f"}, ErrTooManyCities},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Current(ctx, tt.cities); !errors.Is(err, tt.want) {
				t.Errorf("Current() error = %v, want %v", err, tt.want)
			}
			if _, err := svc.Forecast(ctx, tt.cities); !errors.Is(err, tt.want) {
				t.Errorf("Forecast() error = %v, want %v", err, tt.want)
			}
		})
	}

	svc.SetMaxCities(0)
	if _, err := svc.Current(ctx, []string{"a", "b", "c", "d", "e", "f"}); err != nil {
		t.Errorf("unlimited Current() error = %v", err)
	}
}

func TestWeatherService_Forecast(t *testing.T) {
	up := newFakeUpstream(t)
	svc, db := newTestWeatherService(t, up)
	ctx := context.Background()

	report, err := svc.Forecast(ctx, []string{"Mumbai", "Nowhere"})
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}

	points := report.Data["Mumbai"]
	if len(points) != 2 || points[0].Timestamp != 1000 || points[1].Temperature != 7 {
		t.Errorf("Mumbai forecast = %+v", points)
	}
	if len(report.Failed) != 1 || report.Failed[0] != "Nowhere" {
		t.Errorf("Failed = %v", report.Failed)
	}

	if got := testutil.ToFloat64(metrics.ForecastHumidity.WithLabelValues("Mumbai", "2000")); got != 65 {
		t.Errorf("forecast_humidity{Mumbai,2000} = %v, want 65", got)
	}

	stored, err := (&model.ForecastModel{DB: db}).ForCity(ctx, "Mumbai")
	if err != nil || len(stored) != 2 {
		t.Errorf("stored forecast = %d points, %v", len(stored), err)
	}

	body, _ := json.Marshal(report)
	var decoded struct {
		ForecastData map[string][]map[string]float64 `json:"forecast_data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unexpected report shape: %s", body)
	}
	if decoded.ForecastData["Mumbai"][0]["wind_speed"] != 1 {
		t.Errorf("report JSON = %s", body)
	}
}

func TestWeatherService_Cities(t *testing.T) {
	svc := NewWeatherService(config.WeatherConfig{}, WeatherDeps{})

	if got := svc.Cities(); len(got) != len(config.DefaultCities) || got[0] != "New York" {
		t.Errorf("Cities() = %v", got)
	}

	svc.SetCities([]string{"Paris", "paris", "Rome"})
	if got := svc.Cities(); fmt.Sprint(got) != "[Paris Rome]" {
		t.Errorf("Cities() after SetCities = %v", got)
	}

	svc.SetCities(nil)
	if got := svc.Cities(); len(got) != 2 {
		t.Errorf("SetCities(nil) should keep the current list, got %v", got)
	}
}

func TestOpenWeatherClient_Errors(t *testing.T) {
	up := newFakeUpstream(t)
	client := NewOpenWeatherClient(up.weatherConfig())
	ctx := context.Background()

	if _, err := client.FetchCurrent(ctx, "Nowhere"); !errors.Is(err, ErrUnknownCity) {
		t.Errorf("FetchCurrent(Nowhere) error = %v, want ErrUnknownCity", err)
	}
	if _, err := client.FetchCurrent(ctx, "Broken"); !errors.Is(err, ErrUpstream) {
		t.Errorf("FetchCurrent(Broken) error = %v, want ErrUpstream", err)
	}

	cfg := up.weatherConfig()
	cfg.APIKey = "wrong"
	if _, err := NewOpenWeatherClient(cfg).FetchCurrent(ctx, "London"); !errors.Is(err, ErrUpstream) {
		t.Errorf("bad key error = %v, want ErrUpstream", err)
	}

	cond, err := client.FetchCurrent(ctx, "São Paulo")
	if err != nil {
		t.Fatalf("FetchCurrent(São Paulo) error = %v", err)
	}
	if cond.Temperature != float64(len("São Paulo")) {
		t.Errorf("query not encoded correctly, temperature = %v", cond.Temperature)
	}
}

func TestCacheManager_LocalTier(t *testing.T) {
	ctx := context.Background()
	cm := NewCacheManager(ctx, time.Minute, config.CacheConfig{})
	defer cm.Close()

	if cm.RedisEnabled() {
		t.Fatal("redis should be disabled")
	}

	var got Conditions
	if cm.Get(ctx, "k", &got) {
		t.Fatal("Get() on empty cache reported a hit")
	}

	want := Conditions{Temperature: 12.5, Humidity: 40}
	if err := cm.Set(ctx, "k", want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !cm.Get(ctx, "k", &got) || got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}

	cm.Delete(ctx, "k")
	if cm.Get(ctx, "k", &got) {
		t.Error("Get() after Delete reported a hit")
	}
}

func TestCacheManager_RedisUnavailable(t *testing.T) {
	ctx := context.Background()
	// nothing listens on port 1
	cm := NewCacheManager(ctx, time.Minute, config.CacheConfig{Enabled: true, Addr: "127.0.0.1:1"})
	defer cm.Close()

	if cm.RedisEnabled() {
		t.Error("redis should disable itself when the ping fails")
	}
	if err := cm.Ping(ctx); err != nil {
		t.Errorf("Ping() without redis error = %v", err)
	}
}
