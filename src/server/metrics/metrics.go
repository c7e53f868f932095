// Package metrics holds the Prometheus collectors exported on /metrics.
//
// The per-city weather and forecast gauges keep the unprefixed names
// dashboards already query (weather_temperature, forecast_humidity, ...).
// Everything else is prefixed weatherdash_.
package metrics

import (
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the dedicated registry served by Handler.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// Current conditions, one series per city
	WeatherTemperature = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weather_temperature",
			Help: "Current temperature in the configured units",
		},
		[]string{"city"},
	)

	WeatherHumidity = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weather_humidity",
			Help: "Current relative humidity in percent",
		},
		[]string{"city"},
	)

	WeatherWindSpeed = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weather_wind_speed",
			Help: "Current wind speed",
		},
		[]string{"city"},
	)

	WeatherPressure = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weather_pressure",
			Help: "Current atmospheric pressure in hPa",
		},
		[]string{"city"},
	)

	// Forecast points, one series per city and forecast timestamp
	ForecastTemperature = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forecast_temperature",
			Help: "Forecast temperature",
		},
		[]string{"city", "timestamp"},
	)

	ForecastHumidity = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forecast_humidity",
			Help: "Forecast relative humidity in percent",
		},
		[]string{"city", "timestamp"},
	)

	ForecastWindSpeed = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forecast_wind_speed",
			Help: "Forecast wind speed",
		},
		[]string{"city", "timestamp"},
	)

	ForecastPressure = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forecast_pressure",
			Help: "Forecast atmospheric pressure in hPa",
		},
		[]string{"city", "timestamp"},
	)

	// HTTP metrics
	HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherdash_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherdash_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPActiveRequests = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "weatherdash_http_active_requests",
			Help: "Number of active HTTP requests",
		},
	)

	// Upstream (OpenWeather) metrics
	UpstreamRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherdash_upstream_requests_total",
			Help: "Requests made to the weather provider",
		},
		[]string{"endpoint", "status"},
	)

	UpstreamDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherdash_upstream_request_duration_seconds",
			Help:    "Weather provider request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Cache metrics
	CacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherdash_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherdash_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheSize = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weatherdash_cache_size",
			Help: "Current cache size (items)",
		},
		[]string{"cache"},
	)

	// Alerts and websocket
	AlertsReceived = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherdash_alerts_received_total",
			Help: "Alert webhooks received, by alert status",
		},
		[]string{"status"},
	)

	WebSocketClients = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "weatherdash_websocket_clients",
			Help: "Connected alert websocket clients",
		},
	)

	WebSocketDropped = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherdash_websocket_dropped_total",
			Help: "Clients disconnected because their send buffer was full",
		},
	)

	// Scheduler metrics
	SchedulerTasksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherdash_scheduler_tasks_total",
			Help: "Total number of scheduled tasks executed",
		},
		[]string{"task", "status"},
	)

	SchedulerTaskDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherdash_scheduler_task_duration_seconds",
			Help:    "Scheduled task duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
		},
		[]string{"task"},
	)

	SchedulerLastRun = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weatherdash_scheduler_last_run_timestamp",
			Help: "Timestamp of last task run",
		},
		[]string{"task"},
	)

	// Authentication metrics
	AuthAttempts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherdash_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"method", "status"},
	)

	AuthSessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "weatherdash_auth_sessions_active",
			Help: "Number of active sessions",
		},
	)

	UsersTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "weatherdash_users_total",
			Help: "Total number of registered users",
		},
	)

	// Application info
	AppInfo = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weatherdash_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "build_date", "go_version"},
	)

	AppStartTime = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "weatherdash_app_start_timestamp",
			Help: "Application start timestamp",
		},
	)
)

var initOnce sync.Once

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Init records build information. Safe to call more than once.
func Init(version, commit, buildDate string) {
	initOnce.Do(func() {
		AppInfo.WithLabelValues(version, commit, buildDate, runtime.Version()).Set(1)
		AppStartTime.SetToCurrentTime()
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// RecordWeather sets the current-conditions gauges for city.
func RecordWeather(city string, temperature, humidity, windSpeed, pressure float64) {
	WeatherTemperature.WithLabelValues(city).Set(temperature)
	WeatherHumidity.WithLabelValues(city).Set(humidity)
	WeatherWindSpeed.WithLabelValues(city).Set(windSpeed)
	WeatherPressure.WithLabelValues(city).Set(pressure)
}

// RecordForecast sets the forecast gauges for one city and forecast time.
func RecordForecast(city, timestamp string, temperature, humidity, windSpeed, pressure float64) {
	ForecastTemperature.WithLabelValues(city, timestamp).Set(temperature)
	ForecastHumidity.WithLabelValues(city, timestamp).Set(humidity)
	ForecastWindSpeed.WithLabelValues(city, timestamp).Set(windSpeed)
	ForecastPressure.WithLabelValues(city, timestamp).Set(pressure)
}

// ResetForecast drops every forecast series for city so stale timestamps
// do not linger after a refresh.
func ResetForecast(city string) {
	labels := prometheus.Labels{"city": city}
	ForecastTemperature.DeletePartialMatch(labels)
	ForecastHumidity.DeletePartialMatch(labels)
	ForecastWindSpeed.DeletePartialMatch(labels)
	ForecastPressure.DeletePartialMatch(labels)
}

// RecordUpstream records one call to the weather provider
func RecordUpstream(endpoint, status string, duration time.Duration) {
	UpstreamRequests.WithLabelValues(endpoint, status).Inc()
	UpstreamDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit
func RecordCacheHit(cache string) {
	CacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(cache string) {
	CacheMisses.WithLabelValues(cache).Inc()
}

// UpdateCacheSize updates cache size metrics
func UpdateCacheSize(cache string, items int) {
	CacheSize.WithLabelValues(cache).Set(float64(items))
}

// RecordAlert counts a received alert webhook
func RecordAlert(status string) {
	AlertsReceived.WithLabelValues(AlertStatusLabel(status)).Inc()
}

// AlertStatusLabel maps a webhook status onto the fixed label set
// firing, resolved, unknown (empty) and other
func AlertStatusLabel(status string) string {
	switch s := strings.ToLower(strings.TrimSpace(status)); s {
	case "firing", "resolved":
		return s
	case "":
		return "unknown"
	default:
		return "other"
	}
}

// RecordSchedulerTask records scheduler task execution
func RecordSchedulerTask(task, status string, duration time.Duration) {
	SchedulerTasksTotal.WithLabelValues(task, status).Inc()
	SchedulerTaskDuration.WithLabelValues(task).Observe(duration.Seconds())
	SchedulerLastRun.WithLabelValues(task).SetToCurrentTime()
}

// RecordAuthAttempt records an authentication attempt
func RecordAuthAttempt(method, status string) {
	AuthAttempts.WithLabelValues(method, status).Inc()
}
