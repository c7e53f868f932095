package server

import (
	"net/http"
	"slices"
	"time"

	"github.com/apimgr/weatherdash/src/server/handler"
	"github.com/apimgr/weatherdash/src/server/metrics"
	"github.com/apimgr/weatherdash/src/server/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine with every route mounted
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	logger := d.Logger

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Warn("Invalid trusted proxies %v: %v", cfg.Server.TrustedProxies, err)
	}

	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLogger(logger))
	r.Use(gin.Recovery())
	// websocket upgrades cannot be wrapped; promhttp compresses on its own
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws/", "/metrics"})))
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.BodySizeLimitMiddleware(middleware.DefaultMaxBodySize))
	r.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))
	r.Use(middleware.GlobalRateLimitMiddleware())

	cookie := cfg.Auth.CookieName
	weatherAuth := middleware.OptionalAuth(d.Auth, cookie)
	if cfg.Server.RequireAuth {
		weatherAuth = middleware.RequireAuth(d.Auth, cookie)
	}
	requireAuth := middleware.RequireAuth(d.Auth, cookie)

	weatherHandler := handler.NewWeatherHandler(d.Weather, logger)
	alertHandler := handler.NewAlertHandler(d.Alerts, d.Hub, cfg.Server.AlertToken, cfg.Server.CORSOrigins, logger)
	authHandler := handler.NewAuthHandler(d.Auth, cookie, logger)
	healthHandler := &handler.HealthHandler{
		DB:      d.DB,
		Cache:   d.Cache,
		Hub:     d.Hub,
		Version: d.Version,
		Started: time.Now(),
	}

	r.GET("/healthz", healthHandler.HandleHealthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.POST("/weather", weatherAuth, weatherHandler.HandleWeather)
	r.GET("/weather/latest", weatherAuth, weatherHandler.HandleLatest)
	r.POST("/forecast", weatherAuth, weatherHandler.HandleForecast)

	r.POST("/alerts", alertHandler.HandleWebhook)
	r.GET("/alerts", alertHandler.HandleList)
	r.GET("/ws/alerts", alertHandler.HandleWebSocket)

	api := r.Group("/api/v1")
	{
		api.GET("/cities", weatherHandler.HandleCities)
		api.GET("/weather/history", weatherAuth, weatherHandler.HandleHistory)

		auth := api.Group("/auth")
		auth.Use(middleware.AuthRateLimitMiddleware())
		{
			auth.POST("/register", authHandler.HandleRegister)
			auth.POST("/login", authHandler.HandleLogin)
			auth.POST("/logout", authHandler.HandleLogout)
			auth.GET("/me", requireAuth, authHandler.HandleMe)
		}

		if d.Scheduler != nil {
			schedulerHandler := handler.NewSchedulerHandler(d.Scheduler)
			tasks := api.Group("/scheduler/tasks", requireAuth, middleware.RequireAdmin(cfg.Server.AdminEmails))
			{
				tasks.GET("", schedulerHandler.GetAllTasks)
				tasks.POST("/:name/run", schedulerHandler.TriggerTask)
				tasks.POST("/:name/enable", schedulerHandler.EnableTask)
				tasks.POST("/:name/disable", schedulerHandler.DisableTask)
			}
		}
	}

	r.NoRoute(func(c *gin.Context) {
		handler.RespondError(c, http.StatusNotFound, handler.ErrNotFound, "Not found")
	})

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", middleware.HeaderXRequestID},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	// cookies only travel to explicitly listed origins
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
