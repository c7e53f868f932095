package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/apimgr/weatherdash/src/server/service"
	"github.com/apimgr/weatherdash/src/utils"
	"github.com/gin-gonic/gin"
)

// CitiesRequest is the body of POST /weather and POST /forecast
type CitiesRequest struct {
	Cities []string `json:"cities"`
}

// WeatherHandler serves current weather, forecasts and history
type WeatherHandler struct {
	Weather *service.WeatherService
	Logger  *utils.Logger
}

// NewWeatherHandler creates a new weather handler
func NewWeatherHandler(weather *service.WeatherService, logger *utils.Logger) *WeatherHandler {
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	return &WeatherHandler{Weather: weather, Logger: logger}
}

// HandleWeather handles POST /weather
func (h *WeatherHandler) HandleWeather(c *gin.Context) {
	var req CitiesRequest
	if !bindCities(c, &req) {
		return
	}

	report, err := h.Weather.Current(c.Request.Context(), req.Cities)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// HandleLatest handles GET /weather/latest
func (h *WeatherHandler) HandleLatest(c *gin.Context) {
	c.JSON(http.StatusOK, h.Weather.Latest())
}

// HandleForecast handles POST /forecast
func (h *WeatherHandler) HandleForecast(c *gin.Context) {
	var req CitiesRequest
	if !bindCities(c, &req) {
		return
	}

	report, err := h.Weather.Forecast(c.Request.Context(), req.Cities)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// HandleCities handles GET /api/v1/cities
func (h *WeatherHandler) HandleCities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"cities":                 h.Weather.Cities(),
		"max_cities_per_request": h.Weather.MaxCities(),
	})
}

// HandleHistory handles GET /api/v1/weather/history?city=&limit=
func (h *WeatherHandler) HandleHistory(c *gin.Context) {
	city := c.Query("city")
	if city == "" {
		InvalidInput(c, "city query parameter is required")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			InvalidInput(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	history, err := h.Weather.History(c.Request.Context(), city, limit)
	if err != nil {
		h.Logger.Error("Failed to load history for %s: %v", city, err)
		InternalError(c, "Failed to load history")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"city":         city,
		"observations": history,
		"count":        len(history),
	})
}

// bindCities decodes the request body. An empty body or a body without
// "cities" yields an empty list, which the service rejects.
func bindCities(c *gin.Context, req *CitiesRequest) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			RespondError(c, http.StatusRequestEntityTooLarge, ErrBadRequest, "Request body too large")
			return false
		}
		BadRequest(c, "Invalid JSON body")
		return false
	}
	return true
}

func (h *WeatherHandler) respondLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNoCities):
		// kept byte-for-byte for existing dashboard clients
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrNoCities.Error()})
	case errors.Is(err, service.ErrTooManyCities):
		InvalidInput(c, err.Error())
	default:
		h.Logger.Error("Weather lookup failed: %v", err)
		InternalError(c, "Weather lookup failed")
	}
}
