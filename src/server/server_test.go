package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/apimgr/weatherdash/src/config"
	"github.com/apimgr/weatherdash/src/database"
	"github.com/apimgr/weatherdash/src/scheduler"
	"github.com/apimgr/weatherdash/src/server/model"
	"github.com/apimgr/weatherdash/src/server/service"
	"github.com/apimgr/weatherdash/src/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestDeps(t *testing.T, mutate func(*config.Config)) Deps {
	t.Helper()
	ctx := context.Background()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"main":{"temp":21.5,"humidity":30,"pressure":1008},"wind":{"speed":5}}`)
	}))
	t.Cleanup(upstream.Close)

	cfg := config.Default()
	cfg.Server.Address = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Weather.APIKey = "k"
	cfg.Weather.BaseURL = upstream.URL
	cfg.Weather.ForecastURL = upstream.URL
	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	if mutate != nil {
		mutate(cfg)
	}

	db, err := database.OpenMemory(ctx)
	if err != nil {
		t.Fatal(err)
	}

	logger := utils.NewDiscardLogger()
	hub := service.NewHub(logger)
	cache := service.NewCacheManager(ctx, cfg.Weather.CacheTTL, cfg.Cache)
	weather := service.NewWeatherService(cfg.Weather, service.WeatherDeps{
		Provider:     service.NewOpenWeatherClient(cfg.Weather),
		Cache:        cache,
		Observations: &model.ObservationModel{DB: db},
		Forecasts:    &model.ForecastModel{DB: db},
		Logger:       logger,
	})
	auth := service.NewAuthService(cfg.Auth, &model.UserModel{DB: db}, &model.SessionModel{DB: db}, logger)
	auth.SetArgon2Params(utils.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16})

	return Deps{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Cache:     cache,
		Hub:       hub,
		Weather:   weather,
		Alerts:    service.NewAlertService(&model.AlertModel{DB: db}, hub, logger),
		Auth:      auth,
		Scheduler: scheduler.NewScheduler(logger),
		Version:   "test",
	}
}

func TestRouter_MiddlewareChain(t *testing.T) {
	d := newTestDeps(t, nil)
	t.Cleanup(func() { d.DB.Close() })
	r := NewRouter(d)

	req := httptest.NewRequest("POST", "/weather", strings.NewReader(`{"cities":["Oslo"]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://dash.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("POST /weather = %d %s", w.Code, w.Body)
	}
	for _, h := range []string{"X-Request-ID", "X-Content-Type-Options", "Access-Control-Allow-Origin", "X-RateLimit-Limit"} {
		if w.Header().Get(h) == "" {
			t.Errorf("missing %s header", h)
		}
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(w.Body.String(), `weather_temperature{city="Oslo"} 21.5`) {
		t.Error("metrics output missing weather_temperature for Oslo")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/nope", nil))
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"code":"NOT_FOUND"`) {
		t.Errorf("unknown route = %d %s", w.Code, w.Body)
	}
}

func TestRouter_Gzip(t *testing.T) {
	d := newTestDeps(t, nil)
	t.Cleanup(func() { d.DB.Close() })
	r := NewRouter(d)

	req := httptest.NewRequest("GET", "/api/v1/cities", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", w.Header().Get("Content-Encoding"))
	}
}

func TestRouter_RequireAuth(t *testing.T) {
	d := newTestDeps(t, func(c *config.Config) { c.Server.RequireAuth = true })
	t.Cleanup(func() { d.DB.Close() })
	r := NewRouter(d)

	post := func(token string) int {
		req := httptest.NewRequest("POST", "/weather", strings.NewReader(`{"cities":["Oslo"]}`))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := post(""); code != http.StatusUnauthorized {
		t.Errorf("anonymous POST /weather = %d, want 401", code)
	}

	ctx := context.Background()
	if _, err := d.Auth.Register(ctx, "ana@example.com", "password1", "password1"); err != nil {
		t.Fatal(err)
	}
	res, err := d.Auth.Login(ctx, "ana@example.com", "password1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if code := post(res.Token); code != http.StatusOK {
		t.Errorf("authenticated POST /weather = %d, want 200", code)
	}

	// the city list stays public
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/cities", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /api/v1/cities = %d", w.Code)
	}
}

func TestRouter_SchedulerRequiresAdmin(t *testing.T) {
	d := newTestDeps(t, func(c *config.Config) { c.Server.AdminEmails = []string{"admin@example.com"} })
	t.Cleanup(func() { d.DB.Close() })
	r := NewRouter(d)

	ctx := context.Background()
	login := func(email string) string {
		if _, err := d.Auth.Register(ctx, email, "password1", "password1"); err != nil {
			t.Fatal(err)
		}
		res, err := d.Auth.Login(ctx, email, "password1", "", "")
		if err != nil {
			t.Fatal(err)
		}
		return res.Token
	}

	tests := []struct {
		name     string
		token    string
		wantCode int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"regular user", login("ana@example.com"), http.StatusForbidden},
		{"admin", login("admin@example.com"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, route := range []struct{ method, path string }{
				{"GET", "/api/v1/scheduler/tasks"},
				{"POST", "/api/v1/scheduler/tasks/none/disable"},
			} {
				req := httptest.NewRequest(route.method, route.path, nil)
				if tt.token != "" {
					req.Header.Set("Authorization", "Bearer "+tt.token)
				}
				w := httptest.NewRecorder()
				r.ServeHTTP(w, req)
				want := tt.wantCode
				if want == http.StatusOK && route.method == "POST" {
					// unknown task, but past the gate
					want = http.StatusNotFound
				}
				if w.Code != want {
					t.Errorf("%s %s = %d, want %d", route.method, route.path, w.Code, want)
				}
			}
		})
	}
}

func TestServer_AlertsOverWebSocket(t *testing.T) {
	d := newTestDeps(t, nil)
	srv := New(d)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	waitReady(t, base+"/healthz")

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/alerts", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for d.Hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Post(base+"/alerts", "application/json", strings.NewReader(`{"status":"firing","alerts":[{"annotations":{"description":"Heat"}}]}`))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != `{"status":"received"}` {
		t.Errorf("webhook body = %s", body)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Type != "new_alert" || !strings.Contains(string(msg.Data), `"Heat"`) {
		t.Errorf("message = %s %s", msg.Type, msg.Data)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}

	if err := d.DB.Ping(); err == nil {
		t.Error("database should be closed after shutdown")
	}
}

func waitReady(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("%s never became ready", url)
}
