package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apimgr/weatherdash/src/config"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(*Options) bool
	}{
		{"empty", nil, false, func(o *Options) bool { return !o.ShowHelp && o.Port == 0 }},
		{"short help", []string{"-h"}, false, func(o *Options) bool { return o.ShowHelp }},
		{"short version", []string{"-v"}, false, func(o *Options) bool { return o.ShowVersion }},
		{"port and mode", []string{"--port", "8080", "--mode", "development"}, false, func(o *Options) bool {
			return o.Port == 8080 && o.Mode == "development"
		}},
		{"config", []string{"--config=/etc/w.yml", "--debug"}, false, func(o *Options) bool {
			return o.ConfigPath == "/etc/w.yml" && o.Debug
		}},
		{"unknown flag", []string{"--nope"}, true, nil},
		{"stray argument", []string{"serve"}, true, nil},
		{"bad port", []string{"--port", "70000"}, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := Parse(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(opts) {
				t.Errorf("Parse() = %+v", opts)
			}
		})
	}
}

func TestOptions_Apply(t *testing.T) {
	cfg := config.Default()
	(&Options{Port: 9000, Debug: true}).Apply(cfg)

	if cfg.Server.Port != 9000 || !cfg.Logging.Debug {
		t.Errorf("Apply() port=%d debug=%v", cfg.Server.Port, cfg.Logging.Debug)
	}
	if cfg.Server.Mode != "production" || cfg.Server.Address != "0.0.0.0" {
		t.Error("Apply() overwrote values for unset flags")
	}
}

func TestGenerateServerYML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "server.yml")

	if err := GenerateServerYML(path); err != nil {
		t.Fatalf("GenerateServerYML() error = %v", err)
	}
	if err := GenerateServerYML(path); err == nil {
		t.Error("second GenerateServerYML() should refuse to overwrite")
	}

	t.Setenv("WEATHER_API_KEY", "from-env")
	t.Setenv("WEATHERDASH_JWT_SECRET", strings.Repeat("x", 32))
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(generated) error = %v", err)
	}
	if cfg.Weather.CacheTTL != 10*time.Minute || len(cfg.Weather.Cities) != 6 {
		t.Errorf("generated config round trip: ttl=%v cities=%v", cfg.Weather.CacheTTL, cfg.Weather.Cities)
	}

	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestStatusCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"OK","version":"1.0.0","uptime":"5m0s","checks":{"database":"ok","cache":"memory"},"websocket_clients":2}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	cmd := &StatusCommand{URL: srv.URL + "/healthz", Client: srv.Client(), Out: &out}
	if err := cmd.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, want := range []string{"Status:     OK", "Version:    1.0.0", "Cache:      memory", "WebSockets: 2"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	srv.Close()
	if err := cmd.Execute(context.Background()); err != nil {
		t.Errorf("Execute() against stopped server error = %v", err)
	}
	if !strings.Contains(out.String(), "Stopped") {
		t.Errorf("output = %s", out.String())
	}
}

func TestNewStatusCommand(t *testing.T) {
	cfg := config.Default()
	if got := NewStatusCommand(cfg, nil).URL; got != "http://127.0.0.1:5000/healthz" {
		t.Errorf("URL = %s", got)
	}
	cfg.Server.Address = "::1"
	if got := NewStatusCommand(cfg, nil).URL; got != "http://[::1]:5000/healthz" {
		t.Errorf("URL = %s", got)
	}
}
