package mode

import (
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/apimgr/weatherdash/src/config"
)

func TestSet(t *testing.T) {
	tests := []struct {
		input    string
		expected Mode
	}{
		{"development", Development},
		{"dev", Development},
		{" DEV ", Development},
		{"production", Production},
		{"prod", Production},
		{"anything", Production},
	}

	for _, tt := range tests {
		Set(tt.input)
		if Current() != tt.expected {
			t.Errorf("Set(%q): got %v, want %v", tt.input, Current(), tt.expected)
		}
	}
}

func TestString(t *testing.T) {
	Set("development")
	SetDebug(true)
	defer SetDebug(false)

	if got := String(); got != "development [debugging]" {
		t.Errorf("String() = %q", got)
	}
}

func TestFromConfig(t *testing.T) {
	t.Setenv("MODE", "")
	t.Setenv("DEBUG", "")

	cfg := config.Default()
	cfg.Server.Mode = "development"
	FromConfig(cfg)

	if !IsDevelopment() {
		t.Error("FromConfig should apply development mode")
	}
	if GinMode() != gin.DebugMode {
		t.Errorf("GinMode() = %q, want debug", GinMode())
	}

	t.Setenv("MODE", "production")
	FromConfig(cfg)
	if !IsProduction() {
		t.Error("MODE env should override config")
	}
	if GinMode() != gin.ReleaseMode {
		t.Errorf("GinMode() = %q, want release", GinMode())
	}
}

func TestParse(t *testing.T) {
	tests := map[string]Mode{
		"":             Production,
		"Development":  Development,
		"\tdev\n":      Development,
		"staging":      Production,
		"developments": Production,
	}
	for in, want := range tests {
		if got := Parse(in); got != want {
			t.Errorf("Parse(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetDebug_ConcurrentToggle(t *testing.T) {
	defer SetDebug(false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(on bool) {
			defer wg.Done()
			SetDebug(on)
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			_ = GinMode()
			_ = String()
		}()
	}
	wg.Wait()

	SetDebug(true)
	if !IsDebug() {
		t.Error("IsDebug() = false after SetDebug(true)")
	}
}
