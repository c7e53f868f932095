// Package mode holds the process-wide run mode and debug switch. Both are
// read by request handlers and flipped by the SIGUSR1 handler, so they
// live in atomics.
package mode

import (
	"os"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/apimgr/weatherdash/src/config"
)

// Mode is production or development. The zero value is Production.
type Mode int32

const (
	Production Mode = iota
	// Development turns on gin's debug output and verbose route logging
	Development
)

var (
	current atomic.Int32
	debug   atomic.Bool
)

func (m Mode) String() string {
	if m == Development {
		return "development"
	}
	return "production"
}

// Parse maps "dev"/"development" (any case) to Development and
// everything else to Production.
func Parse(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development":
		return Development
	}
	return Production
}

func Set(s string) {
	current.Store(int32(Parse(s)))
}

// SetDebug flips debug logging. Block and mutex profiling follow it.
func SetDebug(on bool) {
	debug.Store(on)
	rate := 0
	if on {
		rate = 1
	}
	runtime.SetBlockProfileRate(rate)
	runtime.SetMutexProfileFraction(rate)
}

func Current() Mode { return Mode(current.Load()) }

func IsDevelopment() bool { return Current() == Development }

func IsProduction() bool { return Current() == Production }

func IsDebug() bool { return debug.Load() }

// String is the banner form, e.g. "production" or "development [debugging]".
func String() string {
	if IsDebug() {
		return Current().String() + " [debugging]"
	}
	return Current().String()
}

// FromConfig applies server.mode and logging.debug. MODE and DEBUG in the
// environment override the file.
func FromConfig(cfg *config.Config) {
	m := cfg.Server.Mode
	if env := os.Getenv("MODE"); env != "" {
		m = env
	}
	Set(m)
	SetDebug(cfg.Logging.Debug || config.IsTruthy(os.Getenv("DEBUG")))
}

// GinMode is debug whenever either switch is on.
func GinMode() string {
	if IsDevelopment() || IsDebug() {
		return gin.DebugMode
	}
	return gin.ReleaseMode
}
