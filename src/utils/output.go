package utils

import (
	"os"

	"golang.org/x/term"
)

// ColorEnabled reports whether stdout should get color. NO_COLOR and
// TERM=dumb disable it, as does a non-terminal stdout.
func ColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// EmojiEnabled reports whether emoji may be printed
func EmojiEnabled() bool {
	return os.Getenv("NO_COLOR") == "" && os.Getenv("TERM") != "dumb"
}

// Emoji returns the emoji or plain text fallback based on EmojiEnabled
func Emoji(emoji, fallback string) string {
	if EmojiEnabled() {
		return emoji
	}
	return fallback
}

// GetOK returns the success indicator
func GetOK() string {
	return Emoji("✅", "[OK]")
}

// GetWarning returns the warning indicator
func GetWarning() string {
	return Emoji("⚠️", "[WARN]")
}

// GetSun returns the application indicator
func GetSun() string {
	return Emoji("🌤️", "[SUN]")
}

// GetGlobe returns the URL indicator
func GetGlobe() string {
	return Emoji("🌐", "[WEB]")
}
