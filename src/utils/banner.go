package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
)

// getTerminalWidth returns terminal width, defaulting to 80
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width == 0 {
		return 80
	}
	return width
}

// getBinaryName returns the actual binary name
func getBinaryName() string {
	return filepath.Base(os.Args[0])
}

// BannerInfo is what the startup banner shows
type BannerInfo struct {
	Version   string
	BuildDate string
	URL       string
	Mode      string
	Database  string
	Cache     string
}

// DisplayBanner prints the startup banner sized to the terminal
func DisplayBanner(info BannerInfo) {
	writeBanner(os.Stdout, getBinaryName(), getTerminalWidth(), info)
}

func writeBanner(w io.Writer, binaryName string, termWidth int, info BannerInfo) {
	switch {
	case termWidth >= 80:
		writeBannerFull(w, binaryName, info)
	case termWidth >= 40:
		fmt.Fprintf(w, "%s %s v%s\n", GetSun(), binaryName, info.Version)
		fmt.Fprintf(w, "%s %s\n", GetGlobe(), info.URL)
		fmt.Fprintf(w, "%s Server ready\n", GetOK())
	default:
		fmt.Fprintf(w, "%s %s\n", binaryName, info.URL)
	}
}

func writeBannerFull(w io.Writer, binaryName string, info BannerInfo) {
	const width = 63
	line := strings.Repeat("═", width)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "╔%s╗\n", line)
	fmt.Fprintf(w, "║%s║\n", centerText(fmt.Sprintf("%s v%s", binaryName, info.Version), width))
	fmt.Fprintf(w, "║%s║\n", strings.Repeat(" ", width))
	fmt.Fprintf(w, "║  %-60s ║\n", "URL:      "+info.URL)
	fmt.Fprintf(w, "║  %-60s ║\n", "Mode:     "+info.Mode)
	fmt.Fprintf(w, "║  %-60s ║\n", "Database: "+info.Database)
	fmt.Fprintf(w, "║  %-60s ║\n", "Cache:    "+info.Cache)
	fmt.Fprintf(w, "║  %-60s ║\n", "Built:    "+info.BuildDate)
	fmt.Fprintf(w, "╚%s╝\n", line)
	fmt.Fprintln(w)
}

// centerText centers text within a given width
func centerText(text string, width int) string {
	if len(text) >= width {
		return text[:width]
	}
	padding := width - len(text)
	left := padding / 2
	return strings.Repeat(" ", left) + text + strings.Repeat(" ", padding-left)
}
