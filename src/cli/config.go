package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apimgr/weatherdash/src/config"
	"gopkg.in/yaml.v3"
)

const serverYMLHeader = `# weatherdash configuration
# Environment variables override these values (WEATHER_API_KEY, BASE_URL,
# FORECAST_URL, PORT, MODE, DB_*, CACHE_*, WEATHERDASH_*).
# weather.cities, scheduler.tracked_cities and
# weather.max_cities_per_request are reloaded while the server runs.

`

// GenerateServerYML writes the default configuration to path. An existing
// file is never overwritten.
func GenerateServerYML(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	body, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	// may hold secrets once edited
	if err := os.WriteFile(path, append([]byte(serverYMLHeader), body...), 0600); err != nil {
		return fmt.Errorf("failed to write server.yml: %w", err)
	}
	return nil
}
