//go:build !windows

package client

import (
	"os"
	"path/filepath"
)

// ConfigDir returns ~/.config/weatherdash, honouring XDG_CONFIG_HOME
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, projectName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", projectName)
}

func setFilePermissions(path string) error {
	return os.Chmod(path, 0600)
}
