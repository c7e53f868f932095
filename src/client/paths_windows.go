//go:build windows

package client

import (
	"os"
	"path/filepath"
)

// ConfigDir returns %APPDATA%\weatherdash
func ConfigDir() string {
	return filepath.Join(os.Getenv("APPDATA"), projectName)
}

// NTFS ACLs on APPDATA already restrict access to the user
func setFilePermissions(string) error {
	return nil
}
