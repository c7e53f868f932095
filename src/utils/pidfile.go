package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFile guards against two servers sharing one data directory
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PID file manager for path
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Check reports whether the process named in the file is alive. Stale or
// unreadable files are removed.
func (p *PIDFile) Check() (bool, int, error) {
	data, err := os.ReadFile(p.Path)
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to read PID file %s: %w", p.Path, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		os.Remove(p.Path)
		return false, 0, nil
	}

	if !processAlive(pid) {
		os.Remove(p.Path)
		return false, pid, nil
	}
	return true, pid, nil
}

// Create writes the current PID, failing if another live process owns the file
func (p *PIDFile) Create() error {
	running, pid, err := p.Check()
	if err != nil {
		return err
	}
	if running && pid != os.Getpid() {
		return fmt.Errorf("weatherdash already running with PID %d", pid)
	}

	// root: 0755/0644, user: 0700/0600
	dirPerm, filePerm := os.FileMode(0700), os.FileMode(0600)
	if os.Geteuid() == 0 {
		dirPerm, filePerm = 0755, 0644
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), dirPerm); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	if err := os.WriteFile(p.Path, []byte(strconv.Itoa(os.Getpid())+"\n"), filePerm); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", p.Path, err)
	}
	return nil
}

// Remove removes the PID file
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", p.Path, err)
	}
	return nil
}

// processAlive sends signal 0, which checks existence without delivering
// anything
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
