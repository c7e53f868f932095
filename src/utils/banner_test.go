package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteBanner(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	info := BannerInfo{Version: "1.2.3", URL: "http://localhost:5000", Mode: "production", Database: "sqlite", Cache: "memory", BuildDate: "today"}

	tests := []struct {
		width int
		want  []string
	}{
		{100, []string{"weatherdash v1.2.3", "URL:      http://localhost:5000", "Cache:    memory", "╚"}},
		{60, []string{"[SUN] weatherdash v1.2.3", "[OK] Server ready"}},
		{20, []string{"weatherdash http://localhost:5000"}},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		writeBanner(&buf, "weatherdash", tt.width, info)
		for _, want := range tt.want {
			if !strings.Contains(buf.String(), want) {
				t.Errorf("width %d: banner missing %q:\n%s", tt.width, want, buf.String())
			}
		}
	}
}

func TestPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "weatherdash.pid")
	p := NewPIDFile(path)

	if running, _, err := p.Check(); err != nil || running {
		t.Fatalf("Check() on missing file = %v, %v", running, err)
	}
	if err := p.Create(); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	running, pid, err := p.Check()
	if err != nil || !running || pid != os.Getpid() {
		t.Errorf("Check() = %v, %d, %v", running, pid, err)
	}
	// our own PID may be rewritten
	if err := p.Create(); err != nil {
		t.Errorf("Create() over own PID error = %v", err)
	}

	os.WriteFile(path, []byte("garbage"), 0600)
	if running, _, _ := p.Check(); running {
		t.Error("garbage PID reported as running")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("garbage PID file not removed")
	}

	if err := p.Remove(); err != nil {
		t.Errorf("Remove() of missing file error = %v", err)
	}
}
