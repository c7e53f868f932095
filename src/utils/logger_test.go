package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_CreatesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	l, err := NewLogger(dir, true)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	l.Info("hello %s", "world")
	l.Security("10.0.0.1", "login_failed", "email=a@b.c")
	l.Debug("trace")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for _, name := range []string{"access.log", "server.log", "error.log", "security.log", "debug.log"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "security.log"))
	if err != nil {
		t.Fatalf("read security.log: %v", err)
	}
	if !strings.Contains(string(data), "login_failed from 10.0.0.1: email=a@b.c") {
		t.Errorf("security.log = %q", data)
	}
}

func TestLogger_Access(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, false)

	l.Access("127.0.0.1", "", "POST", "/weather", "HTTP/1.1", 200, 42, "", "curl/8")

	line := buf.String()
	for _, want := range []string{`127.0.0.1 - - [`, `"POST /weather HTTP/1.1" 200 42 "-" "curl/8"`} {
		if !strings.Contains(line, want) {
			t.Errorf("access line %q missing %q", line, want)
		}
	}
}

func TestLogger_DebugDisabled(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, false)
	l.Debug("should not appear")
	if buf.Len() != 0 {
		t.Errorf("Debug wrote %q with debug disabled", buf.String())
	}
}
