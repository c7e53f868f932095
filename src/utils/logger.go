package utils

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

const logTimeFormat = "2006-01-02 15:04:05"

// Logger handles application logging to both stdout and files
type Logger struct {
	accessLog   *log.Logger
	serverLog   *log.Logger
	errorLog    *log.Logger
	securityLog *log.Logger
	debugLog    *log.Logger
	files       []*os.File
	isDebug     bool
}

// NewLogger creates a logger writing access.log, server.log, error.log and
// security.log (plus debug.log when debug is set) under logDir.
func NewLogger(logDir string, debug bool) (*Logger, error) {
	dirPerm := os.FileMode(0700)
	if os.Geteuid() == 0 {
		dirPerm = 0755
	}
	if err := os.MkdirAll(logDir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{isDebug: debug}

	open := func(name string) (*os.File, error) {
		f, err := os.OpenFile(filepath.Join(logDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		l.files = append(l.files, f)
		return f, nil
	}

	accessFile, err := open("access.log")
	if err != nil {
		return nil, err
	}
	serverFile, err := open("server.log")
	if err != nil {
		return nil, err
	}
	errorFile, err := open("error.log")
	if err != nil {
		return nil, err
	}
	securityFile, err := open("security.log")
	if err != nil {
		return nil, err
	}

	l.accessLog = log.New(io.MultiWriter(accessFile, os.Stdout), "", 0)
	l.serverLog = log.New(io.MultiWriter(serverFile, os.Stdout), "", 0)
	l.errorLog = log.New(io.MultiWriter(errorFile, os.Stderr), "", 0)
	// Security events only go to file (fail2ban reads it)
	l.securityLog = log.New(securityFile, "", 0)

	if debug {
		debugFile, err := open("debug.log")
		if err != nil {
			return nil, err
		}
		l.debugLog = log.New(io.MultiWriter(debugFile, os.Stdout), "", 0)
	}

	return l, nil
}

// NewWriterLogger sends every stream to w. Used by tests and by the CLI.
func NewWriterLogger(w io.Writer, debug bool) *Logger {
	lg := log.New(w, "", 0)
	return &Logger{
		accessLog:   lg,
		serverLog:   lg,
		errorLog:    lg,
		securityLog: lg,
		debugLog:    lg,
		isDebug:     debug,
	}
}

// NewDiscardLogger returns a logger that drops everything
func NewDiscardLogger() *Logger {
	return NewWriterLogger(io.Discard, false)
}

// Info logs an informational message
func (l *Logger) Info(format string, v ...interface{}) {
	l.serverLog.Printf("[%s] [INFO] %s", time.Now().Format(logTimeFormat), fmt.Sprintf(format, v...))
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.serverLog.Printf("[%s] [WARN] %s", time.Now().Format(logTimeFormat), fmt.Sprintf(format, v...))
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.errorLog.Printf("[%s] [ERROR] %s", time.Now().Format(logTimeFormat), fmt.Sprintf(format, v...))
}

// Debug logs a debug message (only in debug mode)
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.isDebug && l.debugLog != nil {
		l.debugLog.Printf("[%s] [DEBUG] %s", time.Now().Format(logTimeFormat), fmt.Sprintf(format, v...))
	}
}

// Access logs an access entry (Apache Combined Log Format)
func (l *Logger) Access(ip, user, method, path, protocol string, status int, size int64, referer, userAgent string) {
	if user == "" {
		user = "-"
	}
	if referer == "" {
		referer = "-"
	}
	if userAgent == "" {
		userAgent = "-"
	}
	if size < 0 {
		size = 0
	}

	l.accessLog.Printf(`%s - %s [%s] "%s %s %s" %d %d "%s" "%s"`,
		ip, user, time.Now().Format("02/Jan/2006:15:04:05 -0700"),
		method, path, protocol, status, size, referer, userAgent,
	)
}

// Security logs a security event (fail2ban format)
func (l *Logger) Security(ip, event, details string) {
	l.securityLog.Printf("[%s] %s from %s: %s", time.Now().Format(logTimeFormat), event, ip, details)
}

// Close closes all log files
func (l *Logger) Close() error {
	var errs []error
	for _, f := range l.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.files = nil
	return errors.Join(errs...)
}
