package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/apimgr/weatherdash/src/config"
)

// healthReport mirrors the /healthz body
type healthReport struct {
	Status           string            `json:"status"`
	Version          string            `json:"version"`
	Uptime           string            `json:"uptime"`
	Checks           map[string]string `json:"checks"`
	WebSocketClients int               `json:"websocket_clients"`
}

// StatusCommand queries /healthz of a running server and prints it
type StatusCommand struct {
	URL    string
	Client *http.Client
	Out    io.Writer
}

// NewStatusCommand targets the server described by cfg
func NewStatusCommand(cfg *config.Config, out io.Writer) *StatusCommand {
	host := cfg.Server.Address
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return &StatusCommand{
		URL:    fmt.Sprintf("http://%s:%d/healthz", host, cfg.Server.Port),
		Client: &http.Client{Timeout: 5 * time.Second},
		Out:    out,
	}
}

// Execute runs the status command. A stopped server is reported, not
// returned as an error; an unhealthy one is.
func (s *StatusCommand) Execute(ctx context.Context) error {
	fmt.Fprintln(s.Out, "weatherdash - Server Status")
	fmt.Fprintln(s.Out)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		fmt.Fprintln(s.Out, "Server Status:  Stopped")
		fmt.Fprintf(s.Out, "  (%s unreachable)\n", s.URL)
		return nil
	}
	defer resp.Body.Close()

	var report healthReport
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&report); err != nil {
		return fmt.Errorf("invalid health response: %w", err)
	}

	fmt.Fprintln(s.Out, "Server Status:")
	fmt.Fprintf(s.Out, "  Status:     %s\n", report.Status)
	fmt.Fprintf(s.Out, "  Version:    %s\n", report.Version)
	fmt.Fprintf(s.Out, "  Uptime:     %s\n", report.Uptime)
	fmt.Fprintf(s.Out, "  Database:   %s\n", report.Checks["database"])
	fmt.Fprintf(s.Out, "  Cache:      %s\n", report.Checks["cache"])
	fmt.Fprintf(s.Out, "  WebSockets: %d\n", report.WebSocketClients)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: %s", report.Status)
	}
	return nil
}
