package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
)

const (
	watchHistory  = 50
	noDescription = "No description"
)

// AlertFromPayload extracts status and description from a raw
// Alertmanager-style webhook body pushed over the websocket
func AlertFromPayload(raw json.RawMessage, received time.Time) Alert {
	var payload struct {
		Status string `json:"status"`
		Alerts []struct {
			Status      string            `json:"status"`
			Annotations map[string]string `json:"annotations"`
		} `json:"alerts"`
	}
	_ = json.Unmarshal(raw, &payload)

	a := Alert{Status: payload.Status, Description: noDescription, Payload: raw, ReceivedAt: received}
	if len(payload.Alerts) > 0 {
		if d := payload.Alerts[0].Annotations["description"]; d != "" {
			a.Description = d
		}
		if a.Status == "" {
			a.Status = payload.Alerts[0].Status
		}
	}
	return a
}

type alertMsg Alert

type connClosedMsg struct{ err error }

// watchModel is the bubbletea model for `weather-cli watch`
type watchModel struct {
	conn   *websocket.Conn
	format *Formatter
	server string

	alerts []Alert
	err    error
	width  int
	height int
}

func newWatchModel(conn *websocket.Conn, f *Formatter, server string) watchModel {
	return watchModel{conn: conn, format: f, server: server}
}

// readAlert blocks until the next new_alert frame
func readAlert(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		for {
			var msg HubMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return connClosedMsg{err: err}
			}
			if msg.Type == "new_alert" {
				return alertMsg(AlertFromPayload(msg.Data, time.Now()))
			}
		}
	}
}

func (m watchModel) Init() tea.Cmd {
	return readAlert(m.conn)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "c":
			m.alerts = nil
		}
		return m, nil

	case alertMsg:
		m.alerts = append([]Alert{Alert(msg)}, m.alerts...)
		if len(m.alerts) > watchHistory {
			m.alerts = m.alerts[:watchHistory]
		}
		return m, readAlert(m.conn)

	case connClosedMsg:
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m watchModel) View() string {
	st := m.format.st
	var b strings.Builder

	b.WriteString(st.title.Render("Live alerts"))
	b.WriteString(st.muted.Render("  " + m.server))
	b.WriteString("\n\n")

	if len(m.alerts) == 0 {
		b.WriteString(st.muted.Render("Waiting for alerts..."))
		b.WriteString("\n")
	}

	rows := len(m.alerts)
	// title, blank line, help line
	if m.height > 4 && rows > m.height-4 {
		rows = m.height - 4
	}
	for _, a := range m.alerts[:rows] {
		line := m.format.FormatAlertLine(a)
		if m.width > 0 {
			line = lipgloss.NewStyle().MaxWidth(m.width).Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(st.muted.Render(fmt.Sprintf("%d received • c: clear • q: quit", len(m.alerts))))
	return b.String()
}

// RunWatch streams alerts into a full-screen view until the user quits
// or the server closes the connection
func RunWatch(ctx context.Context, c *HTTPClient, f *Formatter, in io.Reader, out io.Writer) error {
	conn, err := c.DialAlerts(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	p := tea.NewProgram(newWatchModel(conn, f, c.BaseURL),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithAltScreen())

	final, err := p.Run()
	if err != nil && ctx.Err() == nil {
		return NewAPIError(fmt.Sprintf("watch: %v", err))
	}
	if m, ok := final.(watchModel); ok && m.err != nil && !websocket.IsCloseError(m.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return NewConnectionError(fmt.Sprintf("connection closed: %v", m.err))
	}
	return nil
}

// StreamAlerts prints alerts line by line until ctx ends or the server
// closes the connection. Used for --output json and non-terminals.
func StreamAlerts(ctx context.Context, c *HTTPClient, f *Formatter, out io.Writer) error {
	conn, err := c.DialAlerts(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var msg HubMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return NewConnectionError(fmt.Sprintf("connection closed: %v", err))
		}
		if msg.Type != "new_alert" {
			continue
		}
		fmt.Fprintln(out, f.FormatAlertLine(AlertFromPayload(msg.Data, time.Now())))
	}
}
