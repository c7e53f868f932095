package client

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Output formats
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// Dracula palette, matching the server banner
var (
	colorPurple  = lipgloss.Color("#bd93f9")
	colorCyan    = lipgloss.Color("#8be9fd")
	colorGreen   = lipgloss.Color("#50fa7b")
	colorRed     = lipgloss.Color("#ff5555")
	colorOrange  = lipgloss.Color("#ffb86c")
	colorComment = lipgloss.Color("#6272a4")
)

type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	cell    lipgloss.Style
	muted   lipgloss.Style
	good    lipgloss.Style
	bad     lipgloss.Style
	warn    lipgloss.Style
	border  lipgloss.Style
	noColor bool
}

func newStyles(noColor bool) styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return styles{title: plain, header: plain, cell: plain, muted: plain, good: plain, bad: plain, warn: plain, border: plain, noColor: true}
	}
	return styles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(colorPurple),
		header: lipgloss.NewStyle().Bold(true).Foreground(colorCyan).Padding(0, 1),
		cell:   lipgloss.NewStyle().Padding(0, 1),
		muted:  lipgloss.NewStyle().Foreground(colorComment),
		good:   lipgloss.NewStyle().Foreground(colorGreen),
		bad:    lipgloss.NewStyle().Foreground(colorRed).Bold(true),
		warn:   lipgloss.NewStyle().Foreground(colorOrange),
		border: lipgloss.NewStyle().Foreground(colorPurple),
	}
}

// Formatter renders API responses as styled tables or JSON
type Formatter struct {
	format string
	st     styles
}

// NewFormatter creates a formatter for "table" or "json"
func NewFormatter(format string, noColor bool) *Formatter {
	if format != OutputJSON {
		format = OutputTable
	}
	return &Formatter{format: format, st: newStyles(noColor)}
}

// FormatJSON renders v as indented JSON
func (f *Formatter) FormatJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

func (f *Formatter) table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(f.st.border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return f.st.header
			}
			return f.st.cell
		})
	return t.String()
}

func (f *Formatter) failed(cities []string) string {
	if len(cities) == 0 {
		return ""
	}
	return "\n" + f.st.warn.Render("No data for: "+strings.Join(cities, ", "))
}

// FormatCurrent renders current conditions, one row per city
func (f *Formatter) FormatCurrent(r *WeatherReport) string {
	if f.format == OutputJSON {
		return f.FormatJSON(r)
	}

	cities := make([]string, 0, len(r.Data))
	for city := range r.Data {
		cities = append(cities, city)
	}
	sort.Strings(cities)

	rows := make([][]string, 0, len(cities))
	for _, city := range cities {
		c := r.Data[city]
		rows = append(rows, []string{
			city,
			fmt.Sprintf("%.1f°", c.Temperature),
			fmt.Sprintf("%.0f%%", c.Humidity),
			fmt.Sprintf("%.1f", c.WindSpeed),
			fmt.Sprintf("%.0f", c.Pressure),
		})
	}

	var sb strings.Builder
	sb.WriteString(f.st.title.Render("Current weather"))
	sb.WriteString("\n")
	if len(rows) > 0 {
		sb.WriteString(f.table([]string{"City", "Temp", "Humidity", "Wind", "Pressure"}, rows))
	}
	sb.WriteString(f.failed(r.Failed))
	return sb.String()
}

// FormatForecast renders one table per city
func (f *Formatter) FormatForecast(r *ForecastReport) string {
	if f.format == OutputJSON {
		return f.FormatJSON(r)
	}

	cities := make([]string, 0, len(r.Data))
	for city := range r.Data {
		cities = append(cities, city)
	}
	sort.Strings(cities)

	var sb strings.Builder
	for i, city := range cities {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(f.st.title.Render("Forecast for " + city))
		sb.WriteString("\n")

		points := r.Data[city]
		rows := make([][]string, 0, len(points))
		for _, p := range points {
			rows = append(rows, []string{
				time.Unix(p.Timestamp, 0).Format("Mon Jan 2 15:04"),
				fmt.Sprintf("%.1f°", p.Temperature),
				fmt.Sprintf("%.0f%%", p.Humidity),
				fmt.Sprintf("%.1f", p.WindSpeed),
			})
		}
		sb.WriteString(f.table([]string{"Time", "Temp", "Humidity", "Wind"}, rows))
	}
	sb.WriteString(f.failed(r.Failed))
	return sb.String()
}

// FormatCities renders the server's city list
func (f *Formatter) FormatCities(l *CityList) string {
	if f.format == OutputJSON {
		return f.FormatJSON(l)
	}

	var sb strings.Builder
	sb.WriteString(f.st.title.Render(fmt.Sprintf("Cities (max %d per request)", l.MaxCities)))
	for _, city := range l.Cities {
		sb.WriteString("\n  ")
		sb.WriteString(city)
	}
	return sb.String()
}

// FormatAlerts renders stored alerts, newest first
func (f *Formatter) FormatAlerts(l *AlertList) string {
	if f.format == OutputJSON {
		return f.FormatJSON(l)
	}
	if len(l.Alerts) == 0 {
		return f.st.muted.Render("No alerts received.")
	}

	rows := make([][]string, 0, len(l.Alerts))
	for _, a := range l.Alerts {
		rows = append(rows, []string{
			a.ReceivedAt.Local().Format("2006-01-02 15:04:05"),
			f.status(a.Status),
			a.Description,
		})
	}
	return f.table([]string{"Received", "Status", "Description"}, rows)
}

// FormatAlertLine renders a single alert on one line
func (f *Formatter) FormatAlertLine(a Alert) string {
	if f.format == OutputJSON {
		data, _ := json.Marshal(a)
		return string(data)
	}
	return fmt.Sprintf("%s  %s  %s",
		f.st.muted.Render(a.ReceivedAt.Local().Format("15:04:05")),
		f.status(a.Status),
		a.Description)
}

func (f *Formatter) status(s string) string {
	label := s
	if label == "" {
		label = "unknown"
	}
	switch strings.ToLower(s) {
	case "firing":
		return f.st.bad.Render(label)
	case "resolved":
		return f.st.good.Render(label)
	default:
		return f.st.warn.Render(label)
	}
}
