package client

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"
)

type command struct {
	app    *App
	cfg    *CLIConfig
	client *HTTPClient
	format *Formatter
}

func (c *command) print(s string) {
	fmt.Fprintln(c.app.Out, s)
}

func (c *command) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "Account email")
	if err := fs.Parse(args); err != nil {
		return NewUsageError(err.Error())
	}

	reader := bufio.NewReader(c.app.In)
	if *email == "" {
		fmt.Fprint(c.app.Err, "Email: ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return NewUsageError("email is required")
		}
		*email = strings.TrimSpace(line)
	}
	if *email == "" {
		return NewUsageError("email is required")
	}

	fmt.Fprint(c.app.Err, "Password: ")
	password, err := c.readPassword(reader)
	fmt.Fprintln(c.app.Err)
	if err != nil {
		return NewUsageError(fmt.Sprintf("failed to read password: %v", err))
	}

	res, err := c.client.Login(ctx, *email, password)
	if err != nil {
		return err
	}

	c.cfg.Token = res.Token
	if err := c.cfg.Save(); err != nil {
		return err
	}

	if c.format.format == OutputJSON {
		c.print(c.format.FormatJSON(res))
		return nil
	}
	who := *email
	if res.User != nil {
		who = res.User.Email
	}
	c.print(c.format.st.good.Render("Logged in as "+who) +
		c.format.st.muted.Render(fmt.Sprintf(" (session expires %s)", res.ExpiresAt.Local().Format("2006-01-02 15:04"))))
	return nil
}

// readPassword hides input on a terminal and reads a plain line otherwise
func (c *command) readPassword(reader *bufio.Reader) (string, error) {
	if fd, ok := terminalFd(c.app.In); ok {
		b, err := term.ReadPassword(fd)
		return string(b), err
	}
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *command) logout(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return NewUsageError("logout takes no arguments")
	}
	if c.cfg.Token == "" {
		c.print("Not logged in.")
		return nil
	}

	err := c.client.Logout(ctx)
	var exitErr *ExitError
	// an expired or revoked token is already logged out server side
	if err != nil && !(errors.As(err, &exitErr) && exitErr.Code == ExitAuthError) {
		return err
	}

	c.cfg.Token = ""
	if err := c.cfg.Save(); err != nil {
		return err
	}
	c.print("Logged out.")
	return nil
}

func (c *command) cities(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return NewUsageError("cities takes no arguments")
	}
	list, err := c.client.Cities(ctx)
	if err != nil {
		return err
	}
	c.print(c.format.FormatCities(list))
	return nil
}

func (c *command) current(ctx context.Context, args []string) error {
	cities := args
	if len(cities) == 0 {
		list, err := c.client.Cities(ctx)
		if err != nil {
			return err
		}
		cities = list.Cities
	}

	report, err := c.client.Current(ctx, cities)
	if err != nil {
		return err
	}
	c.print(c.format.FormatCurrent(report))
	return nil
}

func (c *command) forecast(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return NewUsageError("forecast requires at least one city")
	}
	report, err := c.client.Forecast(ctx, args)
	if err != nil {
		return err
	}
	c.print(c.format.FormatForecast(report))
	return nil
}

func (c *command) alerts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("alerts", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 20, "Maximum alerts to show")
	if err := fs.Parse(args); err != nil {
		return NewUsageError(err.Error())
	}

	list, err := c.client.Alerts(ctx, *limit)
	if err != nil {
		return err
	}
	c.print(c.format.FormatAlerts(list))
	return nil
}

func (c *command) watch(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return NewUsageError("watch takes no arguments")
	}
	if _, tty := terminalFd(c.app.Out); tty && c.format.format != OutputJSON {
		return RunWatch(ctx, c.client, c.format, c.app.In, c.app.Out)
	}
	return StreamAlerts(ctx, c.client, c.format, c.app.Out)
}

func terminalFd(v interface{}) (int, bool) {
	f, ok := v.(interface{ Fd() uintptr })
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}
