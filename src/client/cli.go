package client

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"
)

// App wires the CLI to its streams so commands can run under test
type App struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// NewApp returns an App bound to the process streams
func NewApp() *App {
	return &App{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

type globalFlags struct {
	server  string
	token   string
	output  string
	config  string
	timeout time.Duration
	noColor bool
	version bool
	help    bool
}

// Execute parses args (without the program name) and runs one command
func (a *App) Execute(ctx context.Context, args []string) error {
	var g globalFlags
	fs := flag.NewFlagSet("weather-cli", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&g.server, "server", "", "Server URL (overrides config)")
	fs.StringVar(&g.token, "token", "", "Session token (overrides config)")
	fs.StringVar(&g.output, "output", "", "Output format: table, json")
	fs.StringVar(&g.config, "config", "", "Config file path")
	fs.DurationVar(&g.timeout, "timeout", 0, "Request timeout")
	fs.BoolVar(&g.noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&g.version, "version", false, "Show version information")
	fs.BoolVar(&g.help, "help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			a.printUsage()
			return nil
		}
		return NewUsageError(err.Error())
	}

	if g.version {
		a.printVersion()
		return nil
	}
	if g.help || fs.NArg() == 0 {
		a.printUsage()
		if fs.NArg() == 0 && !g.help {
			return NewUsageError("no command specified")
		}
		return nil
	}

	cfg, err := LoadConfig(g.config)
	if err != nil {
		return err
	}
	if g.server != "" {
		cfg.Server = g.server
	}
	if g.token != "" {
		cfg.Token = g.token
	}
	if g.output != "" {
		if g.output != OutputTable && g.output != OutputJSON {
			return NewUsageError(fmt.Sprintf("unknown output format %q (want table or json)", g.output))
		}
		cfg.Output = g.output
	}
	if g.timeout > 0 {
		cfg.Timeout = g.timeout
	}
	if g.noColor || os.Getenv("NO_COLOR") != "" {
		cfg.NoColor = true
	}

	cmd := &command{
		app:    a,
		cfg:    cfg,
		client: NewHTTPClient(cfg),
		format: NewFormatter(cfg.Output, cfg.NoColor),
	}

	name, rest := fs.Arg(0), fs.Args()[1:]
	switch name {
	case "login":
		return cmd.login(ctx, rest)
	case "logout":
		return cmd.logout(ctx, rest)
	case "cities":
		return cmd.cities(ctx, rest)
	case "current":
		return cmd.current(ctx, rest)
	case "forecast":
		return cmd.forecast(ctx, rest)
	case "alerts":
		return cmd.alerts(ctx, rest)
	case "watch":
		return cmd.watch(ctx, rest)
	case "version":
		a.printVersion()
		return nil
	case "help":
		a.printUsage()
		return nil
	default:
		return NewUsageError(fmt.Sprintf("unknown command: %s", name))
	}
}

func (a *App) printUsage() {
	fmt.Fprintf(a.Out, `weather-cli - command-line client for weatherdash

Usage:
  weather-cli [flags] <command> [args]

Commands:
  login              Sign in and store the session token
  logout             Revoke the stored session
  cities             List the server's cities
  current [city...]  Current weather (default: server cities)
  forecast <city...> Forecast for one or more cities
  alerts             Recently received alerts
  watch              Live alerts over websocket
  version            Show version information

Flags:
  --server <url>       Server URL (default: %s)
  --token <token>      Session token
  --output <format>    table or json (default: table)
  --config <path>      Config file (default: %s)
  --timeout <duration> Request timeout (default: 30s)
  --no-color           Disable colored output

Environment:
  WEATHERDASH_SERVER, WEATHERDASH_TOKEN, NO_COLOR
`, DefaultServer, ConfigPath())
}

func (a *App) printVersion() {
	fmt.Fprintf(a.Out, "weather-cli version %s\n", Version)
	fmt.Fprintf(a.Out, "Git commit: %s\n", GitCommit)
	fmt.Fprintf(a.Out, "Build date: %s\n", BuildDate)
}
