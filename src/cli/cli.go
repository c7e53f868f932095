// Package cli parses the weatherdash server command line.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/apimgr/weatherdash/src/config"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildDate = "unknown"
	CommitID  = "unknown"
)

// Options are the parsed server flags. Zero values mean "not set".
type Options struct {
	ConfigPath string
	Mode       string
	Address    string
	Port       int
	Debug      bool
	LogDir     string
	PIDFile    string

	ShowHelp    bool
	ShowVersion bool
	// Status queries a running server instead of starting one
	Status bool
	// InitConfig writes a default server.yml to this path and exits
	InitConfig string
}

// Parse parses command line arguments. Only -h and -v have short forms.
func Parse(args []string) (*Options, error) {
	preprocessed := make([]string, len(args))
	copy(preprocessed, args)
	for i, arg := range preprocessed {
		switch arg {
		case "-h":
			preprocessed[i] = "--help"
		case "-v":
			preprocessed[i] = "--version"
		}
	}

	opts := &Options{}
	flags := flag.NewFlagSet("weatherdash", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	flags.BoolVar(&opts.ShowHelp, "help", false, "Show this help message")
	flags.BoolVar(&opts.ShowVersion, "version", false, "Show version information")
	flags.BoolVar(&opts.Status, "status", false, "Show status of a running server")
	flags.StringVar(&opts.InitConfig, "init-config", "", "Write a default server.yml and exit")
	flags.StringVar(&opts.ConfigPath, "config", "", "Path to server.yml")
	flags.StringVar(&opts.Mode, "mode", "", "Application mode: production or development")
	flags.StringVar(&opts.Address, "address", "", "Listen address")
	flags.IntVar(&opts.Port, "port", 0, "Listen port")
	flags.BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	flags.StringVar(&opts.LogDir, "log", "", "Log directory")
	flags.StringVar(&opts.PIDFile, "pid", "", "PID file path")

	if err := flags.Parse(preprocessed); err != nil {
		return nil, fmt.Errorf("%w (run with --help for usage)", err)
	}
	if flags.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q (run with --help for usage)", flags.Arg(0))
	}
	if opts.Port < 0 || opts.Port > 65535 {
		return nil, errors.New("--port must be between 1 and 65535")
	}

	return opts, nil
}

// Apply copies the flags that were set onto cfg. Flags win over the file
// and the environment.
func (o *Options) Apply(cfg *config.Config) {
	if o.Mode != "" {
		cfg.Server.Mode = o.Mode
	}
	if o.Address != "" {
		cfg.Server.Address = o.Address
	}
	if o.Port != 0 {
		cfg.Server.Port = o.Port
	}
	if o.Debug {
		cfg.Logging.Debug = true
	}
	if o.LogDir != "" {
		cfg.Logging.Dir = o.LogDir
	}
}

// ShowHelp writes usage information
func ShowHelp(w io.Writer) {
	binaryName := filepath.Base(os.Args[0])

	fmt.Fprintf(w, "%s %s - weather dashboard backend\n", binaryName, Version)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s [flags]\n", binaryName)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Information:")
	fmt.Fprintln(w, "  -h, --help                        Show help")
	fmt.Fprintln(w, "  -v, --version                     Show version")
	fmt.Fprintln(w, "      --status                      Show status of a running server")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Server Configuration:")
	fmt.Fprintln(w, "      --config FILE                 Path to server.yml")
	fmt.Fprintln(w, "      --init-config FILE            Write a default server.yml and exit")
	fmt.Fprintln(w, "      --mode {production|development}  Application mode (default: production)")
	fmt.Fprintln(w, "      --address ADDR                Listen address (default: 0.0.0.0)")
	fmt.Fprintln(w, "      --port PORT                   Listen port (default: 5000)")
	fmt.Fprintln(w, "      --log DIR                     Log directory")
	fmt.Fprintln(w, "      --pid FILE                    PID file path")
	fmt.Fprintln(w, "      --debug                       Enable debug logging")
}

// ShowVersion writes version information
func ShowVersion(w io.Writer) {
	binaryName := filepath.Base(os.Args[0])
	fmt.Fprintf(w, "%s v%s\n", binaryName, Version)
	fmt.Fprintf(w, "Built: %s\n", BuildDate)
	fmt.Fprintf(w, "Commit: %s\n", CommitID)
	fmt.Fprintf(w, "Go: %s\n", runtime.Version())
	fmt.Fprintf(w, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
