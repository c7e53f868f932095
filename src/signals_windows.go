//go:build windows

package main

import (
	"errors"
	"os"

	"github.com/apimgr/weatherdash/src/cli"
	"github.com/apimgr/weatherdash/src/config"
	"github.com/apimgr/weatherdash/src/utils"
)

var errUnhandledSignal = errors.New("unhandled signal")

// Windows has no SIGHUP or SIGUSR2; the config watcher still reloads
var platformSignals = []os.Signal{}

func handlePlatformSignal(os.Signal, *cli.Options, *utils.Logger, config.ReloadFunc) error {
	return errUnhandledSignal
}
