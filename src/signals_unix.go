//go:build !windows

package main

import (
	"errors"
	"log"
	"os"
	"syscall"

	"github.com/apimgr/weatherdash/src/cli"
	"github.com/apimgr/weatherdash/src/config"
	"github.com/apimgr/weatherdash/src/mode"
	"github.com/apimgr/weatherdash/src/utils"
	"github.com/gin-gonic/gin"
)

var errUnhandledSignal = errors.New("unhandled signal")

var platformSignals = []os.Signal{
	syscall.SIGHUP,  // reload configuration
	syscall.SIGUSR2, // toggle debug mode
}

func handlePlatformSignal(sig os.Signal, opts *cli.Options, logger *utils.Logger, reload config.ReloadFunc) error {
	switch sig {
	case syscall.SIGHUP:
		log.Println("Received SIGHUP, reloading configuration...")
		return reloadFromDisk(opts, reload)

	case syscall.SIGUSR2:
		enabled := !mode.IsDebug()
		mode.SetDebug(enabled)
		gin.SetMode(mode.GinMode())
		logger.Info("Debug mode: %v", enabled)
		return nil
	}
	return errUnhandledSignal
}
