package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/apimgr/weatherdash/src/cli"
	"github.com/apimgr/weatherdash/src/config"
	"github.com/apimgr/weatherdash/src/database"
	"github.com/apimgr/weatherdash/src/mode"
	"github.com/apimgr/weatherdash/src/scheduler"
	"github.com/apimgr/weatherdash/src/server"
	"github.com/apimgr/weatherdash/src/server/metrics"
	"github.com/apimgr/weatherdash/src/server/model"
	"github.com/apimgr/weatherdash/src/server/service"
	"github.com/apimgr/weatherdash/src/utils"
	"github.com/gin-gonic/gin"
)

func main() {
	cli.Version = Version
	cli.BuildDate = BuildDate
	cli.CommitID = CommitID

	opts, err := cli.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	switch {
	case opts.ShowHelp:
		cli.ShowHelp(os.Stdout)
		return
	case opts.ShowVersion:
		cli.ShowVersion(os.Stdout)
		return
	case opts.InitConfig != "":
		if err := cli.GenerateServerYML(opts.InitConfig); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Wrote %s\n", opts.InitConfig)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, opts *cli.Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	if opts.Status {
		return cli.NewStatusCommand(cfg, os.Stdout).Execute(ctx)
	}

	mode.FromConfig(cfg)
	gin.SetMode(mode.GinMode())

	appLogger, err := utils.NewLogger(cfg.Logging.Dir, mode.IsDebug())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	if opts.PIDFile != "" {
		pid := utils.NewPIDFile(opts.PIDFile)
		if err := pid.Create(); err != nil {
			return err
		}
		defer pid.Remove()
	}

	metrics.Init(Version, CommitID, BuildDate)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	appLogger.Info("Database ready (%s)", db.Dialect)

	cache := service.NewCacheManager(ctx, cfg.Weather.CacheTTL, cfg.Cache)
	cacheMode := "memory"
	if cache.RedisEnabled() {
		cacheMode = "memory + redis " + cfg.Cache.Addr
	}

	hub := service.NewHub(appLogger)
	weather := service.NewWeatherService(cfg.Weather, service.WeatherDeps{
		Provider:     service.NewOpenWeatherClient(cfg.Weather),
		Cache:        cache,
		Observations: &model.ObservationModel{DB: db},
		Forecasts:    &model.ForecastModel{DB: db},
		Logger:       appLogger,
	})
	alerts := service.NewAlertService(&model.AlertModel{DB: db}, hub, appLogger)
	if err := alerts.Load(ctx); err != nil {
		appLogger.Warn("Failed to load recent alerts: %v", err)
	}
	auth := service.NewAuthService(cfg.Auth, &model.UserModel{DB: db}, &model.SessionModel{DB: db}, appLogger)
	if _, err := auth.PurgeExpired(ctx); err != nil {
		appLogger.Warn("Failed to purge expired sessions: %v", err)
	}

	tracked := newTrackedCities(cfg.Scheduler.TrackedCities)
	sched := scheduler.NewScheduler(appLogger)
	if err := sched.RegisterTasks(scheduler.TaskConfig{
		RefreshSchedule:        cfg.Scheduler.RefreshSchedule,
		SessionCleanupSchedule: cfg.Scheduler.SessionCleanup,
		HistoryPruneSchedule:   cfg.Scheduler.HistoryPrune,
		HistoryRetention:       cfg.Scheduler.HistoryRetention,
		TrackedCities:          tracked.Get,
	}, weather, auth); err != nil {
		db.Close()
		return fmt.Errorf("failed to register scheduled tasks: %w", err)
	}

	reload := func(next *config.Config) error {
		weather.SetCities(next.Weather.Cities)
		weather.SetMaxCities(next.Weather.MaxCities)
		tracked.Set(next.Scheduler.TrackedCities)
		appLogger.Info("Configuration reloaded: %d cities, %d tracked, max %d per request",
			len(weather.Cities()), len(next.Scheduler.TrackedCities), next.Weather.MaxCities)
		return nil
	}

	var watcher *config.Watcher
	if cfg.Path() != "" {
		watcher, err = config.NewWatcher(cfg.Path(), reload)
		if err == nil {
			err = watcher.Start()
		}
		if err != nil {
			appLogger.Warn("Config watcher disabled: %v", err)
			watcher = nil
		}
	}

	go handleSignals(ctx, opts, appLogger, reload)

	utils.DisplayBanner(utils.BannerInfo{
		Version:   Version,
		BuildDate: BuildDate,
		URL:       "http://" + cfg.ListenAddr(),
		Mode:      mode.String(),
		Database:  string(db.Dialect),
		Cache:     cacheMode,
	})

	srv := server.New(server.Deps{
		Config:    cfg,
		Logger:    appLogger,
		DB:        db,
		Cache:     cache,
		Hub:       hub,
		Weather:   weather,
		Alerts:    alerts,
		Auth:      auth,
		Scheduler: sched,
		Watcher:   watcher,
		Version:   Version,
	})
	return srv.Run(ctx)
}

func loadConfig(opts *cli.Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	opts.Apply(cfg)
	// flags may have changed validated values
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// reloadFromDisk is the SIGHUP path; the file watcher covers edits
func reloadFromDisk(opts *cli.Options, apply config.ReloadFunc) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	return apply(cfg)
}

func handleSignals(ctx context.Context, opts *cli.Options, logger *utils.Logger, reload config.ReloadFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, platformSignals...)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			if err := handlePlatformSignal(sig, opts, logger, reload); err != nil {
				if errors.Is(err, errUnhandledSignal) {
					continue
				}
				logger.Error("Signal %v: %v", sig, err)
			}
		}
	}
}
