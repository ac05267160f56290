package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/fand/internal/api"
	"codeberg.org/mutker/fand/internal/config"
	"codeberg.org/mutker/fand/internal/daemon"
	"codeberg.org/mutker/fand/internal/hardware"
	"codeberg.org/mutker/fand/internal/logger"
	"codeberg.org/mutker/fand/internal/metrics"
	"codeberg.org/mutker/fand/internal/pid"
	"codeberg.org/mutker/fand/internal/store"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}

	if err := logger.Init(logger.Options{
		Level:     cfg.LogLevel,
		File:      cfg.LogFile,
		IsService: logger.IsService(),
	}); err != nil {
		logger.Warn().Err(err).Msg("Falling back to default log level")
	}
	if cfg.ConfigFile != "" {
		logger.Debug().Str("file", cfg.ConfigFile).Msg("Config loaded")
	}

	if err := run(cfg); err != nil {
		logger.FatalWithCode(err).Msg("fand failed")
	}
	logger.Info().Msg("Exiting...")
}

func run(cfg *config.Config) error {
	log := logger.Default()

	if err := pid.Write(cfg.PIDFile); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(cfg.PIDFile); err != nil {
			log.Error().Err(err).Msg("failed to remove pid file")
		}
	}()

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close configuration store")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	platform, watcher, err := openPlatform(ctx, cfg, log)
	if err != nil {
		return err
	}
	var hwEvents <-chan struct{}
	if watcher != nil {
		defer watcher.Close()
		hwEvents = watcher.Events()
	}

	mcfg := metrics.DefaultConfig()
	mcfg.Enabled = cfg.Metrics
	mcfg.DBPath = cfg.MetricsDB
	mcfg.BackupDir = cfg.BackupDir
	svc, err := metrics.NewService(mcfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close metrics")
		}
	}()

	d, err := daemon.New(daemon.Config{
		Interval:   cfg.PollInterval(),
		Simulation: cfg.Simulation,
	}, daemon.Deps{
		Store:          st,
		Platform:       platform,
		Metrics:        svc,
		HardwareEvents: hwEvents,
		Logger:         log,
	})
	if err != nil {
		return err
	}

	srv := api.NewServer(d, api.Options{
		Addr:    cfg.Listen,
		Metrics: svc.Handler(),
		History: svc,
		Logger:  log,
	})
	apiErr := make(chan error, 1)
	go func() {
		apiErr <- srv.Start()
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- d.Run(ctx)
	}()

	select {
	case err = <-runErr:
	case err = <-apiErr:
		// the API is the only operator surface; without it the daemon stops
		cancel()
		if runErr := <-runErr; runErr != nil {
			log.Error().Err(runErr).Msg("daemon stopped with error")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Error().Err(serr).Msg("failed to shut down API")
	}

	return err
}

func openStore(cfg *config.Config, log logger.Logger) (store.Store, error) {
	scfg := store.DefaultConfig()
	scfg.Path = cfg.Database
	scfg.BackupDir = cfg.BackupDir
	scfg.Options.Timeout = cfg.StoreAttemptTimeout()
	scfg.Options.Retries = cfg.StoreRetries
	if cfg.Database == store.BackendMemory {
		scfg.Backend = store.BackendMemory
	}
	return store.Open(scfg, log)
}

// openPlatform loads the hardware description. The description file is
// watched so edits show up as hardware changes.
func openPlatform(ctx context.Context, cfg *config.Config, log logger.Logger) (*hardware.Simulated, *hardware.Watcher, error) {
	if _, err := os.Stat(cfg.Platform); os.IsNotExist(err) && cfg.Simulation {
		log.Warn().Str("file", cfg.Platform).Msg("No platform description; starting with an empty platform")
		return hardware.NewSimulated(nil, log), nil, nil
	}

	desc, err := hardware.LoadDescription(cfg.Platform)
	if err != nil {
		return nil, nil, err
	}

	platform := hardware.NewSimulated(desc, log)
	watcher, err := hardware.NewWatcher(cfg.Platform, platform, log)
	if err != nil {
		log.Warn().Err(err).Msg("Hardware description will not be reloaded")
		return platform, nil, nil
	}
	watcher.Start(ctx)
	return platform, watcher, nil
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
