// Voxelgate - a lightweight Minecraft Java Edition server front end.
//
// Voxelgate accepts game clients over TCP, walks them through handshake,
// status, login and configuration into a flat void world, keeps player
// profiles in SQLite, and exposes a REST API, Prometheus metrics and MQTT
// telemetry for operators.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/voxelgate/internal/api"
	"github.com/energizer-project/voxelgate/internal/cli"
	"github.com/energizer-project/voxelgate/internal/config"
	"github.com/energizer-project/voxelgate/internal/connector"
	"github.com/energizer-project/voxelgate/internal/db"
	"github.com/energizer-project/voxelgate/internal/events"
	"github.com/energizer-project/voxelgate/internal/health"
	"github.com/energizer-project/voxelgate/internal/metrics"
	"github.com/energizer-project/voxelgate/internal/network"
	"github.com/energizer-project/voxelgate/internal/protocol"
	"github.com/energizer-project/voxelgate/internal/scheduler"
	"github.com/energizer-project/voxelgate/internal/server"
	"github.com/energizer-project/voxelgate/internal/telemetry"
	"github.com/energizer-project/voxelgate/internal/util"
)

const (
	AppName = "Voxelgate"
	Banner  = `
 __      __                _             _
 \ \    / /               | |           | |
  \ \  / /____  _____ _ __| | __ _  __ _| |_ ___
   \ \/ / _ \ \/ / _ \ '__| |/ _' |/ _' | __/ _ \
    \  / (_) >  <  __/ |  | | (_| | (_| | ||  __/
     \/ \___/_/\_\___|_|  |_|\__, |\__,_|\__\___|
                              __/ |
                             |___/  v%s (%s)
`
)

func main() {
	fmt.Printf(Banner, telemetry.AppVersion, protocol.VersionName)
	fmt.Println()

	// Defaults first, reconfigured once the config is loaded
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", telemetry.AppVersion).
		Str("game_version", protocol.VersionName).
		Int("protocol", protocol.ProtocolVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting Voxelgate")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	overridden, err := config.ApplyEnv(ctx, cfg, config.DefaultEnvFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to apply environment overrides")
	}
	for _, name := range overridden {
		log.Info().Str("variable", name).Msg("setting overridden from environment")
	}

	app := cfg.GetApplicationData()
	logCfg := util.LogConfig{
		Level:      app.Logging.Level,
		Directory:  app.Logging.Directory,
		MaxSizeMB:  app.Logging.MaxSizeMB,
		MaxBackups: app.Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Fatal().Msg("configuration validation failed, please fix the errors above")
	}

	if !checkEULA(app.EULAFile) {
		log.Error().Str("path", app.EULAFile).Msg("you need to agree to the EULA in order to run the server")
		os.Exit(1)
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	// ---------------------------------------------------------------
	// Core components
	// ---------------------------------------------------------------
	eventBus := events.NewEventBus()

	store, err := db.NewPlayerStore(app.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open player database")
	}
	defer store.Close()

	if n, err := store.ResetOnline(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to reset online flags")
	} else if n > 0 {
		log.Info().Int64("players", n).Msg("cleared stale online flags from a previous run")
	}

	sd := cfg.GetServerData()
	opts := server.Options{
		Config:   cfg,
		EventBus: eventBus,
		Store:    store,
	}

	// The session server is only consulted in online mode.
	var sessionServer *connector.SessionServer
	if sd.OnlineMode {
		sessionServer, err = connector.NewSessionServerFromConfig(ctx, app.Auth)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create session server client")
		}
		opts.Verifier = sessionServer
		log.Info().Str("url", app.Auth.SessionServerURL).Str("cache", app.Auth.CacheBackend).Msg("online mode enabled")
	} else {
		log.Warn().Msg("online mode disabled, player identities are not verified")
	}

	mgr, err := server.NewManager(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server manager")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mgr.SetMetrics(metrics.New(registry, mgr))

	// Typed nils must not reach the interface parameters.
	var profiles interface {
		api.ProfileCache
		cli.ProfileCache
	}
	if sessionServer != nil {
		profiles = sessionServer
	}

	var mqttHandler *telemetry.MQTTHandler
	var heartbeat health.Heartbeater
	if app.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
			mqttHandler = nil
		} else {
			heartbeat = mqttHandler
		}
	}

	apiServer := api.NewServer(cfg, eventBus, mgr, profiles, registry)
	healthMgr := health.NewManager(cfg, mgr, mgr.Connections(), store.DB(), heartbeat)
	sched := scheduler.NewScheduler(cfg, eventBus, mgr)
	cliHandler := cli.NewCLI(cfg, eventBus, mgr, profiles, os.Stdin, os.Stdout)

	// The console's quit and the API both end the process through the bus.
	quitCh := make(chan struct{}, 1)
	eventBus.Subscribe(events.EventShutdown, "main", func(ctx context.Context, e events.Event) error {
		if e.Source != "main" {
			select {
			case quitCh <- struct{}{}:
			default:
			}
		}
		return nil
	})

	// ---------------------------------------------------------------
	// Launch all concurrent tasks
	// ---------------------------------------------------------------
	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("ip", sd.IP).Int("port", sd.Port).Msg("starting game listener")
		if err := startWithRetry(ctx, "game listener", mgr.Listen, 15); err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Msg("game listener failed after retries")
				errCh <- fmt.Errorf("game listener: %w", err)
			}
			return
		}
		if err := mgr.Serve(ctx); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("game listener: %w", err)
		}
	}()

	if app.API.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", app.API.Port).Msg("starting REST API server")
			if err := startWithRetry(ctx, "API server", apiServer.Start, 15); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
		}()
	}

	if app.LAN.Enabled {
		announcer := network.NewLANAnnouncer(
			app.LAN.Address,
			time.Duration(app.LAN.IntervalMs)*time.Millisecond,
			sd.Port,
			func() string {
				if motd := cfg.GetServerData().MOTD; len(motd) > 0 {
					return motd[0]
				}
				return AppName
			},
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := announcer.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("LAN announcer failed (non-fatal)")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		healthMgr.Start(ctx)
	}()

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(ctx)
	}()

	// The console blocks on stdin, so it is not waited for.
	go cliHandler.Start(ctx)

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-quitCh:
		log.Info().Msg("shutdown requested")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")

	// Players are kicked and their profiles saved before anything else stops.
	mgr.Shutdown()
	eventBus.Emit(ctx, events.Event{
		Type:   events.EventShutdown,
		Source: "main",
	})
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	eventBus.Stop()
	log.Info().Msg("Voxelgate stopped")
}

// checkEULA reports whether the EULA has been accepted, prompting on an
// interactive terminal when it has not.
func checkEULA(path string) bool {
	status, err := config.CheckEULA(path)
	if err != nil {
		log.Error().Err(err).Msg("failed to check EULA")
		return false
	}
	if status.Accepted {
		return true
	}

	if fi, err := os.Stdin.Stat(); err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return false
	}
	accepted, err := config.PromptEULA(os.Stdin, path)
	if err != nil {
		log.Error().Err(err).Msg("failed to record EULA answer")
		return false
	}
	return accepted
}

// startWithRetry retries startFn when binding fails, typically because the
// previous process still holds the port.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}
