package main

import (
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/olegsinavski/SMARTS/internal/agent"
	"github.com/olegsinavski/SMARTS/internal/config"
	"github.com/olegsinavski/SMARTS/internal/controller"
	"github.com/olegsinavski/SMARTS/internal/logging"
	"github.com/olegsinavski/SMARTS/internal/provider"
	"github.com/olegsinavski/SMARTS/internal/recorder"
	"github.com/olegsinavski/SMARTS/internal/registry"
	"github.com/olegsinavski/SMARTS/internal/scenario"
	"github.com/olegsinavski/SMARTS/internal/sensor"
	"github.com/olegsinavski/SMARTS/internal/sim"
	"github.com/olegsinavski/SMARTS/internal/telemetry"
	"github.com/olegsinavski/SMARTS/pkg/core"
)

const binaryName = "smarts-sim"

func main() {
	sessionStart := time.Now()

	if err := config.Load("."); err != nil {
		// run on defaults when no config file is present
		config.SetDefaults()
	}

	logFile, err := logging.OpenLogFile(viper.GetString("logsDir"), binaryName, sessionStart)
	if err != nil {
		logger := logging.New(viper.GetString("logLevel"), nil)
		logger.Warn().Err(err).Msg("Failed to open log file, logging to console only")
	}
	log := logging.New(viper.GetString("logLevel"), logFile)
	if logFile != nil {
		defer logFile.Close()
	}

	log.Info().Str("session", sessionStart.Format(time.RFC3339)).Msg("Starting up")

	scn, err := scenario.Load(viper.GetString("scenario.path"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load scenario")
	}
	log.Info().Str("scenario", scn.Name).Int("missions", len(scn.Missions)).
		Int("socialAgents", len(scn.SocialAgents)).Msg("Loaded scenario")

	backend, err := recorder.NewBackend(config.Recorder(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create recorder backend")
	}
	if err := backend.Init(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize recorder backend")
	}
	defer backend.Close()

	var influx *telemetry.Manager
	if viper.GetBool("influx.enabled") {
		backupPath := logging.LogFilePath(viper.GetString("logsDir"), binaryName+".influx_backup", sessionStart) + ".gz"
		influx = telemetry.NewManager(log, backupPath)
		if err := influx.Connect(); err != nil {
			log.Warn().Err(err).Msg("Telemetry disabled")
			influx = nil
		} else {
			defer influx.Close()
		}
	}

	sensors := sensor.NewManager()
	agents := provider.NewAgentsProvider(log)
	traffic := provider.NewTrafficProvider(log)
	ctx := sim.New(sensors, agents, traffic)

	pool := controller.NewPool(log)
	defer pool.Destroy()
	manager := agent.NewLifecycleManager(log, pool)

	ep := &episode{
		log:      log,
		ctx:      ctx,
		manager:  manager,
		scenario: scn,
		traffic:  traffic,
		backend:  backend,
		influx:   influx,
		tickRate: viper.GetFloat64("sim.tickRate"),
		maxTicks: uint64(viper.GetInt("sim.maxTicks")),
	}

	reg, err := registry.New(log, registry.WithHandoffListener(func(ev core.HandoffEvent) {
		ev.Tick = ep.tick
		ep.handoffs++
		if err := backend.RecordHandoff(&ev); err != nil {
			log.Error().Err(err).Str("vehicleId", ev.VehicleID).Msg("Failed to record handoff")
		}
	}))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vehicle registry")
	}
	ep.registry = reg

	if err := ep.run(); err != nil {
		log.Error().Err(err).Msg("Episode failed")
		manager.Teardown(ctx, reg)
		os.Exit(1)
	}

	manager.Teardown(ctx, reg)
	reg.TeardownAll(ctx)
	log.Info().Msg("Shutdown complete")
}
