package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mlegrand/fleetdeck/internal/alerts"
	"github.com/mlegrand/fleetdeck/internal/api"
	"github.com/mlegrand/fleetdeck/internal/config"
	"github.com/mlegrand/fleetdeck/internal/history"
	"github.com/mlegrand/fleetdeck/internal/logging"
	"github.com/mlegrand/fleetdeck/internal/models"
	"github.com/mlegrand/fleetdeck/internal/refresh"
	"github.com/mlegrand/fleetdeck/internal/scorecard"
	"github.com/mlegrand/fleetdeck/internal/sources"
	"github.com/mlegrand/fleetdeck/internal/websocket"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "fleetdeck",
	Short:   "FleetDeck - fleet health aggregation server",
	Long:    `FleetDeck aggregates service health, agent status, system metrics and organizational data into one dashboard state.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("FleetDeck %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "fleetdeck",
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "fleetdeck",
	})

	log.Info().Str("version", Version).Msg("Starting FleetDeck server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	state := models.NewState()
	recorder := history.NewRecorder(cfg.EventCap, cfg.HistoryCap)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := scorecard.NewCollector(registry)

	orgStore, err := sources.NewOrgStore(cfg.OrgDBPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.OrgDBPath).Msg("Organizational store unavailable")
	} else {
		defer orgStore.Close()
	}

	deps := refresh.Deps{
		State:     state,
		Config:    cfg,
		Health:    sources.NewHealthChecker(cfg.HealthCheckTimeout, cfg.SelfID),
		System:    sources.NewSystemSampler("/"),
		Agents:    sources.NewAgentSampler(),
		Recorder:  recorder,
		Evaluator: alerts.NewEvaluator(cfg.Thresholds),
		Scorecard: collector,
	}
	if orgStore != nil {
		deps.Org = orgStore
	}
	orchestrator := refresh.New(deps)

	orchestrator.SeedFromFiles()

	wsHub := websocket.NewHub(func() interface{} {
		return state.GetSnapshot()
	})
	go wsHub.Run(ctx)

	orchestrator.SetCycleCallback(func(snapshot models.Snapshot, outcome models.RefreshOutcome) {
		wsHub.BroadcastState(snapshot)
		wsHub.BroadcastOutcome(outcome)
	})

	if cfg.BootstrapPath != "" {
		watcher, err := config.NewBootstrapWatcher(cfg.BootstrapPath, func(path string) {
			log.Info().Str("path", path).Msg("Bootstrap file changed, reseeding")
			orchestrator.SeedFromBootstrap()
		})
		if err != nil {
			log.Warn().Err(err).Msg("Bootstrap watcher unavailable, file changes will require restart")
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	go orchestrator.Start(ctx)

	router := api.NewRouter(api.Deps{
		Config:    cfg,
		State:     state,
		Refresher: orchestrator,
		Recorder:  recorder,
		Scorer:    collector,
		Hub:       wsHub,
		Registry:  registry,
		Version: api.VersionInfo{
			Version:   Version,
			BuildTime: BuildTime,
			GitCommit: GitCommit,
		},
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}
