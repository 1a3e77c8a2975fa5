package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/admin"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/config"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/logging"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/observability"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/scenario"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/sim"
)

var (
	simPrintOnly    bool
	simConfigPath   string
	simSchemaPath   string
	simScenarioPath string
	simRunID        string
	simSeed         int64
	simSteps        int
	simNodes        int
	simGateways     int
	simInterval     float64
	simMode         string
	simPace         time.Duration
	simLogFile      string
	simCSVDir       string
	simTUI          bool
	simVerbose      bool
	simAdminAddr    string
	simLinger       bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a LoRa network simulation",
	Long:  "simulate steps a LoRa network of end devices and gateways and reports per-step statistics, delivery records and a run summary.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSimulationConfig(cmd)
		if err != nil {
			return err
		}

		var logOut io.Writer = os.Stderr
		if simTUI {
			logOut = io.Discard
		}
		logger := logging.NewWithOptions(logOut, cfg.Logging.Level, cfg.Logging.Format)
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, logger)

		shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(os.Getenv), logger)
		if err != nil {
			return err
		}
		defer observability.ShutdownWithTimeout(context.WithoutCancel(ctx), shutdown, logger)

		var sc *scenario.Scenario
		if simScenarioPath != "" {
			if sc, err = scenario.Load(simScenarioPath); err != nil {
				return err
			}
		}

		var collector *observability.SimCollector
		var extra []sim.StatsWriter
		if simAdminAddr != "" {
			if collector, err = observability.NewSimCollector(prometheus.NewRegistry()); err != nil {
				return err
			}
			extra = append(extra, collector)
		}

		writer, cleanup, err := newWriters(cfg, writerOptions{
			PrintOnly: simPrintOnly,
			TUI:       simTUI,
			Verbose:   simVerbose,
			LogFile:   simLogFile,
			CSVDir:    simCSVDir,
			Extra:     extra,
		})
		if err != nil {
			return err
		}
		defer cleanup()

		runID := simRunID
		if runID == "" {
			runID = uuid.NewString()
		}
		opts := []sim.Option{sim.WithLogger(logger)}
		if sc != nil {
			opts = append(opts, sim.WithScenario(sc))
		}
		simulator, err := sim.NewSimulator(runID, cfg, writer, opts...)
		if err != nil {
			return err
		}

		if simAdminAddr != "" {
			srv := admin.NewServer(simulator, metricsHandler(simulator, collector))
			go func() {
				logger.Info("admin UI listening", "addr", simAdminAddr)
				if err := srv.Start(ctx, simAdminAddr); err != nil {
					logger.Error("admin server failed", "err", err)
				}
			}()
			if aw, ok := writer.(sim.AdminStatusWriter); ok {
				aw.SetAdminStatus(true)
			}
		}

		runErr := simulator.Run(ctx)
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			return runErr
		}
		// The partial run is still finalized after an interrupt.
		if _, err := simulator.Finalize(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		if collector != nil {
			collector.SetSFDistribution(simulator.Metrics().SFDistribution)
		}

		if simLinger && simAdminAddr != "" && runErr == nil {
			logger.Info("run finished, admin UI stays up until interrupted", "addr", simAdminAddr)
			<-ctx.Done()
		}
		logger.Info("simulation stopped", "run_id", runID)
		return nil
	},
}

// loadSimulationConfig reads the YAML file, applies env vars and flag
// overrides, then validates the result.
func loadSimulationConfig(cmd *cobra.Command) (*config.SimulationConfig, error) {
	var cfg *config.SimulationConfig
	if simConfigPath == "" {
		cfg = config.Default()
	} else {
		var err error
		if cfg, err = config.Load(simConfigPath, simSchemaPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("seed") {
		seed := simSeed
		cfg.Run.Seed = &seed
	}
	if flags.Changed("steps") {
		cfg.Run.Steps = simSteps
	}
	if flags.Changed("nodes") {
		cfg.Nodes.Count = simNodes
		cfg.Nodes.Positions = nil
	}
	if flags.Changed("gateways") {
		cfg.Gateways.Count = simGateways
		cfg.Gateways.Positions = nil
	}
	if flags.Changed("interval") {
		cfg.Nodes.Interval = simInterval
	}
	if flags.Changed("mode") {
		cfg.Nodes.TrafficMode = simMode
	}
	if flags.Changed("pace") {
		cfg.Run.Pace = simPace
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config overrides: %w", err)
	}
	return cfg, nil
}

// metricsHandler refreshes the spreading factor gauges before each scrape.
func metricsHandler(s *sim.Simulator, c *observability.SimCollector) http.Handler {
	if c == nil {
		return nil
	}
	h := c.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.SetSFDistribution(s.Metrics().SFDistribution)
		h.ServeHTTP(w, r)
	})
}

func init() {
	f := simulateCmd.Flags()
	f.BoolVar(&simPrintOnly, "print-only", false, "Print statistics to STDOUT instead of writing to DB")
	f.StringVar(&simConfigPath, "config", "config/simulation.yaml", "Path to simulation configuration YAML (empty for built-in defaults)")
	f.StringVar(&simSchemaPath, "schema", "schemas/simulation.cue", "Path to CUE schema file")
	f.StringVar(&simScenarioPath, "scenario", "", "Path to a scenario YAML with traffic phases")
	f.StringVar(&simRunID, "run-id", "", "Run identifier (random UUID when empty)")
	f.Int64Var(&simSeed, "seed", 0, "Random seed (drawn and logged when unset)")
	f.IntVar(&simSteps, "steps", 0, "Number of simulation steps")
	f.IntVar(&simNodes, "nodes", 0, "Number of end devices")
	f.IntVar(&simGateways, "gateways", 0, "Number of gateways")
	f.Float64Var(&simInterval, "interval", 0, "Mean transmission interval in seconds")
	f.StringVar(&simMode, "mode", "", "Traffic mode: random or periodic")
	f.DurationVar(&simPace, "pace", 0, "Wall-clock delay between steps (e.g. 200ms)")
	f.StringVar(&simLogFile, "log-file", "", "Path to export step statistics (JSONL); events and deliveries go to .events and .deliveries")
	f.StringVar(&simCSVDir, "csv-dir", "", "Directory for stats.csv, deliveries.csv and summary.csv")
	f.BoolVar(&simTUI, "tui", false, "Show the interactive terminal UI")
	f.BoolVar(&simVerbose, "verbose", false, "Print every finished transmission")
	f.StringVar(&simAdminAddr, "admin-addr", "", "Serve the admin UI and /metrics on this address (e.g. :8080)")
	f.BoolVar(&simLinger, "linger", false, "Keep the admin UI running after the last step until interrupted")
}
