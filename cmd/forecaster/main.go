// Command forecaster implements the Foresight capacity and activity engine.
//
// Each evaluation cycle:
//  1. Reads the daily history of every target from its source
//  2. Fits a linear trend to capacity targets and projects days to limit
//  3. Scores activity targets against a trailing z-score baseline
//  4. Commits forecasts, model quality and new anomalies to the sink
//  5. Opens incidents in the configured ITSM backend
//
// Commands:
//
//	forecaster run            one cycle, JSON report on stdout
//	forecaster serve          cycles on a cron schedule plus the HTTP API
//	forecaster incident-test  deliver a test incident to the backend
//
// Usage:
//
//	forecaster run \
//	  --source=prometheus \
//	  --metric=disk_usage \
//	  --capacity-total=500 --capacity-limit=85% \
//	  --sink=postgres --dsn=postgres://foresight@db/foresight
//
// Environment variables:
//
//	SOURCE          - Capacity adapter (default: prometheus)
//	ADAPTER_*       - Adapter settings, e.g. ADAPTER_URL, ADAPTER_QUERY
//	METRIC          - Capacity metric name (default: disk_usage)
//	CAPACITY_TOTAL  - Volume size, 0 reads it from the source
//	CAPACITY_LIMIT  - Limit as a fraction of the volume (default: 100%)
//	SINK, DSN       - Result sink: memory, postgres or sqlite
//	SCHEDULE        - Cron schedule of serve, UTC (default: 0 6 * * *)
//	ITSM_TYPE       - Incident backend; ITSM_* holds its settings
//	MODE            - live or synthetic (default: live)
//	LOG_LEVEL       - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT      - Logging format: text, json (default: text)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/HatiCode/foresight/cmd/forecaster/config"
	"github.com/HatiCode/foresight/cmd/forecaster/logger"
	"github.com/HatiCode/foresight/cmd/forecaster/metrics"
	"github.com/HatiCode/foresight/cmd/forecaster/models"
	"github.com/HatiCode/foresight/pkg/incident"
	"github.com/HatiCode/foresight/pkg/storage"
)

// version is set via ldflags at build time
var version = "dev"

// errCycleFailed makes `run` exit non-zero after printing its report.
var errCycleFailed = errors.New("cycle failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errCycleFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// cli carries the loaded configuration to the subcommands.
type cli struct {
	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "forecaster",
		Short:         "Capacity forecasting and activity anomaly detection",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.Load(cmd.Flags()); err != nil {
				return err
			}
			c.log = logger.New(c.cfg.LogFormat, c.cfg.LogLevel)
			slog.SetDefault(c.log)
			return nil
		},
	}
	c.cfg = config.Bind(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run one evaluation cycle and print its report",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnce(cmd.Context(), c.cfg, c.log, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Run cycles on a schedule and serve the HTTP API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context(), c.cfg, c.log)
			},
		},
		c.incidentTestCmd(),
	)
	return root
}

// app holds everything one process needs to run cycles.
type app struct {
	engine   *Engine
	sink     storage.Repository
	store    storage.Store
	registry *prometheus.Registry
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	log.Info("starting foresight forecaster",
		"version", version,
		"mode", cfg.Mode,
		"targets", len(cfg.Targets),
		"sink", cfg.Sink,
		"storage", cfg.Storage,
	)

	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cli, err := sourceClient(cfg)
	if err != nil {
		return nil, err
	}
	targets, err := buildTargets(cfg, cli, log)
	if err != nil {
		return nil, err
	}

	if a.sink, err = buildSink(ctx, cfg, log); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.sink.Close)

	store, closeStore, err := buildStore(cfg, log)
	if err != nil {
		a.close(log)
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	trigger, creator, err := buildIncidents(cfg, log)
	if err != nil {
		a.close(log)
		return nil, err
	}

	a.engine = &Engine{
		Targets:         targets,
		Trend:           models.NewTrend(cfg, log),
		Detector:        models.NewDetector(cfg, log),
		Sink:            a.sink,
		Store:           a.store,
		Trigger:         trigger,
		Creator:         creator,
		Parallelism:     cfg.Parallelism,
		DedupeAnomalies: cfg.DedupeAnomalies,
		Logger:          log,
		Metrics:         metrics.New(a.registry),
	}
	return a, nil
}

func (a *app) close(log *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Error("failed to close resource", "error", err)
		}
	}
}

func runOnce(ctx context.Context, cfg *config.Config, log *slog.Logger, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	report, cycleErr := a.engine.RunCycle(ctx)
	if cycleErr != nil {
		log.Error("cycle finished with failures", "error", cycleErr)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if report.Status == CycleFailed {
		return errCycleFailed
	}
	return nil
}

func (c *cli) incidentTestCmd() *cobra.Command {
	var summary string
	cmd := &cobra.Command{
		Use:   "incident-test",
		Short: "Deliver a test incident to the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, creator, err := buildIncidents(c.cfg, c.log)
			if err != nil {
				return err
			}
			if creator == nil {
				return errors.New("no incident backend configured (set --incident-backend or ITSM_TYPE)")
			}
			due := time.Now().UTC().AddDate(0, 0, 1)
			req := incident.Request{
				Summary:     summary,
				Description: "Test incident sent by `forecaster incident-test`. It can be closed.",
				Severity:    incident.SeverityLow,
				DueDate:     &due,
				Metric:      "incident_test",
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), incident.DefaultTimeout)
			defer cancel()
			id, err := incident.Deliver(ctx, creator, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s incident %s\n", creator.Name(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&summary, "summary", "Foresight incident test", "Summary of the test incident")
	return cmd
}
