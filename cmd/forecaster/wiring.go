package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/HatiCode/foresight/cmd/forecaster/config"
	"github.com/HatiCode/foresight/pkg/adapters"
	"github.com/HatiCode/foresight/pkg/httpx"
	"github.com/HatiCode/foresight/pkg/incident"
	"github.com/HatiCode/foresight/pkg/series"
	"github.com/HatiCode/foresight/pkg/storage"
)

// buildTargets creates one reader per configured target. Every HTTP-based
// adapter shares cli.
func buildTargets(cfg *config.Config, cli *http.Client, logger *slog.Logger) ([]Target, error) {
	targets := make([]Target, 0, len(cfg.Targets))
	for _, tc := range cfg.Targets {
		adapter, err := adapters.New(tc.Adapter, tc.AdapterConfig, adapters.DefaultStepSeconds)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", tc.Name, err)
		}
		if cli != nil {
			adapters.UseHTTPClient(adapter, cli)
		}

		opts := []series.Option{
			series.WithField(tc.Field),
			series.WithTimeout(cfg.ReadTimeout),
			series.WithLogger(logger),
		}
		if tc.Aggregation != "" {
			agg, err := series.ParseAggregation(tc.Aggregation)
			if err != nil {
				return nil, fmt.Errorf("target %q: %w", tc.Name, err)
			}
			opts = append(opts, series.WithAggregation(agg))
		}

		t := Target{
			Name:         tc.Name,
			Kind:         tc.Kind,
			Reader:       series.NewReader(tc.Name, adapter, opts...),
			LookbackDays: tc.LookbackDays,
		}
		if tc.Kind == config.KindCapacity {
			if t.Policy, err = tc.Policy(); err != nil {
				return nil, err
			}
		}
		logger.Info("target configured",
			"metric", tc.Name,
			"kind", tc.Kind,
			"adapter", adapter.Name(),
			"lookback_days", tc.LookbackDays,
		)
		targets = append(targets, t)
	}
	return targets, nil
}

// buildSink opens the result sink selected by cfg.Sink.
func buildSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Repository, error) {
	switch cfg.Sink {
	case "memory", "":
		logger.Info("using in-memory sink")
		return storage.NewMemorySink(), nil
	case storage.DialectPostgres, storage.DialectSQLite:
		logger.Info("using SQL sink", "dialect", cfg.Sink)
		return storage.OpenSQL(ctx, cfg.Sink, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}

// buildStore creates the snapshot store selected by cfg.Storage.
func buildStore(cfg *config.Config, logger *slog.Logger) (storage.Store, func() error, error) {
	switch cfg.Storage {
	case "redis":
		logger.Info("using Redis snapshot store", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.RedisTTL)
		s, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "memory", "":
		logger.Info("using in-memory snapshot store", "ttl", cfg.RedisTTL)
		s := storage.NewMemoryStoreWithTTL(cfg.RedisTTL, 0)
		return s, func() error { s.Stop(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

// buildIncidents returns the trigger and the backend. The backend is nil
// when incidents are disabled.
func buildIncidents(cfg *config.Config, logger *slog.Logger) (*incident.Trigger, incident.Creator, error) {
	trigger := incident.NewTrigger()
	if cfg.Incident.HighDays > 0 {
		trigger.HighDays = cfg.Incident.HighDays
	}
	if cfg.Incident.CriticalDays > 0 {
		trigger.CriticalDays = cfg.Incident.CriticalDays
	}
	trigger.UtilizationFraction = cfg.Incident.UtilizationFraction
	trigger.IncidentOnWarning = cfg.Incident.OnWarning

	creator, err := incident.New(cfg.Incident.Backend, cfg.Incident.Settings)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := creator.(incident.Noop); ok {
		logger.Info("incident delivery disabled")
		return trigger, nil, nil
	}
	logger.Info("incident backend configured",
		"backend", creator.Name(),
		"high_days", trigger.HighDays,
		"critical_days", trigger.CriticalDays,
	)
	return trigger, creator, nil
}

// sourceClient returns the HTTP client of metric sources, or nil to keep
// each adapter's default.
func sourceClient(cfg *config.Config) (*http.Client, error) {
	if !cfg.SourceTLS.Enabled {
		return nil, nil
	}
	return httpx.NewClient(cfg.SourceTLS, cfg.ReadTimeout)
}
