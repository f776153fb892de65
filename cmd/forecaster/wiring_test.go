package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/HatiCode/foresight/cmd/forecaster/config"
	"github.com/HatiCode/foresight/pkg/adapters"
	"github.com/HatiCode/foresight/pkg/incident"
	"github.com/HatiCode/foresight/pkg/storage"
)

func testConfig(targets ...config.TargetConfig) *config.Config {
	return &config.Config{
		Sink:        "memory",
		Storage:     "memory",
		ReadTimeout: 5 * time.Second,
		RedisTTL:    time.Hour,
		Targets:     targets,
		Incident:    config.IncidentConfig{Backend: "none"},
	}
}

func TestBuildTargets_Prometheus(t *testing.T) {
	cfg := testConfig(config.TargetConfig{
		Name:    "disk_d",
		Kind:    config.KindCapacity,
		Adapter: "prometheus",
		AdapterConfig: map[string]string{
			"url":   "http://prometheus:9090",
			"query": `max_over_time(disk_used_gb{volume="D:"}[1d])`,
		},
		LookbackDays: 90,
		Total:        1000,
		Limit:        "85%",
	})

	cli := &http.Client{Timeout: time.Second}
	targets, err := buildTargets(cfg, cli, discardLogger())
	if err != nil {
		t.Fatalf("buildTargets failed: %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("expected 1 target, got %d", len(targets))
	}

	got := targets[0]
	if got.Name != "disk_d" || got.Kind != storage.KindCapacity || got.LookbackDays != 90 {
		t.Errorf("unexpected target %+v", got)
	}
	if c := got.Policy.Ceiling(); c != 850 {
		t.Errorf("expected ceiling 850, got %v", c)
	}
}

func TestBuildTargets_UseHTTPClient(t *testing.T) {
	a, err := adapters.New("victoriametrics", map[string]string{"url": "http://vm:8428", "query": "sum(sessions)"}, 0)
	if err != nil {
		t.Fatalf("adapters.New failed: %v", err)
	}
	cli := &http.Client{Timeout: time.Second}
	adapters.UseHTTPClient(a, cli)

	vm, ok := a.(*adapters.VictoriaMetricsAdapter)
	if !ok {
		t.Fatalf("expected *adapters.VictoriaMetricsAdapter, got %T", a)
	}
	if vm.HTTPClient != cli {
		t.Error("expected the shared client to be installed")
	}
	if vm.StepSeconds != adapters.DefaultStepSeconds {
		t.Errorf("expected StepSeconds %d, got %d", adapters.DefaultStepSeconds, vm.StepSeconds)
	}
}

func TestBuildTargets_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target config.TargetConfig
	}{
		{"unknown adapter", config.TargetConfig{Name: "x", Kind: config.KindCapacity, Adapter: "graphite", Total: 1}},
		{"missing query", config.TargetConfig{Name: "x", Kind: config.KindCapacity, Adapter: "prometheus", AdapterConfig: map[string]string{"url": "http://p"}, Total: 1}},
		{"bad aggregation", config.TargetConfig{Name: "x", Kind: config.KindActivity, Adapter: "synthetic", Aggregation: "median"}},
		{"bad limit", config.TargetConfig{Name: "x", Kind: config.KindCapacity, Adapter: "synthetic", Total: 1, Limit: "150%"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildTargets(testConfig(tt.target), nil, discardLogger()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestBuildSinkAndStore(t *testing.T) {
	log := discardLogger()
	ctx := context.Background()

	sink, err := buildSink(ctx, testConfig(), log)
	if err != nil {
		t.Fatalf("buildSink(memory) failed: %v", err)
	}
	if _, ok := sink.(*storage.MemorySink); !ok {
		t.Errorf("expected *storage.MemorySink, got %T", sink)
	}

	cfg := testConfig()
	cfg.Sink, cfg.DSN = "sqlite", ":memory:"
	sqlSink, err := buildSink(ctx, cfg, log)
	if err != nil {
		t.Fatalf("buildSink(sqlite) failed: %v", err)
	}
	defer sqlSink.Close()
	if _, ok := sqlSink.(*storage.SQLSink); !ok {
		t.Errorf("expected *storage.SQLSink, got %T", sqlSink)
	}

	cfg.Sink = "mongodb"
	if _, err := buildSink(ctx, cfg, log); err == nil {
		t.Error("expected error for unknown sink")
	}

	store, closeStore, err := buildStore(testConfig(), log)
	if err != nil {
		t.Fatalf("buildStore(memory) failed: %v", err)
	}
	if _, ok := store.(*storage.MemoryStore); !ok {
		t.Errorf("expected *storage.MemoryStore, got %T", store)
	}
	if err := closeStore(); err != nil {
		t.Errorf("close store: %v", err)
	}
}

func TestBuildIncidents(t *testing.T) {
	cfg := testConfig()
	cfg.Incident.HighDays = 21
	cfg.Incident.UtilizationFraction = 0.8

	trigger, creator, err := buildIncidents(cfg, discardLogger())
	if err != nil {
		t.Fatalf("buildIncidents failed: %v", err)
	}
	if creator != nil {
		t.Errorf("expected no creator for backend none, got %T", creator)
	}
	if trigger.HighDays != 21 || trigger.CriticalDays != incident.DefaultCriticalDays || trigger.UtilizationFraction != 0.8 {
		t.Errorf("unexpected trigger %+v", trigger)
	}

	cfg.Incident.Backend = "webhook"
	cfg.Incident.Settings = map[string]string{"url": "http://hooks.local/incidents"}
	_, creator, err = buildIncidents(cfg, discardLogger())
	if err != nil {
		t.Fatalf("buildIncidents(webhook) failed: %v", err)
	}
	if creator == nil || creator.Name() != "webhook" {
		t.Errorf("expected webhook creator, got %v", creator)
	}
}

func TestSyntheticCycle(t *testing.T) {
	cfg := testConfig(
		config.TargetConfig{
			Name: "disk_d", Kind: config.KindCapacity, Adapter: "synthetic",
			AdapterConfig: map[string]string{"profile": "capacity", "seed": "1"},
			LookbackDays:  90, Total: 500,
		},
		config.TargetConfig{
			Name: "session_count", Kind: config.KindActivity, Adapter: "synthetic",
			AdapterConfig: map[string]string{"profile": "activity", "seed": "2"},
			Aggregation:   "sum", LookbackDays: 30,
		},
	)
	cfg.MinPoints, cfg.WindowDays = 14, 7
	cfg.WarningSigma, cfg.CriticalSigma, cfg.MinStdDevFraction = 2, 3, 0.01
	cfg.Parallelism = 2
	cfg.DedupeAnomalies = true

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.close(log)

	report, err := a.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if report.Status == CycleFailed {
		t.Fatalf("synthetic cycle failed: %+v", report)
	}
	if len(report.Forecasts) != 1 {
		t.Fatalf("expected 1 forecast, got %d", len(report.Forecasts))
	}
	f := report.Forecasts[0]
	if f.GrowthRatePerDay <= 0 || f.Ceiling != 500 {
		t.Errorf("unexpected synthetic forecast %+v", f)
	}
	if _, ok := f.DaysToLimit.Get(); !ok {
		t.Error("growing synthetic capacity should have a bounded days to limit")
	}

	snaps, err := a.store.List(context.Background())
	if err != nil || len(snaps) != 2 {
		t.Errorf("expected 2 snapshots, got %d (%v)", len(snaps), err)
	}
}
