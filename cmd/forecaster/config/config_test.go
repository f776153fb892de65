package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{name: "environment variable set", key: "TEST_VAR", defaultValue: "default", envValue: "from-env", want: "from-env"},
		{name: "environment variable not set", key: "NONEXISTENT_VAR", defaultValue: "default", want: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnvTyped(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty")
	t.Setenv("TEST_FLOAT", "0.85")
	t.Setenv("TEST_DURATION", "90m")
	t.Setenv("TEST_BOOL", "1")

	if got := getEnvInt("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt() = %d, want 42", got)
	}
	if got := getEnvInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt(invalid) = %d, want default 7", got)
	}
	if got := getEnvFloat("TEST_FLOAT", 1); got != 0.85 {
		t.Errorf("getEnvFloat() = %v, want 0.85", got)
	}
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 90*time.Minute {
		t.Errorf("getEnvDuration() = %v, want 90m", got)
	}
	if got := getEnvBool("TEST_BOOL", false); !got {
		t.Error("getEnvBool() = false, want true")
	}
	if got := getEnvBool("TEST_UNSET_BOOL", true); !got {
		t.Error("getEnvBool(unset) should return the default")
	}
}

func TestToLowerCamelCase(t *testing.T) {
	tests := map[string]string{
		"QUERY":         "query",
		"VALUE_PATH":    "valuePath",
		"PROJECT_ID":    "projectId",
		"CLIENT_SECRET": "clientSecret",
		"TIMESTAMP_FMT": "timestampFmt",
	}
	for in, want := range tests {
		if got := toLowerCamelCase(in); got != want {
			t.Errorf("toLowerCamelCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParsePrefixed(t *testing.T) {
	t.Setenv("ITSM_PROJECT_ID", "OPS")
	t.Setenv("ITSM_TOKEN", "secret")
	t.Setenv("ADAPTER_VALUE_PATH", "data.value")

	got := parsePrefixed("ITSM_")
	if got["projectId"] != "OPS" || got["token"] != "secret" {
		t.Errorf("parsePrefixed(ITSM_) = %v", got)
	}
	if _, ok := got["valuePath"]; ok {
		t.Error("ADAPTER_ variable leaked into ITSM_ map")
	}
}

func newFlags(t *testing.T, args ...string) (*Config, *pflag.FlagSet) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg := Bind(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return cfg, fs
}

func TestBind_Defaults(t *testing.T) {
	cfg, _ := newFlags(t)

	if cfg.Listen != ":8081" {
		t.Errorf("Listen = %q, want :8081", cfg.Listen)
	}
	if cfg.Mode != ModeLive {
		t.Errorf("Mode = %q, want live", cfg.Mode)
	}
	if cfg.Schedule != "0 6 * * *" {
		t.Errorf("Schedule = %q", cfg.Schedule)
	}
	if cfg.MinPoints != 14 || cfg.WindowDays != 7 {
		t.Errorf("MinPoints, WindowDays = %d, %d; want 14, 7", cfg.MinPoints, cfg.WindowDays)
	}
	if cfg.WarningSigma != 2 || cfg.CriticalSigma != 3 {
		t.Errorf("sigmas = %v, %v; want 2, 3", cfg.WarningSigma, cfg.CriticalSigma)
	}
	if cfg.Incident.HighDays != 14 || cfg.Incident.CriticalDays != 7 || cfg.Incident.UtilizationFraction != 0.9 {
		t.Errorf("incident thresholds = %+v", cfg.Incident)
	}
	if cfg.Parallelism != 1 {
		t.Errorf("Parallelism = %d, want 1", cfg.Parallelism)
	}
}

func TestLoad_SingleTargetFromFlags(t *testing.T) {
	t.Setenv("ADAPTER_QUERY", "disk_used_gb")
	cfg, fs := newFlags(t, "--metric=disk_d", "--capacity-total=1000", "--capacity-limit=85%", "--activity-metric=sessions")

	if err := cfg.Load(fs); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Targets) != 2 {
		t.Fatalf("len(Targets) = %d, want 2", len(cfg.Targets))
	}

	disk := cfg.Targets[0]
	if disk.Kind != KindCapacity || disk.Adapter != "prometheus" || disk.AdapterConfig["query"] != "disk_used_gb" {
		t.Errorf("capacity target = %+v", disk)
	}
	p, err := disk.Policy()
	if err != nil {
		t.Fatalf("Policy() error = %v", err)
	}
	if p.Ceiling() != 850 {
		t.Errorf("Ceiling() = %v, want 850", p.Ceiling())
	}

	sessions := cfg.Targets[1]
	if sessions.Kind != KindActivity || sessions.Aggregation != "sum" || sessions.LookbackDays != 30 {
		t.Errorf("activity target = %+v", sessions)
	}
}

func TestLoad_Synthetic(t *testing.T) {
	cfg, fs := newFlags(t, "--mode=synthetic")
	if err := cfg.Load(fs); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Targets) != 2 {
		t.Fatalf("len(Targets) = %d, want 2", len(cfg.Targets))
	}
	for _, tg := range cfg.Targets {
		if tg.Adapter != "synthetic" {
			t.Errorf("target %q adapter = %q, want synthetic", tg.Name, tg.Adapter)
		}
	}
	if cfg.Targets[1].AdapterConfig["profile"] != "activity" {
		t.Errorf("default activity target profile = %q", cfg.Targets[1].AdapterConfig["profile"])
	}
}

const sampleFile = `
schedule: "30 5 * * *"
sink: sqlite
dsn: ${TEST_FORESIGHT_DSN}
parallelism: 4
anomaly:
  windowDays: 14
  minStdDevFraction: 0
targets:
  - name: disk_d
    kind: capacity
    adapter: sql
    adapterConfig:
      driver: sqlite
      dsn: file:metrics.db
      query: SELECT date AS ts, used_gb AS value FROM disk_usage WHERE date >= ?
    total: 500
    limit: p90
  - name: query_volume
    kind: activity
    adapter: prometheus
    adapterConfig:
      query: sum(increase(queries_total[1h]))
    aggregation: sum
incident:
  backend: youtrack
  criticalDays: 5
  settings:
    url: https://yt.example.com
    projectId: "0-1"
    token: from-file
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "foresight.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_File(t *testing.T) {
	t.Setenv("TEST_FORESIGHT_DSN", "file:results.db")
	t.Setenv("ITSM_TOKEN", "from-env")
	path := writeFile(t, sampleFile)

	cfg, fs := newFlags(t, "--config="+path, "--parallelism=2")
	if err := cfg.Load(fs); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Schedule != "30 5 * * *" {
		t.Errorf("Schedule = %q", cfg.Schedule)
	}
	if cfg.Sink != "sqlite" || cfg.DSN != "file:results.db" {
		t.Errorf("Sink, DSN = %q, %q", cfg.Sink, cfg.DSN)
	}
	if cfg.Parallelism != 2 {
		t.Errorf("Parallelism = %d, want flag value 2", cfg.Parallelism)
	}
	if cfg.WindowDays != 14 || cfg.MinStdDevFraction != 0 {
		t.Errorf("anomaly settings = %d, %v", cfg.WindowDays, cfg.MinStdDevFraction)
	}
	if len(cfg.Targets) != 2 || cfg.Targets[0].Name != "disk_d" {
		t.Fatalf("Targets = %+v", cfg.Targets)
	}
	if p, _ := cfg.Targets[0].Policy(); p.Ceiling() != 450 {
		t.Errorf("Ceiling() = %v, want 450", p.Ceiling())
	}
	if cfg.Targets[0].Aggregation != "last" {
		t.Errorf("capacity default aggregation = %q", cfg.Targets[0].Aggregation)
	}
	if cfg.Incident.Backend != "youtrack" || cfg.Incident.CriticalDays != 5 {
		t.Errorf("Incident = %+v", cfg.Incident)
	}
	if cfg.Incident.Settings["token"] != "from-env" || cfg.Incident.Settings["projectId"] != "0-1" {
		t.Errorf("Incident.Settings = %v", cfg.Incident.Settings)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, fs := newFlags(t, "--config=/nonexistent/foresight.yaml")
	err := cfg.Load(fs)
	if !errors.Is(err, ErrConfigFileNotFound) {
		t.Errorf("Load() error = %v, want ErrConfigFileNotFound", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"bad mode", []string{"--mode=replay"}, "invalid mode"},
		{"sink without dsn", []string{"--sink=postgres"}, "requires --dsn"},
		{"bad storage", []string{"--storage=etcd"}, "invalid storage"},
		{"bad limit", []string{"--capacity-limit=120%"}, "limit"},
		{"negative total", []string{"--capacity-total=-5"}, "capacity total"},
		{"inverted sigmas", []string{"--warning-sigma=4"}, "sigma thresholds"},
		{"bad aggregation", []string{"--activity-metric=sessions", "--activity-aggregation=median"}, "unknown aggregation"},
		{"bad name", []string{"--metric=disk d"}, "invalid name"},
		{"critical above high", []string{"--incident-critical-days=20"}, "critical days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, fs := newFlags(t, tt.args...)
			err := cfg.Load(fs)
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
