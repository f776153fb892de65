// Package config provides configuration parsing for the forecaster.
//
// Every flag has an environment fallback, so the binary runs from flags,
// from the environment or from both; an explicitly set flag always wins.
// ADAPTER_* and ITSM_* variables are collected into generic settings maps
// with camelCase keys (ADAPTER_VALUE_PATH becomes valuePath).
//
// A YAML file (--config) can list several targets and the incident
// settings. Values in the file are expanded with ${VAR} from the
// environment and only fill in what flags and environment left at their
// defaults.
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Config file
//  4. Default values
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/HatiCode/foresight/pkg/capacity"
	"github.com/HatiCode/foresight/pkg/series"
	"github.com/HatiCode/foresight/pkg/tls"
)

// Modes of the run command.
const (
	ModeLive      = "live"
	ModeSynthetic = "synthetic"
)

// Target kinds.
const (
	KindCapacity = "capacity"
	KindActivity = "activity"
)

// Config holds all forecaster configuration.
type Config struct {
	ConfigFile string
	Listen     string
	GRPCListen string
	LogFormat  string
	LogLevel   string
	TLS        tls.Config
	SourceTLS  tls.Config

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	Sink string
	DSN  string

	Mode            string
	Schedule        string
	RunOnStart      bool
	Parallelism     int
	ReadTimeout     time.Duration
	StaleAfter      time.Duration
	DedupeAnomalies bool

	// Single-target settings, used when the config file has no targets.
	Source               string
	AdapterConfig        map[string]string
	Metric               string
	CapacityTotal        float64
	CapacityLimit        string
	LookbackDays         int
	ActivityMetric       string
	ActivitySource       string
	ActivityConfig       map[string]string
	ActivityAggregation  string
	ActivityLookbackDays int

	MinPoints         int
	WindowDays        int
	WarningSigma      float64
	CriticalSigma     float64
	MinStdDevFraction float64

	Incident IncidentConfig

	Targets []TargetConfig
}

// IncidentConfig selects the incident backend and the trigger thresholds.
type IncidentConfig struct {
	Backend             string            `yaml:"backend"`
	Settings            map[string]string `yaml:"settings"`
	HighDays            int               `yaml:"highDays"`
	CriticalDays        int               `yaml:"criticalDays"`
	UtilizationFraction float64           `yaml:"utilization"`
	OnWarning           bool              `yaml:"onWarning"`
}

// TargetConfig describes one metric to evaluate.
type TargetConfig struct {
	Name          string            `yaml:"name"`
	Kind          string            `yaml:"kind"`
	Adapter       string            `yaml:"adapter"`
	AdapterConfig map[string]string `yaml:"adapterConfig"`
	// Field is the row column to read; defaults to "value".
	Field        string `yaml:"field"`
	Aggregation  string `yaml:"aggregation"`
	LookbackDays int    `yaml:"lookbackDays"`
	// Total and Limit define the capacity ceiling; Limit accepts "85%",
	// "p85" or "0.85". A Total of 0 takes the volume size from the
	// source's total column at every cycle.
	Total float64 `yaml:"total"`
	Limit string  `yaml:"limit"`
}

// Policy returns the capacity policy of a capacity target. Total is 0
// when it comes from the source.
func (t TargetConfig) Policy() (capacity.Policy, error) {
	frac := 1.0
	if t.Limit != "" {
		f, err := capacity.ParseFraction(t.Limit)
		if err != nil {
			return capacity.Policy{}, fmt.Errorf("target %q: limit: %w", t.Name, err)
		}
		frac = f
	}
	p := capacity.Policy{Total: t.Total, Fraction: frac}
	if t.Total == 0 {
		return p, nil
	}
	if err := p.Validate(); err != nil {
		return capacity.Policy{}, fmt.Errorf("target %q: %w", t.Name, err)
	}
	return p, nil
}

// Bind registers every flag on fs with its environment fallback and
// returns the Config they fill.
func Bind(fs *pflag.FlagSet) *Config {
	cfg := &Config{}

	fs.StringVar(&cfg.ConfigFile, "config", getEnv("CONFIG_FILE", ""), "YAML config file with targets and incident settings")
	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8081"), "HTTP listen address")
	fs.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ":8082"), "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Serve HTTP and gRPC over TLS")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "CA file; enables client certificate verification")
	fs.BoolVar(&cfg.SourceTLS.Enabled, "source-tls-enabled", getEnvBool("SOURCE_TLS_ENABLED", false), "Use custom TLS settings for metric sources")
	fs.StringVar(&cfg.SourceTLS.CertFile, "source-tls-cert-file", getEnv("SOURCE_TLS_CERT_FILE", ""), "Client certificate for metric sources")
	fs.StringVar(&cfg.SourceTLS.KeyFile, "source-tls-key-file", getEnv("SOURCE_TLS_KEY_FILE", ""), "Client key for metric sources")
	fs.StringVar(&cfg.SourceTLS.CAFile, "source-tls-ca-file", getEnv("SOURCE_TLS_CA_FILE", ""), "CA file for metric sources")

	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Snapshot store: memory or redis")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 48*time.Hour), "Redis snapshot TTL")

	fs.StringVar(&cfg.Sink, "sink", getEnv("SINK", "memory"), "Result sink: memory, postgres or sqlite")
	fs.StringVar(&cfg.DSN, "dsn", getEnv("DSN", ""), "Sink data source name")

	fs.StringVar(&cfg.Mode, "mode", getEnv("MODE", ModeLive), "Data mode: live or synthetic")
	fs.StringVar(&cfg.Schedule, "schedule", getEnv("SCHEDULE", "0 6 * * *"), "Cron schedule of the serve command (UTC)")
	fs.BoolVar(&cfg.RunOnStart, "run-on-start", getEnvBool("RUN_ON_START", true), "Run one cycle when serve starts")
	fs.IntVar(&cfg.Parallelism, "parallelism", getEnvInt("PARALLELISM", 1), "Targets evaluated concurrently")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", getEnvDuration("READ_TIMEOUT", series.DefaultTimeout), "Timeout of one source read")
	fs.DurationVar(&cfg.StaleAfter, "stale-after", getEnvDuration("STALE_AFTER", 48*time.Hour), "Age after which a status is reported stale")
	fs.BoolVar(&cfg.DedupeAnomalies, "dedupe-anomalies", getEnvBool("DEDUPE_ANOMALIES", true), "Skip anomalies already recorded for the same metric and day")

	fs.StringVar(&cfg.Source, "source", getEnv("SOURCE", "prometheus"), "Capacity adapter: prometheus, victoriametrics, http, sql or synthetic")
	fs.StringVar(&cfg.Metric, "metric", getEnv("METRIC", "disk_usage"), "Capacity metric name")
	fs.Float64Var(&cfg.CapacityTotal, "capacity-total", getEnvFloat("CAPACITY_TOTAL", 500), "Volume size in the unit of the series (0 reads it from the source)")
	fs.StringVar(&cfg.CapacityLimit, "capacity-limit", getEnv("CAPACITY_LIMIT", "100%"), "Fraction of the volume considered the limit, e.g. 85%")
	fs.IntVar(&cfg.LookbackDays, "lookback-days", getEnvInt("LOOKBACK_DAYS", 90), "Capacity history in days")
	fs.StringVar(&cfg.ActivityMetric, "activity-metric", getEnv("ACTIVITY_METRIC", ""), "Activity metric name (empty disables)")
	fs.StringVar(&cfg.ActivitySource, "activity-source", getEnv("ACTIVITY_SOURCE", ""), "Activity adapter (defaults to --source)")
	fs.StringVar(&cfg.ActivityAggregation, "activity-aggregation", getEnv("ACTIVITY_AGGREGATION", "sum"), "Daily aggregation of activity rows: sum, mean, max or last")
	fs.IntVar(&cfg.ActivityLookbackDays, "activity-lookback-days", getEnvInt("ACTIVITY_LOOKBACK_DAYS", 30), "Activity history in days")

	fs.IntVar(&cfg.MinPoints, "min-points", getEnvInt("MIN_POINTS", 14), "Minimum daily points to fit a trend")
	fs.IntVar(&cfg.WindowDays, "window-days", getEnvInt("WINDOW_DAYS", 7), "Anomaly baseline window in days")
	fs.Float64Var(&cfg.WarningSigma, "warning-sigma", getEnvFloat("WARNING_SIGMA", 2), "Anomaly warning threshold")
	fs.Float64Var(&cfg.CriticalSigma, "critical-sigma", getEnvFloat("CRITICAL_SIGMA", 3), "Anomaly critical threshold")
	fs.Float64Var(&cfg.MinStdDevFraction, "min-stddev-fraction", getEnvFloat("MIN_STDDEV_FRACTION", 0.01), "Floor of the baseline stddev as a fraction of its mean")

	fs.StringVar(&cfg.Incident.Backend, "incident-backend", getEnv("ITSM_TYPE", "none"), "Incident backend: jira, youtrack, servicenow, redmine, gitlab, telegram, webhook or none")
	fs.IntVar(&cfg.Incident.HighDays, "incident-high-days", getEnvInt("INCIDENT_HIGH_DAYS", 14), "Open a high incident below this many days to limit")
	fs.IntVar(&cfg.Incident.CriticalDays, "incident-critical-days", getEnvInt("INCIDENT_CRITICAL_DAYS", 7), "Open a critical incident below this many days to limit")
	fs.Float64Var(&cfg.Incident.UtilizationFraction, "incident-utilization", getEnvFloat("INCIDENT_UTILIZATION", 0.9), "Open a high incident at this fraction of the limit (0 disables)")
	fs.BoolVar(&cfg.Incident.OnWarning, "incident-on-warning", getEnvBool("INCIDENT_ON_WARNING", false), "Open medium incidents for warning anomalies")

	return cfg
}

// Load completes cfg after flags are parsed: it collects the prefixed
// environment maps, merges the config file and validates the result.
func (cfg *Config) Load(fs *pflag.FlagSet) error {
	cfg.AdapterConfig = parsePrefixed("ADAPTER_")
	cfg.ActivityConfig = parsePrefixed("ACTIVITY_ADAPTER_")
	cfg.Incident.Settings = parsePrefixed("ITSM_")
	delete(cfg.Incident.Settings, "type")

	if cfg.ConfigFile != "" {
		f, err := ReadFile(cfg.ConfigFile)
		if err != nil {
			return err
		}
		cfg.merge(f, fs)
	}

	if len(cfg.Targets) == 0 {
		cfg.Targets = cfg.flagTargets()
	}
	if cfg.Mode == ModeSynthetic {
		cfg.Targets = synthesize(cfg.Targets)
	}
	return cfg.Validate()
}

// flagTargets builds the targets described by single-target flags.
func (cfg *Config) flagTargets() []TargetConfig {
	targets := []TargetConfig{{
		Name:          cfg.Metric,
		Kind:          KindCapacity,
		Adapter:       cfg.Source,
		AdapterConfig: cfg.AdapterConfig,
		LookbackDays:  cfg.LookbackDays,
		Total:         cfg.CapacityTotal,
		Limit:         cfg.CapacityLimit,
	}}
	if cfg.ActivityMetric != "" {
		src := cfg.ActivitySource
		if src == "" {
			src = cfg.Source
		}
		targets = append(targets, TargetConfig{
			Name:          cfg.ActivityMetric,
			Kind:          KindActivity,
			Adapter:       src,
			AdapterConfig: cfg.ActivityConfig,
			Aggregation:   cfg.ActivityAggregation,
			LookbackDays:  cfg.ActivityLookbackDays,
		})
	}
	return targets
}

// synthesize points every target at generated data. Without an activity
// target a default one is added so both flows run.
func synthesize(targets []TargetConfig) []TargetConfig {
	out := make([]TargetConfig, 0, len(targets)+1)
	hasActivity := false
	for i, t := range targets {
		profile := "capacity"
		if t.Kind == KindActivity {
			profile = "activity"
			hasActivity = true
		}
		t.Adapter = "synthetic"
		t.AdapterConfig = map[string]string{"profile": profile, "seed": fmt.Sprint(i + 1)}
		out = append(out, t)
	}
	if !hasActivity {
		out = append(out, TargetConfig{
			Name:          "session_count",
			Kind:          KindActivity,
			Adapter:       "synthetic",
			AdapterConfig: map[string]string{"profile": "activity", "seed": fmt.Sprint(len(targets) + 1)},
			Aggregation:   string(series.AggSum),
			LookbackDays:  30,
		})
	}
	return out
}

var metricNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_.:-]{0,251}[a-zA-Z0-9])?$`)

// Validate checks the configuration and fills per-target defaults.
func (cfg *Config) Validate() error {
	var errs []error

	switch cfg.Mode {
	case ModeLive, ModeSynthetic:
	default:
		errs = append(errs, fmt.Errorf("invalid mode %q (must be live or synthetic)", cfg.Mode))
	}
	switch cfg.Sink {
	case "memory":
	case "postgres", "sqlite":
		if cfg.DSN == "" {
			errs = append(errs, fmt.Errorf("sink %s requires --dsn", cfg.Sink))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid sink %q (must be memory, postgres or sqlite)", cfg.Sink))
	}
	if cfg.Storage != "memory" && cfg.Storage != "redis" {
		errs = append(errs, fmt.Errorf("invalid storage %q (must be memory or redis)", cfg.Storage))
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.MinPoints < 2 {
		errs = append(errs, errors.New("min-points must be >= 2"))
	}
	if cfg.WindowDays < 2 {
		errs = append(errs, errors.New("window-days must be >= 2"))
	}
	if cfg.WarningSigma <= 0 || cfg.CriticalSigma < cfg.WarningSigma {
		errs = append(errs, errors.New("sigma thresholds must satisfy 0 < warning <= critical"))
	}
	if cfg.MinStdDevFraction < 0 {
		errs = append(errs, errors.New("min-stddev-fraction cannot be negative"))
	}
	if cfg.Incident.UtilizationFraction < 0 || cfg.Incident.UtilizationFraction > 1 {
		errs = append(errs, errors.New("incident utilization must be in [0, 1]"))
	}
	if cfg.Incident.CriticalDays > cfg.Incident.HighDays {
		errs = append(errs, errors.New("incident critical days cannot exceed high days"))
	}
	if err := cfg.TLS.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tls: %w", err))
	}

	if len(cfg.Targets) == 0 {
		errs = append(errs, errors.New("no targets configured"))
	}
	seen := make(map[string]bool)
	for i := range cfg.Targets {
		if err := validateTarget(&cfg.Targets[i], i); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[cfg.Targets[i].Name] {
			errs = append(errs, fmt.Errorf("target %q: duplicate name", cfg.Targets[i].Name))
		}
		seen[cfg.Targets[i].Name] = true
	}
	return errors.Join(errs...)
}

func validateTarget(t *TargetConfig, index int) error {
	if t.Name == "" {
		return fmt.Errorf("target[%d]: name cannot be empty", index)
	}
	if !metricNameRegex.MatchString(t.Name) {
		return fmt.Errorf("target[%d]: invalid name %q", index, t.Name)
	}
	if t.Adapter == "" {
		return fmt.Errorf("target %q: adapter cannot be empty", t.Name)
	}
	if t.Field == "" {
		t.Field = "value"
	}

	switch t.Kind {
	case KindCapacity:
		if t.LookbackDays <= 0 {
			t.LookbackDays = 90
		}
		if t.Aggregation == "" {
			t.Aggregation = string(series.AggLast)
		}
		if _, err := t.Policy(); err != nil {
			return err
		}
	case KindActivity:
		if t.LookbackDays <= 0 {
			t.LookbackDays = 30
		}
		if t.Aggregation == "" {
			t.Aggregation = string(series.AggSum)
		}
	default:
		return fmt.Errorf("target %q: invalid kind %q (must be capacity or activity)", t.Name, t.Kind)
	}
	if _, err := series.ParseAggregation(t.Aggregation); err != nil {
		return fmt.Errorf("target %q: %w", t.Name, err)
	}
	return nil
}

// parsePrefixed collects environment variables starting with prefix into
// a map keyed by the lowerCamelCase remainder (ITSM_PROJECT_ID → projectId).
func parsePrefixed(prefix string) map[string]string {
	config := make(map[string]string)
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
			continue
		}
		config[toLowerCamelCase(key[len(prefix):])] = value
	}
	return config
}

func toLowerCamelCase(s string) string {
	var b strings.Builder
	nextUpper := false
	for i, r := range strings.ToLower(s) {
		if r == '_' {
			nextUpper = i > 0
			continue
		}
		if nextUpper {
			r = toUpper(r)
			nextUpper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - 32
	}
	return r
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
