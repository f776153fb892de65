package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ErrConfigFileNotFound is returned when --config names a missing file.
var ErrConfigFileNotFound = errors.New("config file not found")

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// File is the YAML config file.
//
//	schedule: "0 6 * * *"
//	sink: postgres
//	dsn: ${FORESIGHT_DSN}
//	targets:
//	  - name: disk_d
//	    kind: capacity
//	    adapter: prometheus
//	    adapterConfig:
//	      url: http://prometheus:9090
//	      query: windows_logical_disk_used_bytes{volume="D:"} / 1e9
//	    total: 500
//	    limit: 85%
//	incident:
//	  backend: jira
//	  settings:
//	    url: https://acme.atlassian.net
//	    token: ${JIRA_TOKEN}
type File struct {
	Schedule    string          `yaml:"schedule"`
	Sink        string          `yaml:"sink"`
	DSN         string          `yaml:"dsn"`
	Parallelism int             `yaml:"parallelism"`
	StaleAfter  Duration        `yaml:"staleAfter"`
	Anomaly     AnomalyFile     `yaml:"anomaly"`
	Targets     []TargetConfig  `yaml:"targets"`
	Incident    *IncidentConfig `yaml:"incident"`
}

// AnomalyFile holds detector settings. Pointers tell an explicit 0 from
// an absent key.
type AnomalyFile struct {
	WindowDays        int      `yaml:"windowDays"`
	WarningSigma      *float64 `yaml:"warningSigma"`
	CriticalSigma     *float64 `yaml:"criticalSigma"`
	MinStdDevFraction *float64 `yaml:"minStdDevFraction"`
}

// Duration wraps time.Duration with YAML string parsing.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ReadFile parses the YAML file at path after expanding ${VAR}
// placeholders from the environment. Unset variables expand to "".
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	f := &File{}
	if len(data) == 0 {
		return f, nil
	}
	if err := yaml.Unmarshal(expandEnvVars(data), f); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return f, nil
}

func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		return []byte(os.Getenv(string(match[2 : len(match)-1])))
	})
}

// merge copies file values into cfg wherever the flag was not set and its
// environment variable is empty.
func (cfg *Config) merge(f *File, fs *pflag.FlagSet) {
	explicit := func(flag, env string) bool {
		return (fs != nil && fs.Changed(flag)) || os.Getenv(env) != ""
	}

	if f.Schedule != "" && !explicit("schedule", "SCHEDULE") {
		cfg.Schedule = f.Schedule
	}
	if f.Sink != "" && !explicit("sink", "SINK") {
		cfg.Sink = f.Sink
	}
	if f.DSN != "" && !explicit("dsn", "DSN") {
		cfg.DSN = f.DSN
	}
	if f.Parallelism > 0 && !explicit("parallelism", "PARALLELISM") {
		cfg.Parallelism = f.Parallelism
	}
	if f.StaleAfter.Duration > 0 && !explicit("stale-after", "STALE_AFTER") {
		cfg.StaleAfter = f.StaleAfter.Duration
	}

	if f.Anomaly.WindowDays > 0 && !explicit("window-days", "WINDOW_DAYS") {
		cfg.WindowDays = f.Anomaly.WindowDays
	}
	if f.Anomaly.WarningSigma != nil && !explicit("warning-sigma", "WARNING_SIGMA") {
		cfg.WarningSigma = *f.Anomaly.WarningSigma
	}
	if f.Anomaly.CriticalSigma != nil && !explicit("critical-sigma", "CRITICAL_SIGMA") {
		cfg.CriticalSigma = *f.Anomaly.CriticalSigma
	}
	if f.Anomaly.MinStdDevFraction != nil && !explicit("min-stddev-fraction", "MIN_STDDEV_FRACTION") {
		cfg.MinStdDevFraction = *f.Anomaly.MinStdDevFraction
	}

	cfg.Targets = append(cfg.Targets, f.Targets...)

	if in := f.Incident; in != nil {
		if in.Backend != "" && !explicit("incident-backend", "ITSM_TYPE") {
			cfg.Incident.Backend = in.Backend
		}
		if in.HighDays > 0 && !explicit("incident-high-days", "INCIDENT_HIGH_DAYS") {
			cfg.Incident.HighDays = in.HighDays
		}
		if in.CriticalDays > 0 && !explicit("incident-critical-days", "INCIDENT_CRITICAL_DAYS") {
			cfg.Incident.CriticalDays = in.CriticalDays
		}
		if in.UtilizationFraction > 0 && !explicit("incident-utilization", "INCIDENT_UTILIZATION") {
			cfg.Incident.UtilizationFraction = in.UtilizationFraction
		}
		if in.OnWarning && !explicit("incident-on-warning", "INCIDENT_ON_WARNING") {
			cfg.Incident.OnWarning = true
		}
		settings := make(map[string]string, len(in.Settings)+len(cfg.Incident.Settings))
		for k, v := range in.Settings {
			settings[k] = v
		}
		for k, v := range cfg.Incident.Settings {
			settings[k] = v
		}
		cfg.Incident.Settings = settings
	}
}
