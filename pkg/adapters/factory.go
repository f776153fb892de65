package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// New creates an adapter based on kind and generic configuration map.
// The map usually comes from ADAPTER_* environment variables or a target's
// adapter block in the YAML config.
//
// Supported kinds:
//   - "prometheus": Prometheus adapter (url, query)
//   - "victoriametrics": VictoriaMetrics adapter (url, query)
//   - "http": Generic HTTP adapter (url, valuePath, timestampPath, ...)
//   - "sql": SQL rollup table adapter (driver, dsn, query)
//   - "synthetic": generated data (profile, seed, noise)
//
// Returns error if kind is unknown or required fields are missing.
func New(kind string, config map[string]string, stepSeconds int) (Adapter, error) {
	if stepSeconds <= 0 {
		stepSeconds = DefaultStepSeconds
	}
	switch kind {
	case "prometheus":
		return newPrometheus(config, stepSeconds)
	case "victoriametrics":
		return newVictoriaMetrics(config, stepSeconds)
	case "http":
		return newHTTP(config, stepSeconds)
	case "sql":
		return newSQL(config)
	case "synthetic":
		return newSynthetic(config)
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s (must be prometheus, victoriametrics, http, sql, or synthetic)", kind)
	}
}

func newPrometheus(config map[string]string, stepSeconds int) (Adapter, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("prometheus adapter requires 'query' config")
	}

	url := config["url"]
	if url == "" {
		url = "http://localhost:9090"
	}

	return &PrometheusAdapter{
		ServerURL:   url,
		Query:       query,
		StepSeconds: stepSeconds,
	}, nil
}

func newVictoriaMetrics(config map[string]string, stepSeconds int) (Adapter, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("victoriametrics adapter requires 'query' config")
	}

	url := config["url"]
	if url == "" {
		url = "http://localhost:8428"
	}

	return &VictoriaMetricsAdapter{
		ServerURL:   url,
		Query:       query,
		StepSeconds: stepSeconds,
	}, nil
}

func newHTTP(config map[string]string, stepSeconds int) (Adapter, error) {
	method := config["method"]
	if method == "" {
		method = "GET"
	}

	timestampFormat := config["timestampFormat"]
	if timestampFormat == "" {
		timestampFormat = "rfc3339"
	}

	headers, err := jsonMap(config, "headers")
	if err != nil {
		return nil, err
	}
	templateVars, err := jsonMap(config, "templateVars")
	if err != nil {
		return nil, err
	}
	fieldPaths, err := jsonMap(config, "fields")
	if err != nil {
		return nil, err
	}

	a := &HTTPAdapter{
		URL:             config["url"],
		Method:          method,
		Headers:         headers,
		Body:            config["body"],
		ValuePath:       config["valuePath"],
		TimestampPath:   config["timestampPath"],
		TimestampFormat: timestampFormat,
		FieldPaths:      fieldPaths,
		StepSeconds:     stepSeconds,
		TemplateVars:    templateVars,
	}
	if err := a.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}
	return a, nil
}

func newSQL(config map[string]string) (Adapter, error) {
	driver := config["driver"]
	if driver == "" {
		driver = "postgres"
	}
	if config["dsn"] == "" || config["query"] == "" {
		return nil, fmt.Errorf("sql adapter requires 'dsn' and 'query' config")
	}
	return OpenSQL(driver, config["dsn"], config["query"])
}

func newSynthetic(config map[string]string) (Adapter, error) {
	s := &SyntheticAdapter{Profile: SyntheticProfile(config["profile"])}
	if s.Profile == "" {
		s.Profile = ProfileCapacity
	}
	if s.Profile != ProfileCapacity && s.Profile != ProfileActivity {
		return nil, fmt.Errorf("synthetic adapter: unknown profile %q (must be capacity or activity)", s.Profile)
	}
	if v := config["seed"]; v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("synthetic adapter: invalid seed: %w", err)
		}
		s.Seed = seed
	}
	if v := config["noise"]; v != "" {
		noise, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("synthetic adapter: invalid noise: %w", err)
		}
		s.Noise = noise
	}
	return s, nil
}

// UseHTTPClient sets cli on adapters that call HTTP endpoints and leaves
// the others untouched.
func UseHTTPClient(a Adapter, cli *http.Client) {
	switch v := a.(type) {
	case *PrometheusAdapter:
		v.HTTPClient = cli
	case *VictoriaMetricsAdapter:
		v.HTTPClient = cli
	case *HTTPAdapter:
		v.HTTPClient = cli
	}
}

func jsonMap(config map[string]string, key string) (map[string]string, error) {
	raw := config[key]
	if raw == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("invalid '%s' JSON: %w", key, err)
	}
	return m, nil
}
