package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	gfhttp "github.com/ligustah/gridfetch/internal/http"
	"github.com/ligustah/gridfetch/pkg/gddp"
)

// ErrInvalid is matched by every configuration error.
var ErrInvalid = errors.New("config: invalid configuration")

// Error is a configuration problem detected before any network activity.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() []error { return []error{ErrInvalid, e.Err} }

func invalid(field, format string, args ...any) error {
	return &Error{Field: field, Err: fmt.Errorf(format, args...)}
}

// Config defines configuration for a gridfetch run.
type Config struct {
	Manifest          string                    `yaml:"manifest"`
	ReferenceVariable string                    `yaml:"reference_variable"`
	BaseURL           string                    `yaml:"base_url"`
	Storage           string                    `yaml:"storage"`
	FailureLog        string                    `yaml:"failure_log"`
	Models            []string                  `yaml:"models"`
	Variables         []string                  `yaml:"variables"`
	Scenarios         map[string]gddp.YearRange `yaml:"scenarios"`
	BBox              gddp.BBox                 `yaml:"bbox"`
	Extension         string                    `yaml:"extension"`
	Accept            string                    `yaml:"accept"`
	Workers           int                       `yaml:"workers"`
	Timeout           time.Duration             `yaml:"timeout"`
	Politeness        PolitenessConfig          `yaml:"politeness"`
	Retry             RetryConfig               `yaml:"retry"`
	Progress          bool                      `yaml:"progress"`
	MetricsAddr       string                    `yaml:"metrics_addr"`
}

// PolitenessConfig defines the wait before every request.
type PolitenessConfig struct {
	Delay  time.Duration `yaml:"delay"`
	Jitter time.Duration `yaml:"jitter"`
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// DefaultModels are the CMIP6 models downloaded when none are configured.
var DefaultModels = []string{
	"ACCESS-CM2",
	"ACCESS-ESM1-5",
	"BCC-CSM2-MR",
	"CanESM5",
	"CMCC-CM2-SR5",
	"CMCC-ESM2",
	"CNRM-CM6-1",
	"CNRM-ESM2-1",
	"EC-Earth3-Veg-LR",
	"EC-Earth3",
	"FGOALS-g3",
	"GFDL-CM4",
	"GFDL-ESM4",
	"GISS-E2-1-G",
	"HadGEM3-GC31-LL",
	"INM-CM4-8",
	"INM-CM5-0",
	"KACE-1-0-G",
	"KIOST-ESM",
	"MIROC-ES2L",
	"MPI-ESM1-2-HR",
	"MPI-ESM1-2-LR",
	"MRI-ESM2-0",
	"NorESM2-LM",
	"NorESM2-MM",
	"UKESM1-0-LL",
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Manifest:          "s3://carbonplan-climate-impacts/extreme-heat/v1.0/inputs/nex-gddp-cmip6-files.csv?region=us-west-2",
		ReferenceVariable: "tasmax",
		BaseURL:           "https://ds.nccs.nasa.gov/thredds/ncss/grid/AMES/NEX/GDDP-CMIP6",
		Storage:           "data",
		FailureLog:        "download_errors.log",
		Models:            append([]string(nil), DefaultModels...),
		Variables:         []string{"tasmax", "tasmin", "tas", "huss"},
		Scenarios: map[string]gddp.YearRange{
			"historical": {Start: 1985, End: 2013},
			"ssp245":     {Start: 2015, End: 2099},
			"ssp585":     {Start: 2015, End: 2099},
		},
		BBox:      gddp.BBox{West: -86.6, East: -86.5, South: 39, North: 39.5},
		Extension: gddp.DefaultExtension,
		Accept:    "netcdf3",
		Workers:   1,
		Timeout:   30 * time.Second,
		Politeness: PolitenessConfig{
			Delay:  time.Second,
			Jitter: 2 * time.Second,
		},
		Retry: RetryConfig{
			Attempts:   2,
			Backoff:    5 * time.Second,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	Manifest          string                    `yaml:"manifest"`
	ReferenceVariable string                    `yaml:"reference_variable"`
	BaseURL           string                    `yaml:"base_url"`
	Storage           string                    `yaml:"storage"`
	FailureLog        string                    `yaml:"failure_log"`
	Models            []string                  `yaml:"models"`
	Variables         []string                  `yaml:"variables"`
	Scenarios         map[string]gddp.YearRange `yaml:"scenarios"`
	BBox              *gddp.BBox                `yaml:"bbox"`
	Extension         string                    `yaml:"extension"`
	Accept            string                    `yaml:"accept"`
	Workers           int                       `yaml:"workers"`
	Timeout           string                    `yaml:"timeout"`
	Politeness        yamlPolitenessConfig      `yaml:"politeness"`
	Retry             yamlRetryConfig           `yaml:"retry"`
	Progress          bool                      `yaml:"progress"`
	MetricsAddr       string                    `yaml:"metrics_addr"`
}

type yamlPolitenessConfig struct {
	Delay  string `yaml:"delay"`
	Jitter string `yaml:"jitter"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &Error{Field: "file", Err: fmt.Errorf("read %s: %w", path, err)}
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, &Error{Field: "file", Err: fmt.Errorf("parse %s: %w", path, err)}
	}

	cfg := Default()

	if yc.Manifest != "" {
		cfg.Manifest = yc.Manifest
	}
	if yc.ReferenceVariable != "" {
		cfg.ReferenceVariable = yc.ReferenceVariable
	}
	if yc.BaseURL != "" {
		cfg.BaseURL = yc.BaseURL
	}
	if yc.Storage != "" {
		cfg.Storage = yc.Storage
	}
	if yc.FailureLog != "" {
		cfg.FailureLog = yc.FailureLog
	}
	if yc.Models != nil {
		cfg.Models = yc.Models
	}
	if yc.Variables != nil {
		cfg.Variables = yc.Variables
	}
	if yc.Scenarios != nil {
		cfg.Scenarios = yc.Scenarios
	}
	if yc.BBox != nil {
		cfg.BBox = *yc.BBox
	}
	if yc.Extension != "" {
		cfg.Extension = yc.Extension
	}
	if yc.Accept != "" {
		cfg.Accept = yc.Accept
	}
	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	cfg.Progress = yc.Progress
	if yc.MetricsAddr != "" {
		cfg.MetricsAddr = yc.MetricsAddr
	}
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}

	durations := []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"timeout", yc.Timeout, &cfg.Timeout},
		{"politeness.delay", yc.Politeness.Delay, &cfg.Politeness.Delay},
		{"politeness.jitter", yc.Politeness.Jitter, &cfg.Politeness.Jitter},
		{"retry.backoff", yc.Retry.Backoff, &cfg.Retry.Backoff},
		{"retry.max_backoff", yc.Retry.MaxBackoff, &cfg.Retry.MaxBackoff},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, &Error{Field: d.field, Err: err}
		}
		*d.dst = v
	}

	return cfg, nil
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return &Error{Field: "dotenv", Err: err}
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the GRIDFETCH_ prefix.
func (c *Config) LoadFromEnv() error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"GRIDFETCH_MANIFEST", &c.Manifest},
		{"GRIDFETCH_REFERENCE_VARIABLE", &c.ReferenceVariable},
		{"GRIDFETCH_BASE_URL", &c.BaseURL},
		{"GRIDFETCH_STORAGE", &c.Storage},
		{"GRIDFETCH_FAILURE_LOG", &c.FailureLog},
		{"GRIDFETCH_EXTENSION", &c.Extension},
		{"GRIDFETCH_ACCEPT", &c.Accept},
		{"GRIDFETCH_METRICS_ADDR", &c.MetricsAddr},
	}
	for _, s := range strs {
		if v := os.Getenv(s.name); v != "" {
			*s.dst = v
		}
	}

	if v := os.Getenv("GRIDFETCH_MODELS"); v != "" {
		c.Models = SplitList(v)
	}
	if v := os.Getenv("GRIDFETCH_VARIABLES"); v != "" {
		c.Variables = SplitList(v)
	}
	if v := os.Getenv("GRIDFETCH_SCENARIOS"); v != "" {
		s, err := ParseScenarios(v)
		if err != nil {
			return &Error{Field: "GRIDFETCH_SCENARIOS", Err: err}
		}
		c.Scenarios = s
	}
	if v := os.Getenv("GRIDFETCH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Field: "GRIDFETCH_WORKERS", Err: err}
		}
		c.Workers = n
	}
	if v := os.Getenv("GRIDFETCH_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Field: "GRIDFETCH_RETRY_ATTEMPTS", Err: err}
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("GRIDFETCH_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"GRIDFETCH_TIMEOUT", &c.Timeout},
		{"GRIDFETCH_POLITENESS_DELAY", &c.Politeness.Delay},
		{"GRIDFETCH_POLITENESS_JITTER", &c.Politeness.Jitter},
		{"GRIDFETCH_RETRY_BACKOFF", &c.Retry.Backoff},
		{"GRIDFETCH_RETRY_MAX_BACKOFF", &c.Retry.MaxBackoff},
	}
	for _, d := range durations {
		v := os.Getenv(d.name)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return &Error{Field: d.name, Err: err}
		}
		*d.dst = parsed
	}

	return nil
}

// ParseScenarios parses "name:start-end" pairs separated by commas, e.g.
// "historical:1985-2013,ssp245:2015-2099".
func ParseScenarios(s string) (map[string]gddp.YearRange, error) {
	out := make(map[string]gddp.YearRange)
	for _, part := range SplitList(s) {
		name, years, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("scenario %q: expected name:start-end", part)
		}
		start, end, ok := strings.Cut(years, "-")
		if !ok {
			end = start
		}
		a, err := strconv.Atoi(strings.TrimSpace(start))
		if err != nil {
			return nil, fmt.Errorf("scenario %q: start year: %w", part, err)
		}
		b, err := strconv.Atoi(strings.TrimSpace(end))
		if err != nil {
			return nil, fmt.Errorf("scenario %q: end year: %w", part, err)
		}
		name = strings.TrimSpace(name)
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("scenario %q is listed more than once", name)
		}
		out[name] = gddp.YearRange{Start: a, End: b}
	}
	return out, nil
}

// SplitList splits a comma separated list, dropping empty items.
func SplitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// Validate validates the configuration. All problems are reported together;
// every returned error matches ErrInvalid.
func (c *Config) Validate() error {
	var errs []error

	if c.Manifest == "" {
		errs = append(errs, invalid("manifest", "is required"))
	}
	if c.Storage == "" {
		errs = append(errs, invalid("storage", "is required"))
	}
	if c.FailureLog == "" {
		errs = append(errs, invalid("failure_log", "is required"))
	}
	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, invalid("base_url", "must be an http(s) URL, got %q", c.BaseURL))
	}
	if err := gddp.ValidateID("reference_variable", c.ReferenceVariable); err != nil {
		errs = append(errs, &Error{Field: "reference_variable", Err: err})
	}

	if len(c.Models) == 0 {
		errs = append(errs, invalid("models", "must not be empty"))
	}
	for _, m := range c.Models {
		if err := gddp.ValidateID("model", m); err != nil {
			errs = append(errs, &Error{Field: "models", Err: err})
		}
	}
	for _, m := range duplicates(c.Models) {
		errs = append(errs, invalid("models", "%q is listed more than once", m))
	}
	if len(c.Variables) == 0 {
		errs = append(errs, invalid("variables", "must not be empty"))
	}
	for _, v := range c.Variables {
		if err := gddp.ValidateID("variable", v); err != nil {
			errs = append(errs, &Error{Field: "variables", Err: err})
		}
	}
	for _, v := range duplicates(c.Variables) {
		errs = append(errs, invalid("variables", "%q is listed more than once", v))
	}
	if len(c.Scenarios) == 0 {
		errs = append(errs, invalid("scenarios", "must not be empty"))
	}
	names := make([]string, 0, len(c.Scenarios))
	for name := range c.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r := c.Scenarios[name]
		if err := gddp.ValidateID("scenario", name); err != nil {
			errs = append(errs, &Error{Field: "scenarios", Err: err})
		}
		if r.Start <= 0 || r.End < r.Start {
			errs = append(errs, invalid("scenarios", "%s: invalid year range %d-%d", name, r.Start, r.End))
		}
	}

	if err := c.BBox.Validate(); err != nil {
		errs = append(errs, &Error{Field: "bbox", Err: err})
	}
	if c.Extension == "" || strings.ContainsAny(c.Extension, `/\.`) {
		errs = append(errs, invalid("extension", "must be a bare extension such as nc, got %q", c.Extension))
	}

	if c.Workers <= 0 {
		errs = append(errs, invalid("workers", "must be positive"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, invalid("timeout", "must be positive"))
	}
	if c.Politeness.Delay < 0 || c.Politeness.Jitter < 0 {
		errs = append(errs, invalid("politeness", "delay and jitter must not be negative"))
	}
	if c.Retry.Attempts <= 0 {
		errs = append(errs, invalid("retry.attempts", "must be positive"))
	}
	if c.Retry.Backoff < 0 || c.Retry.MaxBackoff < 0 {
		errs = append(errs, invalid("retry", "backoff must not be negative"))
	}

	return errors.Join(errs...)
}

// duplicates returns every id that occurs more than once in ids, in order of
// its second occurrence.
func duplicates(ids []string) []string {
	seen := make(map[string]int, len(ids))
	var out []string
	for _, id := range ids {
		seen[id]++
		if seen[id] == 2 {
			out = append(out, id)
		}
	}
	return out
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Manifest != "" {
		c.Manifest = override.Manifest
	}
	if override.ReferenceVariable != "" {
		c.ReferenceVariable = override.ReferenceVariable
	}
	if override.BaseURL != "" {
		c.BaseURL = override.BaseURL
	}
	if override.Storage != "" {
		c.Storage = override.Storage
	}
	if override.FailureLog != "" {
		c.FailureLog = override.FailureLog
	}
	if override.Models != nil {
		c.Models = override.Models
	}
	if override.Variables != nil {
		c.Variables = override.Variables
	}
	if override.Scenarios != nil {
		c.Scenarios = override.Scenarios
	}
	if override.BBox != (gddp.BBox{}) {
		c.BBox = override.BBox
	}
	if override.Extension != "" {
		c.Extension = override.Extension
	}
	if override.Accept != "" {
		c.Accept = override.Accept
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.Politeness.Delay != 0 {
		c.Politeness.Delay = override.Politeness.Delay
	}
	if override.Politeness.Jitter != 0 {
		c.Politeness.Jitter = override.Politeness.Jitter
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.MetricsAddr != "" {
		c.MetricsAddr = override.MetricsAddr
	}
	return c
}

// Plan returns the enumeration plan described by the configuration.
func (c Config) Plan() gddp.Plan {
	return gddp.Plan{
		Models:    c.Models,
		Variables: c.Variables,
		Scenarios: c.Scenarios,
		BBox:      c.BBox,
		Extension: c.Extension,
	}
}

// Query returns the request parameters described by the configuration.
func (c Config) Query() gddp.Query {
	q := gddp.DefaultQuery()
	if c.Accept != "" {
		q.Accept = c.Accept
	}
	return q
}

// HTTPOptions returns client options described by the configuration.
func (c Config) HTTPOptions() gfhttp.Options {
	opts := gfhttp.DefaultOptions()
	opts.MaxIdleConnsPerHost = c.Workers * 2
	opts.Timeout = c.Timeout
	opts.PolitenessDelay = c.Politeness.Delay
	opts.PolitenessJitter = c.Politeness.Jitter
	opts.RetryAttempts = c.Retry.Attempts
	opts.RetryBackoff = c.Retry.Backoff
	opts.RetryMaxBackoff = c.Retry.MaxBackoff
	return opts
}
