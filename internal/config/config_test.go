package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ligustah/gridfetch/pkg/gddp"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Workers != 1 {
		t.Errorf("expected default workers 1, got %d", cfg.Workers)
	}
	if cfg.Storage != "data" {
		t.Errorf("expected default storage data, got %q", cfg.Storage)
	}
	if cfg.FailureLog != "download_errors.log" {
		t.Errorf("expected default failure log download_errors.log, got %q", cfg.FailureLog)
	}
	if cfg.Retry.Attempts != 2 {
		t.Errorf("expected default retry attempts 2, got %d", cfg.Retry.Attempts)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", cfg.Timeout)
	}
	if cfg.Politeness.Delay != time.Second || cfg.Politeness.Jitter != 2*time.Second {
		t.Errorf("expected default politeness 1s+2s, got %v+%v", cfg.Politeness.Delay, cfg.Politeness.Jitter)
	}
	if len(cfg.Models) != 26 {
		t.Errorf("expected 26 default models, got %d", len(cfg.Models))
	}
	if got := cfg.Scenarios["historical"]; got != (gddp.YearRange{Start: 1985, End: 2013}) {
		t.Errorf("unexpected historical range %+v", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestDefaultModelsNotShared(t *testing.T) {
	a := Default()
	a.Models[0] = "changed"
	if Default().Models[0] == "changed" {
		t.Error("Default returned a shared models slice")
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
manifest: ./manifest.csv
storage: s3://bucket/gddp
workers: 4
progress: true
models: [ACCESS-CM2, GFDL-ESM4]
variables: [tasmax]
scenarios:
  ssp245:
    start: 2015
    end: 2016
bbox:
  west: -87
  east: -86
  south: 39
  north: 40
timeout: 45s
politeness:
  delay: 0s
  jitter: 250ms
retry:
  attempts: 3
  backoff: 2s
  max_backoff: 60s
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Manifest != "./manifest.csv" {
		t.Errorf("expected manifest ./manifest.csv, got %q", cfg.Manifest)
	}
	if cfg.Storage != "s3://bucket/gddp" {
		t.Errorf("expected storage s3://bucket/gddp, got %q", cfg.Storage)
	}
	if cfg.Workers != 4 {
		t.Errorf("expected workers 4, got %d", cfg.Workers)
	}
	if !cfg.Progress {
		t.Error("expected progress true")
	}
	if len(cfg.Models) != 2 || cfg.Models[1] != "GFDL-ESM4" {
		t.Errorf("unexpected models %v", cfg.Models)
	}
	if len(cfg.Scenarios) != 1 || cfg.Scenarios["ssp245"].Len() != 2 {
		t.Errorf("unexpected scenarios %v", cfg.Scenarios)
	}
	if cfg.BBox.West != -87 || cfg.BBox.North != 40 {
		t.Errorf("unexpected bbox %+v", cfg.BBox)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("expected timeout 45s, got %v", cfg.Timeout)
	}
	if cfg.Politeness.Jitter != 250*time.Millisecond {
		t.Errorf("expected jitter 250ms, got %v", cfg.Politeness.Jitter)
	}
	if cfg.Retry.Attempts != 3 {
		t.Errorf("expected retry attempts 3, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff != 2*time.Second {
		t.Errorf("expected retry backoff 2s, got %v", cfg.Retry.Backoff)
	}
	if cfg.Retry.MaxBackoff != 60*time.Second {
		t.Errorf("expected retry max backoff 60s, got %v", cfg.Retry.MaxBackoff)
	}
	// Unset fields keep their defaults.
	if cfg.FailureLog != "download_errors.log" {
		t.Errorf("expected default failure log, got %q", cfg.FailureLog)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GRIDFETCH_WORKERS", "8")
	t.Setenv("GRIDFETCH_STORAGE", "/tmp/gddp")
	t.Setenv("GRIDFETCH_MODELS", "ACCESS-CM2, CanESM5 ,")
	t.Setenv("GRIDFETCH_SCENARIOS", "historical:1990-1991,ssp585:2050")
	t.Setenv("GRIDFETCH_PROGRESS", "true")
	t.Setenv("GRIDFETCH_RETRY_ATTEMPTS", "3")
	t.Setenv("GRIDFETCH_RETRY_BACKOFF", "500ms")
	t.Setenv("GRIDFETCH_POLITENESS_DELAY", "0s")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.Workers != 8 {
		t.Errorf("expected workers 8, got %d", cfg.Workers)
	}
	if cfg.Storage != "/tmp/gddp" {
		t.Errorf("expected storage /tmp/gddp, got %q", cfg.Storage)
	}
	if len(cfg.Models) != 2 || cfg.Models[1] != "CanESM5" {
		t.Errorf("unexpected models %v", cfg.Models)
	}
	if cfg.Scenarios["historical"] != (gddp.YearRange{Start: 1990, End: 1991}) {
		t.Errorf("unexpected historical %+v", cfg.Scenarios["historical"])
	}
	if cfg.Scenarios["ssp585"] != (gddp.YearRange{Start: 2050, End: 2050}) {
		t.Errorf("unexpected ssp585 %+v", cfg.Scenarios["ssp585"])
	}
	if !cfg.Progress {
		t.Error("expected progress true")
	}
	if cfg.Retry.Attempts != 3 {
		t.Errorf("expected retry attempts 3, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff != 500*time.Millisecond {
		t.Errorf("expected retry backoff 500ms, got %v", cfg.Retry.Backoff)
	}
	if cfg.Politeness.Delay != 0 {
		t.Errorf("expected politeness delay 0, got %v", cfg.Politeness.Delay)
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("GRIDFETCH_WORKERS", "many")

	cfg := Default()
	err := cfg.LoadFromEnv()
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Field != "GRIDFETCH_WORKERS" {
		t.Errorf("expected field GRIDFETCH_WORKERS, got %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("GRIDFETCH_DOTENV_PROBE=from-file\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("GRIDFETCH_DOTENV_PROBE", "")
	os.Unsetenv("GRIDFETCH_DOTENV_PROBE")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("GRIDFETCH_DOTENV_PROBE"); got != "from-file" {
		t.Errorf("expected from-file, got %q", got)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantErr bool
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing manifest",
			mutate:  func(c *Config) { c.Manifest = "" },
			field:   "manifest",
			wantErr: true,
		},
		{
			name:    "non-http base url",
			mutate:  func(c *Config) { c.BaseURL = "ftp://example.com" },
			field:   "base_url",
			wantErr: true,
		},
		{
			name:    "model with separator",
			mutate:  func(c *Config) { c.Models = []string{"a/b"} },
			field:   "models",
			wantErr: true,
		},
		{
			name:    "repeated model",
			mutate:  func(c *Config) { c.Models = SplitList("M1,M2,M1") },
			field:   "models",
			wantErr: true,
		},
		{
			name:    "repeated variable",
			mutate:  func(c *Config) { c.Variables = []string{"tasmax", "tasmax"} },
			field:   "variables",
			wantErr: true,
		},
		{
			name:    "no variables",
			mutate:  func(c *Config) { c.Variables = nil },
			field:   "variables",
			wantErr: true,
		},
		{
			name: "inverted year range",
			mutate: func(c *Config) {
				c.Scenarios = map[string]gddp.YearRange{"ssp245": {Start: 2020, End: 2015}}
			},
			field:   "scenarios",
			wantErr: true,
		},
		{
			name:    "empty bbox",
			mutate:  func(c *Config) { c.BBox = gddp.BBox{} },
			field:   "bbox",
			wantErr: true,
		},
		{
			name:    "dotted extension",
			mutate:  func(c *Config) { c.Extension = ".nc" },
			field:   "extension",
			wantErr: true,
		},
		{
			name:    "invalid workers",
			mutate:  func(c *Config) { c.Workers = 0 },
			field:   "workers",
			wantErr: true,
		},
		{
			name:    "invalid attempts",
			mutate:  func(c *Config) { c.Retry.Attempts = 0 },
			field:   "retry.attempts",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
			var cerr *Error
			if !errors.As(err, &cerr) || cerr.Field != tt.field {
				t.Errorf("expected field %q, got %v", tt.field, err)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := Default()
	base.Storage = "gs://bucket/gddp"
	base.Workers = 2

	override := Config{
		Workers:   4,
		Variables: []string{"tas"},
	}

	merged := base.Merge(override)

	if merged.Storage != "gs://bucket/gddp" {
		t.Errorf("expected Storage preserved, got %s", merged.Storage)
	}
	if len(merged.Models) != 26 {
		t.Errorf("expected Models preserved, got %d", len(merged.Models))
	}
	if merged.Retry.Attempts != 2 {
		t.Errorf("expected Retry.Attempts preserved, got %d", merged.Retry.Attempts)
	}

	if merged.Workers != 4 {
		t.Errorf("expected Workers overridden to 4, got %d", merged.Workers)
	}
	if len(merged.Variables) != 1 || merged.Variables[0] != "tas" {
		t.Errorf("expected Variables overridden, got %v", merged.Variables)
	}
}

func TestHTTPOptions(t *testing.T) {
	cfg := Default()
	cfg.Workers = 3
	cfg.Retry.Attempts = 4

	opts := cfg.HTTPOptions()
	if opts.RetryAttempts != 4 {
		t.Errorf("expected 4 attempts, got %d", opts.RetryAttempts)
	}
	if opts.MaxIdleConnsPerHost != 6 {
		t.Errorf("expected 6 idle conns, got %d", opts.MaxIdleConnsPerHost)
	}
	if opts.PolitenessDelay != time.Second {
		t.Errorf("expected 1s politeness delay, got %v", opts.PolitenessDelay)
	}
}

func TestPlanSize(t *testing.T) {
	cfg := Default()
	cfg.Models = []string{"M1", "M2"}
	cfg.Variables = []string{"tasmax"}
	cfg.Scenarios = map[string]gddp.YearRange{
		"historical": {Start: 2000, End: 2001},
		"ssp245":     {Start: 2015, End: 2017},
	}

	if got := cfg.Plan().Size(); got != 10 {
		t.Errorf("expected 10 jobs, got %d", got)
	}
}

func TestParseScenariosInvalid(t *testing.T) {
	for _, in := range []string{"historical", "ssp245:abc", "ssp245:2015-x", "A:2000-2001,A:2005-2006"} {
		if _, err := ParseScenarios(in); err == nil {
			t.Errorf("ParseScenarios(%q) expected error", in)
		}
	}
}

func TestParseScenarios(t *testing.T) {
	got, err := ParseScenarios("historical:2000-2001, ssp245:2050")
	if err != nil {
		t.Fatalf("ParseScenarios: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 scenarios, got %v", got)
	}
	if r := got["historical"]; r.Start != 2000 || r.End != 2001 {
		t.Errorf("unexpected historical range %+v", r)
	}
	if r := got["ssp245"]; r.Start != 2050 || r.End != 2050 {
		t.Errorf("unexpected ssp245 range %+v", r)
	}
}

func TestLoadFromEnvRepeatedScenario(t *testing.T) {
	t.Setenv("GRIDFETCH_SCENARIOS", "ssp245:2015-2016,ssp245:2020")

	cfg := Default()
	err := cfg.LoadFromEnv()
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Field != "GRIDFETCH_SCENARIOS" {
		t.Fatalf("expected GRIDFETCH_SCENARIOS error, got %v", err)
	}
}

func TestLoadYAMLFileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for nonexistent file, got %v", err)
	}
}

func TestLoadYAMLInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadYAMLBadDuration(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("timeout: soon\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	_, err := LoadFromFile(configPath)
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Field != "timeout" {
		t.Errorf("expected timeout field error, got %v", err)
	}
}
