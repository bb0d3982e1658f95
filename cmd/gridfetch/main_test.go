package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ligustah/gridfetch/internal/failures"
)

const cliManifest = `model,scenario,variable,ensemble,grid
ACCESS-CM2,historical,tasmax,r1i1p1f1,gn
ACCESS-CM2,ssp245,tasmax,r1i1p1f1,gn
`

type cliEnv struct {
	manifest   string
	storage    string
	failureLog string
	server     *httptest.Server
	requests   atomic.Int32
	status     atomic.Int32
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()

	env := &cliEnv{
		manifest:   filepath.Join(dir, "manifest.csv"),
		storage:    filepath.Join(dir, "data"),
		failureLog: filepath.Join(dir, "download_errors.log"),
	}
	if err := os.WriteFile(env.manifest, []byte(cliManifest), 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.requests.Add(1)
		if code := env.status.Load(); code != 0 {
			w.WriteHeader(int(code))
			return
		}
		w.Write([]byte("CDF\x01" + r.URL.Path))
	}))
	t.Cleanup(env.server.Close)

	return env
}

func (e *cliEnv) args(extra ...string) []string {
	return append([]string{
		"-env-file", "",
		"-manifest", e.manifest,
		"-storage", e.storage,
		"-failure-log", e.failureLog,
		"-base-url", e.server.URL,
		"-models", "ACCESS-CM2,MISSING",
		"-variables", "tasmax",
		"-scenarios", "historical:2000-2001,ssp245:2015",
		"-politeness-delay", "0s",
		"-politeness-jitter", "0s",
		"-retry-attempts", "2",
		"-retry-backoff", "0s",
	}, extra...)
}

func TestRunUsage(t *testing.T) {
	if code := run(nil); code != ExitInvalidArgs {
		t.Errorf("no args: exit %d, want %d", code, ExitInvalidArgs)
	}
	if code := run([]string{"bogus"}); code != ExitInvalidArgs {
		t.Errorf("unknown command: exit %d, want %d", code, ExitInvalidArgs)
	}
	if code := run([]string{"help"}); code != ExitSuccess {
		t.Errorf("help: exit %d, want %d", code, ExitSuccess)
	}
}

func TestFetchDownloadsAndResumes(t *testing.T) {
	env := newCLIEnv(t)

	if code := runFetch(env.args("-workers", "2")); code != ExitSuccess {
		t.Fatalf("fetch: exit %d", code)
	}
	if got := env.requests.Load(); got != 3 {
		t.Errorf("expected 3 requests, got %d", got)
	}

	key := "ACCESS-CM2/historical/tasmax/tasmax_day_ACCESS-CM2_historical_r1i1p1f1_gn_2000.nc"
	data, err := os.ReadFile(filepath.Join(env.storage, filepath.FromSlash(key)))
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if !strings.HasPrefix(string(data), "CDF\x01/ACCESS-CM2/historical/r1i1p1f1/tasmax/") {
		t.Errorf("unexpected content %q", data)
	}

	// Everything is in place now.
	if code := runFetch(env.args()); code != ExitSuccess {
		t.Fatalf("second fetch: exit %d", code)
	}
	if got := env.requests.Load(); got != 3 {
		t.Errorf("second fetch sent %d new requests", got-3)
	}
}

func TestFetchFailures(t *testing.T) {
	env := newCLIEnv(t)
	env.status.Store(http.StatusServiceUnavailable)

	if code := runFetch(env.args()); code != ExitSuccess {
		t.Errorf("fetch without -fail-on-error: exit %d, want %d", code, ExitSuccess)
	}
	if got := env.requests.Load(); got != 6 {
		t.Errorf("expected 2 attempts for each of 3 jobs, got %d requests", got)
	}

	recs, err := failures.ReadFile(env.failureLog)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("expected 3 failure records, got %d", len(recs))
	}

	if code := runFetch(env.args("-fail-on-error")); code != ExitFailures {
		t.Errorf("fetch with -fail-on-error: exit %d, want %d", code, ExitFailures)
	}

	if code := runFailures(env.args("-records")); code != ExitSuccess {
		t.Errorf("failures: exit %d", code)
	}
}

func TestFetchConfigErrors(t *testing.T) {
	env := newCLIEnv(t)

	if code := runFetch(env.args("-workers", "-1")); code != ExitConfigError {
		t.Errorf("negative workers: exit %d, want %d", code, ExitConfigError)
	}
	if code := runFetch(env.args("-scenarios", "historical")); code != ExitConfigError {
		t.Errorf("bad scenarios: exit %d, want %d", code, ExitConfigError)
	}
	if code := runFetch(env.args("-models", "ACCESS-CM2,ACCESS-CM2")); code != ExitConfigError {
		t.Errorf("repeated model: exit %d, want %d", code, ExitConfigError)
	}
	if code := runFetch(env.args("-scenarios", "historical:2000,historical:2001")); code != ExitConfigError {
		t.Errorf("repeated scenario: exit %d, want %d", code, ExitConfigError)
	}
	if code := runFetch(env.args("-no-such-flag")); code != ExitInvalidArgs {
		t.Errorf("unknown flag: exit %d, want %d", code, ExitInvalidArgs)
	}
	if got := env.requests.Load(); got != 0 {
		t.Errorf("config errors must not contact the server, got %d requests", got)
	}
}

func TestFetchMissingCatalog(t *testing.T) {
	env := newCLIEnv(t)

	args := env.args("-manifest", filepath.Join(t.TempDir(), "missing.csv"))
	if code := runFetch(args); code != ExitCatalogError {
		t.Errorf("missing manifest: exit %d, want %d", code, ExitCatalogError)
	}
}

func TestPlanMakesNoRequests(t *testing.T) {
	env := newCLIEnv(t)

	if code := runPlan(env.args("-list")); code != ExitSuccess {
		t.Fatalf("plan: exit %d", code)
	}
	if got := env.requests.Load(); got != 0 {
		t.Errorf("plan sent %d requests", got)
	}
}

func TestCleanRemovesEmptyFiles(t *testing.T) {
	env := newCLIEnv(t)

	dir := filepath.Join(env.storage, "ACCESS-CM2", "ssp245", "tasmax")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	empty := filepath.Join(dir, "tasmax_day_ACCESS-CM2_ssp245_r1i1p1f1_gn_2015.nc")
	full := filepath.Join(dir, "tasmax_day_ACCESS-CM2_ssp245_r1i1p1f1_gn_2016.nc")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	if err := os.WriteFile(full, []byte("data"), 0644); err != nil {
		t.Fatalf("write full: %v", err)
	}

	if code := runClean(env.args("-dry-run")); code != ExitSuccess {
		t.Fatalf("clean -dry-run: exit %d", code)
	}
	if _, err := os.Stat(empty); err != nil {
		t.Fatalf("dry run removed the file: %v", err)
	}

	if code := runClean(env.args("-force")); code != ExitSuccess {
		t.Fatalf("clean: exit %d", code)
	}
	if _, err := os.Stat(empty); !os.IsNotExist(err) {
		t.Errorf("empty file still present: %v", err)
	}
	if _, err := os.Stat(full); err != nil {
		t.Errorf("non-empty file removed: %v", err)
	}
}
