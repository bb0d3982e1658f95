package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()

	m.JobFinished("succeeded")
	m.JobFinished("succeeded")
	m.JobFinished("failed")
	m.Attempt("transient", 100*time.Millisecond)
	m.BytesWritten(2048)
	m.InFlight(1)
	m.InFlight(-1)

	if got := testutil.ToFloat64(m.jobsTotal.WithLabelValues("succeeded")); got != 2 {
		t.Errorf("succeeded = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.jobsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.bytesWritten); got != 2048 {
		t.Errorf("bytes = %v, want 2048", got)
	}
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.JobFinished("skipped")
	m.Attempt("ok", time.Second)
	m.BytesWritten(1)
	m.InFlight(1)
	if m.Registry() != nil {
		t.Error("expected nil registry")
	}
}

func TestRouter(t *testing.T) {
	m := New()
	m.JobFinished("skipped")

	server := httptest.NewServer(m.Router())
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `gridfetch_jobs_total{status="skipped"} 1`) {
		t.Errorf("metrics output missing job counter:\n%s", body)
	}
}
