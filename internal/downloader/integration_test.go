//go:build integration

package downloader_test

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/gridfetch/internal/catalog"
	"github.com/ligustah/gridfetch/internal/downloader"
	gfhttp "github.com/ligustah/gridfetch/internal/http"
	"github.com/ligustah/gridfetch/internal/testutils"
	"github.com/ligustah/gridfetch/pkg/gddp"
)

const manifest = `model,scenario,variable,ensemble,grid
ACCESS-CM2,historical,tasmax,r1i1p1f1,gn
ACCESS-CM2,ssp245,tasmax,r1i1p1f1,gn
GFDL-ESM4,historical,tasmax,r1i1p1f1,gr1
GFDL-ESM4,ssp245,tasmax,r1i1p1f1,gr1
`

func TestIntegrationRunToMinio(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	t.Log("Starting NCSS test server...")
	server := testutils.StartNCSSServer(t, 256*1024)

	t.Log("Starting Minio container...")
	env := testutils.StartMinioContainer(t, ctx, "gridfetch-test")
	defer func() {
		if err := env.Close(ctx); err != nil {
			t.Logf("failed to terminate minio container: %v", err)
		}
	}()

	bucket, err := env.OpenBucket(ctx)
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer bucket.Close()

	m, err := catalog.Parse(strings.NewReader(manifest))
	if err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	jobs, warnings := gddp.Enumerate(catalog.NewResolver(m), gddp.Plan{
		Models:    []string{"ACCESS-CM2", "GFDL-ESM4"},
		Variables: []string{"tasmax"},
		Scenarios: map[string]gddp.YearRange{
			"historical": {Start: 2010, End: 2013},
			"ssp245":     {Start: 2015, End: 2018},
		},
		BBox:      gddp.BBox{West: -86.6, East: -86.5, South: 39, North: 39.5},
		Extension: "nc",
	})
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	opts := downloader.Options{
		Workers: 4,
		Client:  gfhttp.NewClient(gfhttp.Options{Timeout: 30 * time.Second, RetryAttempts: 2}),
		BaseURL: server.URL,
	}

	report, err := downloader.Run(ctx, jobs, bucket, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Succeeded != len(jobs) {
		t.Fatalf("expected %d succeeded, got %+v", len(jobs), report)
	}

	for _, j := range report.Jobs {
		raw, err := j.RequestURL(server.URL, gddp.DefaultQuery())
		if err != nil {
			t.Fatalf("RequestURL: %v", err)
		}
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse url: %v", err)
		}

		r, err := bucket.NewReader(ctx, j.Key(), nil)
		if err != nil {
			t.Fatalf("open %s: %v", j.Key(), err)
		}
		testutils.CompareReaderToData(t, r, testutils.GenerateTestData(u.Path, server.Size))
		r.Close()
	}

	// A second run finds everything in place.
	before := server.Requests()
	report, err = downloader.Run(ctx, jobs, bucket, opts)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if report.Skipped != len(jobs) || server.Requests() != before {
		t.Errorf("second run was not idempotent: %+v, %d new requests", report, server.Requests()-before)
	}
}

func TestIntegrationZeroByteObjectIsReplaced(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	server := testutils.StartNCSSServer(t, 4096)
	env := testutils.StartMinioContainer(t, ctx, "gridfetch-empty")
	defer env.Close(ctx)

	bucket, err := env.OpenBucket(ctx)
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer bucket.Close()

	job := gddp.Job{
		Model:     "ACCESS-CM2",
		Scenario:  "ssp245",
		Ensemble:  "r1i1p1f1",
		Grid:      "gn",
		Variable:  "tasmax",
		Year:      2050,
		BBox:      gddp.BBox{West: -86.6, East: -86.5, South: 39, North: 39.5},
		Extension: "nc",
		Status:    gddp.StatusPending,
	}
	if err := bucket.WriteAll(ctx, job.Key(), nil, nil); err != nil {
		t.Fatalf("write empty object: %v", err)
	}

	report, err := downloader.Run(ctx, []gddp.Job{job}, bucket, downloader.Options{
		Client:  gfhttp.NewClient(gfhttp.Options{Timeout: 30 * time.Second, RetryAttempts: 1}),
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Succeeded != 1 {
		t.Fatalf("expected zero-byte object to be refetched, got %+v", report)
	}

	attrs, err := bucket.Attributes(ctx, job.Key())
	if err != nil {
		t.Fatalf("Attributes: %v", err)
	}
	if attrs.Size != 4096 {
		t.Errorf("expected 4096 bytes, got %d", attrs.Size)
	}
}
