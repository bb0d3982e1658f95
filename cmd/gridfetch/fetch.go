package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ligustah/gridfetch/internal/catalog"
	"github.com/ligustah/gridfetch/internal/config"
	"github.com/ligustah/gridfetch/internal/downloader"
	"github.com/ligustah/gridfetch/internal/failures"
	gfhttp "github.com/ligustah/gridfetch/internal/http"
	"github.com/ligustah/gridfetch/internal/metrics"
	"github.com/ligustah/gridfetch/internal/progress"
	"github.com/ligustah/gridfetch/internal/storage"
	"github.com/ligustah/gridfetch/pkg/gddp"
)

// runFetch enumerates the configured jobs and downloads every file that is
// not already in storage.
func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)

	var cf configFlags
	cf.register(fs)
	failOnError := fs.Bool("fail-on-error", false, "Exit with status 8 when any file failed")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: gridfetch fetch [options]

Download one bounding-box subset per (model, scenario, variable, year) from the
NCSS endpoint into storage. Files already present are skipped, so an
interrupted run can simply be started again. Failed files are appended to the
failure log and do not stop the run.

Options:`)
		fs.PrintDefaults()
	}

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	logger := newLogger(cf.verbose)

	cfg, err := cf.load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitConfigError
	}

	ctx, cancel := signalContext("fetch")
	defer cancel()

	jobs, code, ok := planJobs(ctx, cfg, logger)
	if !ok {
		return code
	}

	bucket, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening storage: %v\n", err)
		return ExitStorageError
	}
	defer bucket.Close()

	recorder, err := failures.Open(cfg.FailureLog, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening failure log: %v\n", err)
		return ExitStorageError
	}
	defer recorder.Close()

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		srvCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := m.Serve(srvCtx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalJobs:      len(jobs),
			Workers:        cfg.Workers,
			UpdateInterval: 5 * time.Second,
			Source:         cfg.BaseURL,
			Destination:    cfg.Storage,
		})
		reporter.Start()
	}

	report, err := downloader.Run(ctx, jobs, bucket, downloader.Options{
		Workers:  cfg.Workers,
		Client:   gfhttp.NewClient(cfg.HTTPOptions()),
		BaseURL:  cfg.BaseURL,
		Query:    cfg.Query(),
		Recorder: recorder,
		Metrics:  m,
		Progress: reporter,
		Logger:   logger,
		RunID:    uuid.NewString(),
	})
	if reporter != nil {
		reporter.Stop()
	}

	printReport(report)

	if err != nil {
		fmt.Fprintln(os.Stderr, "[gridfetch] Run interrupted, start it again to resume")
		return ExitInterrupted
	}
	if report.Failed > 0 && *failOnError {
		return ExitFailures
	}
	return ExitSuccess
}

// planJobs loads the catalog and enumerates the configured jobs. Lookup
// warnings are logged and do not stop the run.
func planJobs(ctx context.Context, cfg config.Config, logger *slog.Logger) ([]gddp.Job, int, bool) {
	manifest, err := catalog.Load(ctx, cfg.Manifest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading catalog: %v\n", err)
		return nil, ExitCatalogError, false
	}

	resolver := catalog.NewResolver(manifest, catalog.WithReferenceVariable(cfg.ReferenceVariable))
	jobs, warnings := gddp.Enumerate(resolver, cfg.Plan())
	for _, w := range warnings {
		logger.Warn("skipping model/scenario", "error", w)
	}
	logger.Info("enumerated jobs",
		"jobs", len(jobs),
		"catalog_rows", manifest.Len(),
		"lookup_warnings", len(warnings),
	)

	return jobs, ExitSuccess, true
}

func printReport(r *downloader.Report) {
	fmt.Fprintf(os.Stderr, "[gridfetch] Jobs: %d | Succeeded: %d | Skipped: %d | Failed: %d | Cancelled: %d\n",
		r.Total, r.Succeeded, r.Skipped, r.Failed, r.Cancelled)
	fmt.Fprintf(os.Stderr, "[gridfetch] Downloaded %s in %s\n",
		progress.FormatBytes(r.Bytes), progress.FormatDuration(r.Duration))
	if r.Failed > 0 {
		fmt.Fprintf(os.Stderr, "[gridfetch] Failures recorded in %s (run %s)\n", r.FailureLog, r.RunID)
	}
}
