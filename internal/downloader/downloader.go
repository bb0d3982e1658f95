package downloader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	"golang.org/x/sync/errgroup"

	"github.com/ligustah/gridfetch/internal/failures"
	gfhttp "github.com/ligustah/gridfetch/internal/http"
	"github.com/ligustah/gridfetch/internal/metrics"
	"github.com/ligustah/gridfetch/internal/progress"
	"github.com/ligustah/gridfetch/pkg/gddp"
)

// Options configures a run.
type Options struct {
	// Workers is the number of jobs fetched concurrently. Default: 1
	Workers int

	// Client performs requests. Default: gfhttp.NewClient(gfhttp.DefaultOptions())
	Client *gfhttp.Client

	// BaseURL is the NCSS endpoint jobs are requested from.
	BaseURL string

	// Query holds request parameters shared by all jobs.
	Query gddp.Query

	// Recorder receives one record per failed job. Default: failures.Discard
	Recorder failures.Recorder

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Progress is an optional progress reporter. The caller starts and
	// stops it.
	Progress *progress.Reporter

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// RunID tags failure records. Default: a random UUID.
	RunID string
}

// Report summarizes a run.
type Report struct {
	RunID     string
	Total     int
	Skipped   int
	Succeeded int
	Failed    int
	// Cancelled counts jobs left pending because the run was interrupted.
	Cancelled int
	Bytes     int64
	Duration  time.Duration
	// FailureLog is where failed jobs were recorded.
	FailureLog string
	// Jobs holds every job with its final status.
	Jobs []gddp.Job
}

// Run executes jobs: jobs whose destination already holds a non-empty
// object are skipped, every other job is fetched with at most
// opts.Workers in flight. A failed job is recorded and never stops the
// others.
//
// Run returns a non-nil Report in all cases. The error is non-nil only when
// ctx was cancelled; jobs that had not finished stay pending and are
// counted in Report.Cancelled.
func Run(ctx context.Context, jobs []gddp.Job, bucket *blob.Bucket, opts Options) (*Report, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Client == nil {
		opts.Client = gfhttp.NewClient(gfhttp.DefaultOptions())
	}
	if opts.Recorder == nil {
		opts.Recorder = failures.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Query == (gddp.Query{}) {
		opts.Query = gddp.DefaultQuery()
	}

	start := time.Now()
	logger := opts.Logger.With("run_id", opts.RunID)

	jobs = append([]gddp.Job(nil), jobs...)
	report := &Report{
		RunID:      opts.RunID,
		Total:      len(jobs),
		FailureLog: opts.Recorder.Location(),
		Jobs:       jobs,
	}

	// Check storage before anything is dispatched.
	if err := Filter(ctx, bucket, jobs, opts.Workers*4, logger); err != nil {
		return finish(report, start), err
	}
	for _, j := range jobs {
		if j.Status == gddp.StatusSkipped {
			report.Skipped++
			opts.Metrics.JobFinished(string(gddp.StatusSkipped))
			if opts.Progress != nil {
				opts.Progress.JobSkipped()
			}
		}
	}
	logger.Info("starting run",
		"jobs", len(jobs),
		"skipped", report.Skipped,
		"pending", len(jobs)-report.Skipped,
		"workers", opts.Workers,
	)

	f := &fetcher{
		client:  opts.Client,
		bucket:  bucket,
		baseURL: opts.BaseURL,
		query:   opts.Query,
		metrics: opts.Metrics,
		logger:  logger,
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(opts.Workers)

	for i := range jobs {
		if jobs[i].Status != gddp.StatusPending {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		i := i // per-iteration copy (pre-Go 1.22 loop semantics)
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			j := &jobs[i]

			opts.Metrics.InFlight(1)
			if opts.Progress != nil {
				opts.Progress.JobStarted()
			}
			n, url, attempts, err := f.fetch(ctx, *j)
			opts.Metrics.InFlight(-1)

			if err != nil && ctx.Err() != nil {
				// Interrupted: the job stays pending for the next run.
				if opts.Progress != nil {
					opts.Progress.JobCancelled()
				}
				return nil
			}

			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				j.Status = gddp.StatusSucceeded
				report.Succeeded++
				report.Bytes += n
				opts.Metrics.JobFinished(string(gddp.StatusSucceeded))
				if opts.Progress != nil {
					opts.Progress.JobSucceeded(n)
				}
				logger.Info("downloaded", "job", j.String(), "key", j.Key(), "bytes", n, "attempts", attempts)
				return nil
			}

			j.Status = gddp.StatusFailed
			report.Failed++
			opts.Metrics.JobFinished(string(gddp.StatusFailed))
			if opts.Progress != nil {
				opts.Progress.JobFailed()
			}

			kind := failures.KindFetch
			var we *WriteError
			if errors.As(err, &we) {
				kind = failures.KindWrite
			}
			opts.Recorder.Record(ctx, failures.NewRecord(opts.RunID, *j, url, kind, err, attempts))
			logger.Error("job failed", "job", j.String(), "kind", kind, "attempts", attempts, "error", err)
			return nil
		})
	}

	_ = g.Wait()

	finish(report, start)
	logger.Info("run finished",
		"succeeded", report.Succeeded,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"cancelled", report.Cancelled,
		"bytes", report.Bytes,
		"duration", report.Duration,
	)

	return report, ctx.Err()
}

func finish(r *Report, start time.Time) *Report {
	r.Cancelled = gddp.Count(r.Jobs)[gddp.StatusPending]
	r.Duration = time.Since(start)
	return r
}
