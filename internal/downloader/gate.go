package downloader

import (
	"context"
	"log/slog"

	"gocloud.dev/blob"
	"golang.org/x/sync/errgroup"

	"github.com/ligustah/gridfetch/pkg/gddp"
)

// Filter marks every pending job whose destination already holds a
// non-empty object as skipped. Zero-byte objects stay pending so they are
// fetched again. A storage error other than "not found" is logged and the
// job stays pending.
//
// Jobs are updated in place. Filter returns ctx.Err() if the context is
// cancelled before every job was checked; unchecked jobs stay pending.
func Filter(ctx context.Context, bucket *blob.Bucket, jobs []gddp.Job, concurrency int, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	var g errgroup.Group
	g.SetLimit(concurrency)

	for i := range jobs {
		if jobs[i].Status != gddp.StatusPending {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		i := i // per-iteration copy (pre-Go 1.22 loop semantics)
		g.Go(func() error {
			j := &jobs[i]
			complete, err := gddp.Complete(ctx, bucket, *j)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("storage check failed, will fetch", "job", j.String(), "key", j.Key(), "error", err)
				}
				return nil
			}
			if complete {
				j.Status = gddp.StatusSkipped
				logger.Debug("already downloaded", "job", j.String(), "key", j.Key())
			}
			return nil
		})
	}

	_ = g.Wait()
	return ctx.Err()
}
