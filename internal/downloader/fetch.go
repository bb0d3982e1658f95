package downloader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"gocloud.dev/blob"

	gfhttp "github.com/ligustah/gridfetch/internal/http"
	"github.com/ligustah/gridfetch/internal/metrics"
	"github.com/ligustah/gridfetch/pkg/gddp"
)

const copyBufferSize = 32 * 1024

// fetcher executes single jobs against the remote service.
type fetcher struct {
	client  *gfhttp.Client
	bucket  *blob.Bucket
	baseURL string
	query   gddp.Query
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// fetch obtains j and commits it to storage. It returns the number of bytes
// written, the request URL and the number of attempts made.
//
// Errors are a *FetchError when attempts ran out, a *WriteError when storage
// rejected the payload, or the context error when the run was cancelled.
func (f *fetcher) fetch(ctx context.Context, j gddp.Job) (int64, string, int, error) {
	url, err := j.RequestURL(f.baseURL, f.query)
	if err != nil {
		return 0, "", 0, &FetchError{Job: j, Err: err}
	}

	var written int64
	attempts, err := f.client.Retry(ctx, func(ctx context.Context, attempt int) error {
		start := time.Now()
		n, err := f.attempt(ctx, url, j.Key())
		f.metrics.Attempt(outcome(ctx, err), time.Since(start))
		if err != nil {
			if ctx.Err() == nil {
				f.logger.Warn("attempt failed", "job", j.String(), "attempt", attempt, "error", err)
			}
			return err
		}
		written = n
		return nil
	})

	switch {
	case err == nil:
		return written, url, attempts, nil
	case ctx.Err() != nil:
		return 0, url, attempts, ctx.Err()
	}

	var we *WriteError
	if errors.As(err, &we) {
		return 0, url, attempts, we
	}
	return 0, url, attempts, &FetchError{Job: j, URL: url, Attempts: attempts, Err: err}
}

// attempt performs one GET and streams the body to key. The object becomes
// visible only after the whole body was written; on any error the write is
// aborted and nothing is left at key.
func (f *fetcher) attempt(ctx context.Context, url, key string) (int64, error) {
	body, err := f.client.Get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	// Cancelling wctx before Close aborts the write.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		w   *blob.Writer
		n   int64
		buf = make([]byte, copyBufferSize)
	)
	abort := func(err error) (int64, error) {
		if w != nil {
			cancel()
			_ = w.Close()
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, err
	}

	for {
		nr, rerr := body.Read(buf)
		if nr > 0 {
			// The writer is opened lazily so an empty body never touches storage.
			if w == nil {
				w, err = f.bucket.NewWriter(wctx, key, nil)
				if err != nil {
					return abort(&WriteError{Key: key, Err: err})
				}
			}
			nw, werr := w.Write(buf[:nr])
			if werr == nil && nw != nr {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return abort(&WriteError{Key: key, Err: werr})
			}
			n += int64(nw)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return abort(&gfhttp.TransientError{URL: url, Err: rerr})
		}
	}

	if n == 0 {
		return abort(&gfhttp.TransientError{URL: url, Err: gfhttp.ErrEmptyBody})
	}

	if err := w.Close(); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, &WriteError{Key: key, Err: err}
	}
	f.metrics.BytesWritten(n)

	return n, nil
}

func outcome(ctx context.Context, err error) string {
	var we *WriteError
	switch {
	case err == nil:
		return "ok"
	case ctx.Err() != nil:
		return "cancelled"
	case errors.As(err, &we):
		return "write"
	default:
		return "transient"
	}
}
