// Package http provides a polite HTTP client for bulk downloads from shared
// data servers.
//
// This package handles:
//   - A politeness delay with random jitter before every request
//   - A hard per-request timeout
//   - Retry with exponential backoff, bounded by a total attempt count
//   - Classification of failures as transient ([TransientError])
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	attempts, err := client.Retry(ctx, func(ctx context.Context, attempt int) error {
//	    body, err := client.Get(ctx, url)
//	    if err != nil {
//	        return err
//	    }
//	    defer body.Close()
//	    return consume(body)
//	})
//
// Get makes exactly one request. Retry decides whether to try again: only
// errors for which [IsTransient] is true are retried.
package http
