// Package downloader executes download jobs against an NCSS endpoint and
// commits each payload to blob storage.
//
// # Usage
//
// The main entry point is the Run function:
//
//	report, err := downloader.Run(ctx, jobs, bucket, downloader.Options{
//	    Workers:  4,
//	    Client:   client,
//	    BaseURL:  cfg.BaseURL,
//	    Recorder: recorder,
//	})
//
// # Storage gate
//
// Before anything is dispatched, Filter checks the destination of every
// job. A non-empty object means the job is skipped; a missing or zero-byte
// object means it is fetched. Running the same batch twice therefore makes
// no requests the second time.
//
// # Worker Pool
//
// At most Options.Workers jobs are in flight. Each job waits the client's
// politeness delay before every request and gets the client's attempt
// budget. A job that runs out of attempts, or whose payload storage
// rejects, is recorded once through Options.Recorder and the rest of the
// batch continues.
//
// # Atomicity
//
// Payloads are streamed to a blob writer that is committed only after the
// body was read completely. Any failure before that point aborts the
// writer, so an object at a job's key is always a complete payload.
//
// # Graceful Shutdown
//
// When the context is cancelled:
//   - No new jobs are dispatched
//   - In-flight writes are aborted
//   - Unfinished jobs stay pending and are not recorded as failures
package downloader
