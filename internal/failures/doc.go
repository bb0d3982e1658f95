// Package failures records jobs that could not be downloaded.
//
// Records are append-only and are never read back by the downloader; they
// exist for operator triage. A [Recorder] must not fail the batch, so
// Record has no error result and sink errors are only logged.
//
// # Sinks
//
//   - [FileRecorder]: JSON lines, one record per line, appended with a
//     single write under a mutex and synced.
//   - [SQLiteRecorder]: a failures table in a sqlite database, selected by
//     a .db or .sqlite suffix.
//
// # Record Format
//
//	{"run_id":"5b0c...","time":"2025-01-15T10:30:00Z","model":"CanESM5",
//	 "scenario":"ssp585","ensemble":"r1i1p1f1","grid":"gn","variable":"tasmax",
//	 "year":2050,"key":"CanESM5/ssp585/tasmax/...","url":"https://...",
//	 "kind":"fetch","cause":"transient: ...: status 503: http: server error",
//	 "attempt":2}
package failures
