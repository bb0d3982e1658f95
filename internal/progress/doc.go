// Package progress provides progress reporting for download runs.
//
// This package outputs human-readable progress information to stderr,
// including job counts by status, transfer speed, and ETA.
//
// # Usage
//
//	reporter := progress.NewReporter(Options{
//	    TotalJobs: len(jobs),
//	    Workers:   1,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	// Update as jobs finish
//	reporter.JobStarted()
//	reporter.JobSucceeded(size)
//
// # Output Format
//
//	[gridfetch] Source: https://ds.nccs.nasa.gov/thredds/ncss/grid/AMES/NEX/GDDP-CMIP6
//	[gridfetch] Destination: data | Jobs: 26520 | Workers: 1
//	[gridfetch] Progress: 45.2% | 11987/26520 jobs | 1.13 GB | Speed: 48.20 KB/s | ETA: 18h 32m 5s
//	[gridfetch] Jobs: 4628 succeeded | 7350 skipped | 9 failed | 1 in-progress | 14532 pending
package progress
