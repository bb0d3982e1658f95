package downloader

import (
	"fmt"

	"github.com/ligustah/gridfetch/pkg/gddp"
)

// FetchError is returned when every attempt to fetch a job failed
// transiently.
//
// Use errors.As to extract it; Err is the error from the final attempt.
type FetchError struct {
	Job      gddp.Job
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: giving up after %d attempts: %v", e.Job, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// WriteError is returned when a payload could not be written to storage.
// Write errors are not retried.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
