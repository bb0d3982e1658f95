package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// TotalJobs is the number of jobs in the run, including skipped ones.
	TotalJobs int

	// Workers is the number of parallel workers.
	Workers int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 5s
	UpdateInterval time.Duration

	// Source is the server being downloaded from (for display).
	Source string

	// Destination is the storage location (for display).
	Destination string
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu         sync.Mutex
	succeeded  atomic.Int32
	skipped    atomic.Int32
	failed     atomic.Int32
	inProgress atomic.Int32
	bytes      atomic.Int64
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
	stopCh     chan struct{}
	doneCh     chan struct{}
	started    bool
	stopped    bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 5 * time.Second
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.startTime = time.Now()
	r.lastUpdate = r.startTime
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[gridfetch] Source: %s\n", r.opts.Source)
	fmt.Fprintf(r.opts.Output, "[gridfetch] Destination: %s | Jobs: %d | Workers: %d\n",
		r.opts.Destination,
		r.opts.TotalJobs,
		r.opts.Workers,
	)

	go r.updateLoop()
}

// Stop stops the progress reporter and prints the final status.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped || !r.started {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// JobStarted marks a job as in progress.
func (r *Reporter) JobStarted() {
	r.inProgress.Add(1)
}

// JobSucceeded marks an in-progress job as done and adds its size.
func (r *Reporter) JobSucceeded(size int64) {
	r.bytes.Add(size)
	r.succeeded.Add(1)
	r.inProgress.Add(-1)
}

// JobFailed marks an in-progress job as failed.
func (r *Reporter) JobFailed() {
	r.failed.Add(1)
	r.inProgress.Add(-1)
}

// JobCancelled marks an in-progress job as interrupted. It stays pending.
func (r *Reporter) JobCancelled() {
	r.inProgress.Add(-1)
}

// JobSkipped counts a job that needed no work.
func (r *Reporter) JobSkipped() {
	r.skipped.Add(1)
}

// Counts returns succeeded, skipped, failed and in-progress job counts.
func (r *Reporter) Counts() (succeeded, skipped, failed, inProgress int) {
	return int(r.succeeded.Load()), int(r.skipped.Load()), int(r.failed.Load()), int(r.inProgress.Load())
}

// Bytes returns the number of bytes written so far.
func (r *Reporter) Bytes() int64 {
	return r.bytes.Load()
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	now := time.Now()
	written := r.bytes.Load()
	succeeded, skipped, failed, inProgress := r.Counts()

	// Calculate speed
	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(written-r.lastBytes) / elapsed

	r.lastUpdate = now
	r.lastBytes = written

	done := succeeded + skipped + failed
	var percent float64
	if r.opts.TotalJobs > 0 {
		percent = float64(done) / float64(r.opts.TotalJobs) * 100
	}

	eta := "calculating..."
	if fetched := succeeded + failed; fetched > 0 {
		perJob := now.Sub(r.startTime) / time.Duration(fetched)
		remaining := r.opts.TotalJobs - done - inProgress
		if remaining < 0 {
			remaining = 0
		}
		eta = formatDuration(perJob * time.Duration(remaining))
	}

	pending := r.opts.TotalJobs - done - inProgress
	if pending < 0 {
		pending = 0
	}

	fmt.Fprintf(r.opts.Output, "[gridfetch] Progress: %.1f%% | %d/%d jobs | %s | Speed: %s/s | ETA: %s\n",
		percent,
		done,
		r.opts.TotalJobs,
		formatBytes(written),
		formatBytes(int64(speed)),
		eta,
	)
	fmt.Fprintf(r.opts.Output, "[gridfetch] Jobs: %d succeeded | %d skipped | %d failed | %d in-progress | %d pending\n",
		succeeded,
		skipped,
		failed,
		inProgress,
		pending,
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	written := r.bytes.Load()
	succeeded, skipped, failed, _ := r.Counts()
	duration := time.Since(r.startTime)
	avgSpeed := float64(written) / duration.Seconds()

	fmt.Fprintf(r.opts.Output, "[gridfetch] Jobs: %d succeeded | %d skipped | %d failed\n",
		succeeded,
		skipped,
		failed,
	)
	fmt.Fprintf(r.opts.Output, "[gridfetch] Total time: %s | Written: %s | Average speed: %s/s\n",
		formatDuration(duration),
		formatBytes(written),
		formatBytes(int64(avgSpeed)),
	)
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes is exported for use by other packages.
func FormatBytes(b int64) string {
	return formatBytes(b)
}

// FormatDuration is exported for use by other packages.
func FormatDuration(d time.Duration) string {
	return formatDuration(d)
}
