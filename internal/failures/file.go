package failures

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileRecorder appends one JSON object per line to a local file.
type FileRecorder struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
	f  *os.File
}

// OpenFile opens path for appending, creating it and its directory if needed.
func OpenFile(path string, logger *slog.Logger) (*FileRecorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create failure log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open failure log: %w", err)
	}

	return &FileRecorder{
		path:   path,
		logger: loggerOrDefault(logger),
		f:      f,
	}, nil
}

// Record appends rec as a single line. The line is written with one call
// and synced, so concurrent records never interleave.
func (r *FileRecorder) Record(ctx context.Context, rec Record) {
	line, err := json.Marshal(rec)
	if err != nil {
		r.logger.Warn("encode failure record", "key", rec.Key, "error", err)
		return
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		r.logger.Warn("failure log closed, dropping record", "key", rec.Key)
		return
	}
	if _, err := r.f.Write(line); err != nil {
		r.logger.Warn("write failure record", "path", r.path, "key", rec.Key, "error", err)
		return
	}
	if err := r.f.Sync(); err != nil {
		r.logger.Warn("sync failure log", "path", r.path, "error", err)
	}
}

// Location returns the path of the log file.
func (r *FileRecorder) Location() string {
	return r.path
}

// Close closes the underlying file.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// ReadFile reads all records from a JSON-lines failure log. A missing file
// holds no records. Lines that do not decode are skipped.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open failure log: %w", err)
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return records, fmt.Errorf("read failure log: %w", err)
	}

	return records, nil
}
