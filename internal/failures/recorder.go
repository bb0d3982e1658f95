package failures

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	gfhttp "github.com/ligustah/gridfetch/internal/http"
	"github.com/ligustah/gridfetch/pkg/gddp"
)

// Kind classifies why a job failed.
type Kind string

const (
	// KindFetch means every attempt to fetch the job failed transiently.
	KindFetch Kind = "fetch"
	// KindWrite means the payload could not be written to storage.
	KindWrite Kind = "write"
)

// Record is one failed job. Records are append-only.
type Record struct {
	RunID    string    `json:"run_id"`
	Time     time.Time `json:"time"`
	Model    string    `json:"model"`
	Scenario string    `json:"scenario"`
	Ensemble string    `json:"ensemble"`
	Grid     string    `json:"grid"`
	Variable string    `json:"variable"`
	Year     int       `json:"year"`
	Key      string    `json:"key"`
	URL      string    `json:"url,omitempty"`
	Kind     Kind      `json:"kind"`
	Reason   string    `json:"reason,omitempty"`
	Cause    string    `json:"cause"`
	Attempt  int       `json:"attempt"`
}

// NewRecord fills a record with the identity of j.
func NewRecord(runID string, j gddp.Job, url string, kind Kind, cause error, attempt int) Record {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return Record{
		RunID:    runID,
		Time:     time.Now().UTC(),
		Model:    j.Model,
		Scenario: j.Scenario,
		Ensemble: j.Ensemble,
		Grid:     j.Grid,
		Variable: j.Variable,
		Year:     j.Year,
		Key:      j.Key(),
		URL:      url,
		Kind:     kind,
		Reason:   Reason(cause),
		Cause:    msg,
		Attempt:  attempt,
	}
}

// Reason reduces err to a cause shared by every job that failed the same
// way: the response status, a timeout, an empty body, or the innermost error.
// Job identity and URLs stay in Record.Cause.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, gfhttp.ErrEmptyBody) {
		return "empty response body"
	}
	var te *gfhttp.TransientError
	if errors.As(err, &te) && te.StatusCode != 0 {
		return fmt.Sprintf("status %d %s", te.StatusCode, http.StatusText(te.StatusCode))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout"
	}
	for {
		inner := errors.Unwrap(err)
		if inner == nil {
			return err.Error()
		}
		err = inner
	}
}

// Recorder appends failure records. Record never fails: sink errors are
// logged and dropped so that a broken log cannot abort a batch.
type Recorder interface {
	Record(ctx context.Context, rec Record)
	Location() string
	Close() error
}

// Open opens a recorder for location. Paths ending in .db or .sqlite open a
// sqlite database; anything else is a JSON-lines file.
func Open(location string, logger *slog.Logger) (Recorder, error) {
	lower := strings.ToLower(location)
	if strings.HasSuffix(lower, ".db") || strings.HasSuffix(lower, ".sqlite") {
		return OpenSQLite(location, logger)
	}
	return OpenFile(location, logger)
}

// Read loads all records from location, choosing the format like Open.
func Read(ctx context.Context, location string) ([]Record, error) {
	lower := strings.ToLower(location)
	if strings.HasSuffix(lower, ".db") || strings.HasSuffix(lower, ".sqlite") {
		s, err := OpenSQLite(location, nil)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		return s.List(ctx, 0)
	}
	return ReadFile(location)
}

// Discard is a Recorder that drops everything.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(context.Context, Record) {}
func (discard) Location() string               { return "" }
func (discard) Close() error                   { return nil }

// Summary groups records by reason for triage output.
type Summary struct {
	Reason string
	Kind   Kind
	Count  int
}

// Summarize groups records by (kind, reason), most frequent first. Records
// written without a reason are grouped by their cause.
func Summarize(records []Record) []Summary {
	type key struct {
		kind   Kind
		reason string
	}
	idx := make(map[key]int)
	var out []Summary
	for _, r := range records {
		reason := r.Reason
		if reason == "" {
			reason = r.Cause
		}
		k := key{r.Kind, reason}
		if i, ok := idx[k]; ok {
			out[i].Count++
			continue
		}
		idx[k] = len(out)
		out = append(out, Summary{Reason: reason, Kind: r.Kind, Count: 1})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
