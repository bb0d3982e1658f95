package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/ligustah/gridfetch/internal/storage"
	"github.com/ligustah/gridfetch/pkg/gddp"
)

// Entry is one manifest row.
type Entry struct {
	Model    string
	Scenario string
	Variable string
	Ensemble string
	Grid     string
}

// Member returns the run identity carried by the entry.
func (e Entry) Member() gddp.Member {
	return gddp.Member{Ensemble: e.Ensemble, Grid: e.Grid}
}

// Manifest is an immutable, ordered list of catalog entries.
type Manifest struct {
	entries []Entry
}

// NewManifest builds a manifest from entries, preserving their order.
func NewManifest(entries []Entry) *Manifest {
	return &Manifest{entries: append([]Entry(nil), entries...)}
}

// Entries returns a copy of the manifest rows.
func (m *Manifest) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

// Len returns the number of rows.
func (m *Manifest) Len() int {
	return len(m.entries)
}

// ErrMalformed is returned for manifests that cannot be interpreted.
var ErrMalformed = errors.New("catalog: malformed manifest")

const fileURLColumn = "fileURL"

var flatColumns = []string{"model", "scenario", "variable", "ensemble", "grid"}

// Parse reads a manifest in CSV form. Two layouts are accepted:
//
//   - an NCCS file listing with a fileURL column whose values end in
//     {model}/{scenario}/{ensemble}/{variable}/{file}.nc
//   - a flat table with model, scenario, variable, ensemble and grid columns
func Parse(r io.Reader) (*Manifest, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrMalformed, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}

	var parseRow func([]string) (Entry, error)
	if idx, ok := cols[fileURLColumn]; ok {
		parseRow = func(rec []string) (Entry, error) {
			if idx >= len(rec) {
				return Entry{}, errors.New("missing fileURL field")
			}
			return parseFileURL(rec[idx])
		}
	} else {
		idx := make([]int, len(flatColumns))
		for i, name := range flatColumns {
			c, ok := cols[name]
			if !ok {
				return nil, fmt.Errorf("%w: missing column %q (and no %s column)", ErrMalformed, name, fileURLColumn)
			}
			idx[i] = c
		}
		parseRow = func(rec []string) (Entry, error) {
			field := func(i int) string {
				if idx[i] >= len(rec) {
					return ""
				}
				return strings.TrimSpace(rec[idx[i]])
			}
			return Entry{
				Model:    field(0),
				Scenario: field(1),
				Variable: field(2),
				Ensemble: field(3),
				Grid:     field(4),
			}, nil
		}
	}

	var entries []Entry
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if isBlank(rec) {
			continue
		}

		line, _ := cr.FieldPos(0)
		e, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		if err := validateEntry(e); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		entries = append(entries, e)
	}

	return &Manifest{entries: entries}, nil
}

// parseFileURL extracts an entry from an NCCS file URL such as
//
//	https://host/thredds/fileServer/AMES/NEX/GDDP-CMIP6/ACCESS-CM2/historical/r1i1p1f1/tasmax/tasmax_day_ACCESS-CM2_historical_r1i1p1f1_gn_1950.nc
func parseFileURL(raw string) (Entry, error) {
	raw = strings.TrimSpace(raw)
	path := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		path = u.Path
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 5 {
		return Entry{}, fmt.Errorf("file url %q has too few path components", raw)
	}
	parts = parts[len(parts)-5:]

	fileName := parts[4]
	fields := strings.Split(fileName, "_")
	if len(fields) != 7 {
		return Entry{}, fmt.Errorf("file name %q does not have 7 '_'-separated fields", fileName)
	}

	return Entry{
		Model:    parts[0],
		Scenario: parts[1],
		Variable: parts[3],
		Ensemble: fields[4],
		Grid:     fields[5],
	}, nil
}

func validateEntry(e Entry) error {
	if err := gddp.ValidateID("model", e.Model); err != nil {
		return err
	}
	if err := gddp.ValidateID("scenario", e.Scenario); err != nil {
		return err
	}
	if err := gddp.ValidateID("variable", e.Variable); err != nil {
		return err
	}
	return gddp.ValidateMember(e.Member())
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Load reads and parses a manifest from a local path or a blob URL
// (s3://bucket/key.csv, gs://bucket/key.csv, file:///path, mem://...).
func Load(ctx context.Context, location string) (*Manifest, error) {
	rc, err := storage.OpenReader(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer rc.Close()

	m, err := Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", location, err)
	}
	return m, nil
}
