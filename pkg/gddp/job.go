package gddp

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Status is the lifecycle state of a Job within one run.
type Status string

const (
	// StatusPending means the job still needs to be fetched.
	StatusPending Status = "pending"
	// StatusSkipped means a non-empty object already exists at the job's key.
	StatusSkipped Status = "skipped"
	// StatusSucceeded means the job was fetched and committed to storage.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the job exhausted its attempts or hit a write error.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further transition can happen within a run.
func (s Status) Terminal() bool {
	return s == StatusSkipped || s == StatusSucceeded || s == StatusFailed
}

// BBox is a geographic bounding box in degrees.
type BBox struct {
	West  float64 `yaml:"west" json:"west"`
	East  float64 `yaml:"east" json:"east"`
	South float64 `yaml:"south" json:"south"`
	North float64 `yaml:"north" json:"north"`
}

// Validate checks that the box is non-empty and within geographic limits.
func (b BBox) Validate() error {
	if b.West >= b.East {
		return fmt.Errorf("bbox: west (%g) must be less than east (%g)", b.West, b.East)
	}
	if b.South >= b.North {
		return fmt.Errorf("bbox: south (%g) must be less than north (%g)", b.South, b.North)
	}
	if b.South < -90 || b.North > 90 {
		return fmt.Errorf("bbox: latitude out of range [-90, 90]")
	}
	if b.West < -360 || b.East > 360 {
		return fmt.Errorf("bbox: longitude out of range [-360, 360]")
	}
	return nil
}

// YearRange is an inclusive range of years.
type YearRange struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

// Len returns the number of years in the range.
func (r YearRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Member identifies the model run used for a (model, scenario) pair.
type Member struct {
	Ensemble string // e.g. r1i1p1f1
	Grid     string // e.g. gn
}

// Job identifies one file to obtain.
type Job struct {
	Model     string
	Scenario  string
	Ensemble  string
	Grid      string
	Variable  string
	Year      int
	BBox      BBox
	Extension string
	Status    Status
}

// FileName returns the file name shared by the remote resource and the
// destination object, without extension.
func (j Job) FileName() string {
	return fmt.Sprintf("%s_day_%s_%s_%s_%s_%d", j.Variable, j.Model, j.Scenario, j.Ensemble, j.Grid, j.Year)
}

// Key returns the destination object key relative to the storage root:
//
//	<model>/<scenario>/<variable>/<variable>_day_<model>_<scenario>_<ensemble>_<grid>_<year>.<ext>
//
// The key depends only on the job's identifying fields, so distinct jobs
// never share a destination.
func (j Job) Key() string {
	ext := j.Extension
	if ext == "" {
		ext = DefaultExtension
	}
	return strings.Join([]string{j.Model, j.Scenario, j.Variable, j.FileName() + "." + ext}, "/")
}

// String returns a short human-readable identity for logs.
func (j Job) String() string {
	return fmt.Sprintf("%s/%s/%s/%d", j.Model, j.Scenario, j.Variable, j.Year)
}

// DefaultExtension is the destination file extension when none is set.
const DefaultExtension = "nc"

// Query holds the NCSS request parameters that are not derived from the job.
type Query struct {
	// Accept is the requested output encoding. Default: netcdf3
	Accept string
	// HorizStride is the horizontal grid stride. Default: 1
	HorizStride int
	// AddLatLon asks the server to include 2D lat/lon variables.
	AddLatLon bool
}

// DefaultQuery returns the request parameters used by the NCCS data portal.
func DefaultQuery() Query {
	return Query{
		Accept:      "netcdf3",
		HorizStride: 1,
		AddLatLon:   true,
	}
}

// RequestURL builds the NCSS subset URL for the job. The path addresses the
// source file under base and the query subsets it to the job's bounding box
// and calendar year.
func (j Job) RequestURL(base string, q Query) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u = u.JoinPath(j.Model, j.Scenario, j.Ensemble, j.Variable, j.FileName()+".nc")

	if q.Accept == "" {
		q.Accept = "netcdf3"
	}
	if q.HorizStride <= 0 {
		q.HorizStride = 1
	}

	v := url.Values{}
	v.Set("var", j.Variable)
	v.Set("north", formatCoord(j.BBox.North))
	v.Set("south", formatCoord(j.BBox.South))
	v.Set("east", formatCoord(j.BBox.East))
	v.Set("west", formatCoord(j.BBox.West))
	v.Set("horizStride", strconv.Itoa(q.HorizStride))
	v.Set("time_start", fmt.Sprintf("%04d-01-01T12:00:00Z", j.Year))
	v.Set("time_end", fmt.Sprintf("%04d-12-31T12:00:00Z", j.Year))
	v.Set("accept", q.Accept)
	if q.AddLatLon {
		v.Set("addLatLon", "true")
	}
	u.RawQuery = v.Encode()

	return u.String(), nil
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ValidateID checks that an identifier can be used as a key path segment.
func ValidateID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s must not be empty", kind)
	}
	if strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%s %q must not contain path separators", kind, id)
	}
	if id == "." || id == ".." {
		return fmt.Errorf("%s %q is not a valid path segment", kind, id)
	}
	return nil
}

// ValidateMember checks that ensemble and grid can be embedded in a file
// name. Both are underscore-delimited fields, so neither may contain '_'.
func ValidateMember(m Member) error {
	if err := ValidateID("ensemble", m.Ensemble); err != nil {
		return err
	}
	if err := ValidateID("grid", m.Grid); err != nil {
		return err
	}
	if strings.Contains(m.Ensemble, "_") {
		return fmt.Errorf("ensemble %q must not contain '_'", m.Ensemble)
	}
	if strings.Contains(m.Grid, "_") {
		return fmt.Errorf("grid %q must not contain '_'", m.Grid)
	}
	return nil
}
