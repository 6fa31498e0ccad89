package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/hogdesc/internal/hog"
	"github.com/cwbudde/hogdesc/internal/locate"
)

// JobKind selects what a job computes.
type JobKind string

const (
	KindDescribe JobKind = "describe"
	KindLocate   JobKind = "locate"
)

// JobConfig is the configuration a job ran with. The server converts its own
// request type into this one so the store does not depend on it.
type JobConfig struct {
	Kind         JobKind `json:"kind"`
	ImagePath    string  `json:"imagePath"`
	TemplatePath string  `json:"templatePath,omitempty"` // locate only
	CellWidth    int     `json:"cellWidth"`
	CellHeight   int     `json:"cellHeight"`
	Bins         int     `json:"bins"`
	Gray         string  `json:"gray,omitempty"`
	Blur         float64 `json:"blur,omitempty"`
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
	Iters        int     `json:"iters,omitempty"`   // locate only
	PopSize      int     `json:"popSize,omitempty"` // locate only
	Seed         int64   `json:"seed,omitempty"`
}

// Params returns the descriptor parameters of the configuration.
func (c JobConfig) Params() hog.Params {
	return hog.Params{CellWidth: c.CellWidth, CellHeight: c.CellHeight, Bins: c.Bins}
}

// Record is the persisted outcome of a job.
//
// For describe jobs Hist is the descriptor of the image. For locate jobs it
// is the descriptor of the template and Match holds the best window.
type Record struct {
	JobID     string         `json:"jobId"`
	Config    JobConfig      `json:"config"`
	Grid      hog.Grid       `json:"grid"`
	Hist      []float64      `json:"hist"`
	Summary   hog.Summary    `json:"summary"`
	Match     *locate.Result `json:"match,omitempty"`
	Elapsed   time.Duration  `json:"elapsedNs"`
	Timestamp time.Time      `json:"timestamp"`
}

// RecordInfo is the listing view of a record, without the histogram.
type RecordInfo struct {
	JobID       string    `json:"jobId"`
	Kind        JobKind   `json:"kind"`
	ImagePath   string    `json:"imagePath"`
	Grid        hog.Grid  `json:"grid"`
	ActiveCells int       `json:"activeCells"`
	Distance    *float64  `json:"distance,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewRecord builds a record from a finished descriptor.
func NewRecord(jobID string, config JobConfig, d *hog.Descriptor, match *locate.Result, elapsed time.Duration) *Record {
	return &Record{
		JobID:     jobID,
		Config:    config,
		Grid:      d.Grid,
		Hist:      d.Hist,
		Summary:   hog.Summarize(d),
		Match:     match,
		Elapsed:   elapsed,
		Timestamp: time.Now(),
	}
}

// Descriptor returns the record's histogram as a descriptor. The histogram
// is shared, not copied.
func (r *Record) Descriptor() *hog.Descriptor {
	return &hog.Descriptor{Params: r.Config.Params(), Grid: r.Grid, Hist: r.Hist}
}

// ToInfo converts a Record to its listing view.
func (r *Record) ToInfo() RecordInfo {
	info := RecordInfo{
		JobID:       r.JobID,
		Kind:        r.Config.Kind,
		ImagePath:   r.Config.ImagePath,
		Grid:        r.Grid,
		ActiveCells: r.Summary.ActiveCells,
		Timestamp:   r.Timestamp,
	}
	if r.Match != nil {
		d := r.Match.Distance
		info.Distance = &d
	}
	return info
}

// Validate checks that the record is complete and self-consistent.
func (r *Record) Validate() error {
	if r.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Config.ImagePath == "" {
		return &ValidationError{Field: "Config.ImagePath", Reason: "cannot be empty"}
	}
	if err := r.Config.Params().Validate(); err != nil {
		return &ValidationError{Field: "Config", Reason: err.Error()}
	}
	switch r.Config.Kind {
	case KindDescribe:
	case KindLocate:
		if r.Config.TemplatePath == "" {
			return &ValidationError{Field: "Config.TemplatePath", Reason: "cannot be empty for locate jobs"}
		}
		if r.Match == nil {
			return &ValidationError{Field: "Match", Reason: "cannot be nil for locate jobs"}
		}
	default:
		return &ValidationError{Field: "Config.Kind", Reason: fmt.Sprintf("unknown kind %q", r.Config.Kind)}
	}
	if r.Grid.Bins != r.Config.Bins {
		return &ValidationError{
			Field:  "Grid.Bins",
			Reason: fmt.Sprintf("expected %d bins, got %d", r.Config.Bins, r.Grid.Bins),
		}
	}
	if r.Grid.Cells() == 0 {
		return &ValidationError{Field: "Grid", Reason: "cannot be empty"}
	}
	if len(r.Hist) != r.Grid.Len() {
		return &ValidationError{
			Field:  "Hist",
			Reason: fmt.Sprintf("length mismatch: expected %d values for %dx%d cells", r.Grid.Len(), r.Grid.CellsY, r.Grid.CellsX),
		}
	}
	return nil
}

// ValidationError reports an invalid record field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible reports whether descriptors produced with config can be
// compared against this record: same image preprocessing and cell layout.
func (r *Record) IsCompatible(config JobConfig) error {
	checks := []struct {
		field            string
		expected, actual string
	}{
		{"CellWidth", fmt.Sprint(r.Config.CellWidth), fmt.Sprint(config.CellWidth)},
		{"CellHeight", fmt.Sprint(r.Config.CellHeight), fmt.Sprint(config.CellHeight)},
		{"Bins", fmt.Sprint(r.Config.Bins), fmt.Sprint(config.Bins)},
		{"Gray", grayName(r.Config.Gray), grayName(config.Gray)},
		{"Blur", fmt.Sprint(r.Config.Blur), fmt.Sprint(config.Blur)},
	}
	for _, c := range checks {
		if c.expected != c.actual {
			return &CompatibilityError{Field: c.field, Expected: c.expected, Actual: c.actual}
		}
	}
	return nil
}

func grayName(g string) string {
	if g == "" {
		return "luma"
	}
	return g
}

// CompatibilityError reports a configuration mismatch between two records.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
