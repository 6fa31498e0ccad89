// Package store persists finished descriptor and locate jobs.
package store

import "image"

// Store persists job records and their artifacts. Implementations must be
// safe for concurrent use.
//
// Load and Delete return ErrNotFound (matchable with errors.Is) when no
// record exists for the job.
type Store interface {
	// SaveRecord atomically writes the record for jobID, replacing any
	// previous one.
	SaveRecord(jobID string, record *Record) error

	// LoadRecord reads the record for jobID.
	LoadRecord(jobID string) (*Record, error)

	// ListRecords returns metadata for every readable record.
	ListRecords() ([]RecordInfo, error)

	// DeleteRecord removes the record and every artifact of the job
	// (record.json, hog.png, trace.jsonl).
	DeleteRecord(jobID string) error

	// SaveVisualization writes the glyph rendering of the job's descriptor.
	SaveVisualization(jobID string, img image.Image) error

	// CreateTrace opens a fresh evaluation trace for jobID.
	CreateTrace(jobID string) (*TraceWriter, error)

	// ReadTrace returns every entry of the job's trace.
	ReadTrace(jobID string) ([]TraceEntry, error)
}

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError reports a missing record.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	if e.JobID != "" {
		return "record not found: " + e.JobID
	}
	return "record not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
