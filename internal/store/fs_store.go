package store

import (
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
)

const (
	recordFile        = "record.json"
	visualizationFile = "hog.png"
)

var _ Store = (*FSStore)(nil)

// FSStore implements Store on the filesystem. Each job owns the directory
// <baseDir>/jobs/<jobID>/.
//
// Writes go to a temp file that is renamed into place, so readers never see
// a partial file and no locking is needed.
type FSStore struct {
	baseDir string
}

// NewFSStore creates the base directory if needed and returns a store on it.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

func (fs *FSStore) jobDir(jobID string) string {
	return filepath.Join(fs.baseDir, "jobs", jobID)
}

func (fs *FSStore) recordPath(jobID string) string {
	return filepath.Join(fs.jobDir(jobID), recordFile)
}

// VisualizationPath returns where SaveVisualization writes the job's image.
func (fs *FSStore) VisualizationPath(jobID string) string {
	return filepath.Join(fs.jobDir(jobID), visualizationFile)
}

// writeAtomic writes through a temp file in the job directory and renames
// it to name.
func (fs *FSStore) writeAtomic(jobID, name string, write func(f *os.File) error) (string, error) {
	jobDir := fs.jobDir(jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create job directory: %w", err)
	}

	finalPath := filepath.Join(jobDir, name)
	tempPath := finalPath + ".tmp"

	f, err := os.Create(tempPath)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tempPath)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to rename %s: %w", name, err)
	}
	return finalPath, nil
}

// SaveRecord validates and atomically saves the record for jobID.
func (fs *FSStore) SaveRecord(jobID string, record *Record) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid record: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	path, err := fs.writeAtomic(jobID, recordFile, func(f *os.File) error {
		if _, err := f.Write(data); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Debug("Record saved", "jobID", jobID, "path", path)
	return nil
}

// LoadRecord reads the record for jobID.
func (fs *FSStore) LoadRecord(jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}

	path := fs.recordPath(jobID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{JobID: jobID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize record: %w", err)
	}

	slog.Debug("Record loaded", "jobID", jobID, "path", path)
	return &record, nil
}

// ListRecords returns metadata for every readable record, newest first.
// Corrupt records are logged and skipped.
func (fs *FSStore) ListRecords() ([]RecordInfo, error) {
	jobsDir := filepath.Join(fs.baseDir, "jobs")

	entries, err := os.ReadDir(jobsDir)
	if os.IsNotExist(err) {
		return []RecordInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read jobs directory: %w", err)
	}

	infos := []RecordInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		jobID := entry.Name()
		if _, err := os.Stat(fs.recordPath(jobID)); os.IsNotExist(err) {
			continue
		}

		record, err := fs.LoadRecord(jobID)
		if err != nil {
			slog.Warn("Failed to load record for listing", "jobID", jobID, "error", err)
			continue
		}

		infos = append(infos, record.ToInfo())
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})

	slog.Debug("Listed records", "count", len(infos))
	return infos, nil
}

// DeleteRecord removes the job directory with all its artifacts.
func (fs *FSStore) DeleteRecord(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}

	jobDir := fs.jobDir(jobID)
	if _, err := os.Stat(jobDir); os.IsNotExist(err) {
		return &NotFoundError{JobID: jobID}
	} else if err != nil {
		return fmt.Errorf("failed to stat job directory: %w", err)
	}

	if err := os.RemoveAll(jobDir); err != nil {
		return fmt.Errorf("failed to remove job directory: %w", err)
	}

	slog.Debug("Record deleted", "jobID", jobID, "path", jobDir)
	return nil
}

// SaveVisualization atomically writes img as the job's hog.png.
func (fs *FSStore) SaveVisualization(jobID string, img image.Image) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}

	path, err := fs.writeAtomic(jobID, visualizationFile, func(f *os.File) error {
		if err := imaging.Encode(f, img, imaging.PNG); err != nil {
			return fmt.Errorf("failed to encode visualization: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Debug("Visualization saved", "jobID", jobID, "path", path)
	return nil
}

// CreateTrace truncates and opens the job's trace.jsonl.
func (fs *FSStore) CreateTrace(jobID string) (*TraceWriter, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}
	return NewTraceWriter(fs.baseDir, jobID, false)
}

// ReadTrace reads the job's trace.jsonl.
func (fs *FSStore) ReadTrace(jobID string) ([]TraceEntry, error) {
	tr, err := NewTraceReader(fs.baseDir, jobID)
	if err != nil {
		return nil, err
	}
	defer tr.Close()
	return tr.ReadAll()
}
