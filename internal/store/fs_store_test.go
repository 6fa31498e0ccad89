package store

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/hogdesc/internal/locate"
	"github.com/disintegration/imaging"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}

	return store, tempDir
}

func TestNewFSStore(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "nested", "data")

	store, err := NewFSStore(baseDir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if store.BaseDir() != baseDir {
		t.Errorf("BaseDir mismatch: got %s, want %s", store.BaseDir(), baseDir)
	}
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		t.Fatal("Base directory was not created")
	}
}

func TestSaveRecord(t *testing.T) {
	store, tempDir := setupTestStore(t)

	jobID := "test-job-123"
	if err := store.SaveRecord(jobID, createTestRecord(jobID)); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	expectedPath := filepath.Join(tempDir, "jobs", jobID, "record.json")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Fatalf("Record file was not created at %s", expectedPath)
	}

	if _, err := os.Stat(expectedPath + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("Temp file should not exist after save")
	}
}

func TestSaveRecord_RejectsBadInput(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.SaveRecord("", createTestRecord("any-id")); err == nil {
		t.Error("Expected error for empty jobID")
	}
	if err := store.SaveRecord("test-job", nil); err == nil {
		t.Error("Expected error for nil record")
	}

	invalid := createTestRecord("test-job")
	invalid.Hist = invalid.Hist[:3]
	err := store.SaveRecord("test-job", invalid)
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
}

func TestSaveRecord_Overwrite(t *testing.T) {
	store, _ := setupTestStore(t)

	jobID := "test-job-overwrite"
	first := createTestRecord(jobID)
	first.Summary.ActiveCells = 1
	second := createTestRecord(jobID)
	second.Summary.ActiveCells = 5

	if err := store.SaveRecord(jobID, first); err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	if err := store.SaveRecord(jobID, second); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := store.LoadRecord(jobID)
	if err != nil {
		t.Fatalf("LoadRecord failed: %v", err)
	}
	if loaded.Summary.ActiveCells != 5 {
		t.Errorf("Expected overwritten record, got %d active cells", loaded.Summary.ActiveCells)
	}
}

func TestLoadRecord(t *testing.T) {
	store, _ := setupTestStore(t)

	jobID := "test-job-load"
	original := createTestLocateRecord(jobID)
	if err := store.SaveRecord(jobID, original); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	loaded, err := store.LoadRecord(jobID)
	if err != nil {
		t.Fatalf("LoadRecord failed: %v", err)
	}

	if loaded.JobID != original.JobID {
		t.Errorf("JobID mismatch: got %s, want %s", loaded.JobID, original.JobID)
	}
	if loaded.Config != original.Config {
		t.Errorf("Config mismatch: got %+v, want %+v", loaded.Config, original.Config)
	}
	if loaded.Match == nil || loaded.Match.X != 12 || loaded.Match.Y != 4 {
		t.Errorf("Match mismatch: got %+v", loaded.Match)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("Loaded record is invalid: %v", err)
	}
}

func TestLoadRecord_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.LoadRecord("nonexistent-job")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.JobID != "nonexistent-job" {
		t.Errorf("Expected NotFoundError carrying the job ID, got %v", err)
	}
}

func TestLoadRecord_Corrupt(t *testing.T) {
	store, tempDir := setupTestStore(t)

	jobDir := filepath.Join(tempDir, "jobs", "corrupt")
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(jobDir, "record.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := store.LoadRecord("corrupt")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Expected a decode error, got %v", err)
	}
}

func TestListRecords_Empty(t *testing.T) {
	store, _ := setupTestStore(t)

	infos, err := store.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected 0 records, got %d", len(infos))
	}
}

func TestListRecords_NewestFirst(t *testing.T) {
	store, _ := setupTestStore(t)

	base := time.Now()
	for i := 0; i < 3; i++ {
		jobID := fmt.Sprintf("job-%d", i)
		r := createTestRecord(jobID)
		r.Timestamp = base.Add(time.Duration(i) * time.Minute)
		if err := store.SaveRecord(jobID, r); err != nil {
			t.Fatalf("SaveRecord failed: %v", err)
		}
	}

	infos, err := store.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(infos))
	}
	for i, want := range []string{"job-2", "job-1", "job-0"} {
		if infos[i].JobID != want {
			t.Errorf("Position %d: got %s, want %s", i, infos[i].JobID, want)
		}
	}
}

func TestListRecords_SkipsInvalidEntries(t *testing.T) {
	store, tempDir := setupTestStore(t)

	if err := store.SaveRecord("valid-job", createTestRecord("valid-job")); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	jobsDir := filepath.Join(tempDir, "jobs")
	if err := os.MkdirAll(filepath.Join(jobsDir, "empty-job"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(jobsDir, "stray.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(jobsDir, "broken-job"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(jobsDir, "broken-job", "record.json"), []byte("[]"), 0644); err != nil {
		t.Fatal(err)
	}

	infos, err := store.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(infos) != 1 || infos[0].JobID != "valid-job" {
		t.Errorf("Expected only valid-job, got %+v", infos)
	}
}

func TestDeleteRecord(t *testing.T) {
	store, tempDir := setupTestStore(t)

	jobID := "test-job-delete"
	if err := store.SaveRecord(jobID, createTestRecord(jobID)); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}
	tw, err := store.CreateTrace(jobID)
	if err != nil {
		t.Fatalf("CreateTrace failed: %v", err)
	}
	tw.Close()

	if err := store.DeleteRecord(jobID); err != nil {
		t.Fatalf("DeleteRecord failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tempDir, "jobs", jobID)); !os.IsNotExist(err) {
		t.Error("Job directory should be removed")
	}
	if err := store.DeleteRecord(jobID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
	if err := store.DeleteRecord(""); err == nil {
		t.Error("Expected error for empty jobID")
	}
}

func TestSaveVisualization(t *testing.T) {
	store, _ := setupTestStore(t)

	img := image.NewGray(image.Rect(0, 0, 6, 4))
	img.SetGray(2, 1, color.Gray{Y: 200})

	if err := store.SaveVisualization("viz-job", img); err != nil {
		t.Fatalf("SaveVisualization failed: %v", err)
	}

	decoded, err := imaging.Open(store.VisualizationPath("viz-job"))
	if err != nil {
		t.Fatalf("Failed to decode saved PNG: %v", err)
	}
	if decoded.Bounds().Dx() != 6 || decoded.Bounds().Dy() != 4 {
		t.Errorf("Unexpected size %v", decoded.Bounds())
	}
	if r, _, _, _ := decoded.At(2, 1).RGBA(); r>>8 != 200 {
		t.Errorf("Expected pixel value 200, got %d", r>>8)
	}
}

func TestCreateAndReadTrace(t *testing.T) {
	store, _ := setupTestStore(t)

	tw, err := store.CreateTrace("trace-job")
	if err != nil {
		t.Fatalf("CreateTrace failed: %v", err)
	}
	tw.Evaluation(locate.Evaluation{Index: 1, X: 3, Y: 2, Distance: 0.5})
	tw.Evaluation(locate.Evaluation{Index: 2, X: 4, Y: 2, Distance: 0.25})
	if err := tw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := store.ReadTrace("trace-job")
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(entries) != 2 || entries[1].Distance != 0.25 {
		t.Errorf("Unexpected trace entries: %+v", entries)
	}

	if _, err := store.ReadTrace("no-such-job"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.CreateTrace(""); err == nil {
		t.Error("Expected error for empty jobID")
	}
}

func TestConcurrentSave(t *testing.T) {
	store, _ := setupTestStore(t)

	const numJobs = 10
	var wg sync.WaitGroup
	errs := make(chan error, numJobs)

	for i := 0; i < numJobs; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			jobID := fmt.Sprintf("concurrent-job-%d", idx)
			errs <- store.SaveRecord(jobID, createTestRecord(jobID))
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent save failed: %v", err)
		}
	}

	infos, err := store.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(infos) != numJobs {
		t.Errorf("Expected %d records, got %d", numJobs, len(infos))
	}
}
