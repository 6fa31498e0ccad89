package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/hogdesc/internal/hog"
	"github.com/cwbudde/hogdesc/internal/store"
	"github.com/spf13/cobra"
)

func TestSelectRecordsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	infos := []store.RecordInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)}, // 10 days old
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},  // 5 days old
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},  // 1 day old
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)}, // 30 days old
	}

	toDelete := selectRecordsForDeletion(infos, 0, 7, now)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 records to delete, got %d", len(toDelete))
	}
	if toDelete[0].JobID != "job4" || toDelete[1].JobID != "job1" {
		t.Errorf("Expected job4 and job1 oldest first, got %s and %s", toDelete[0].JobID, toDelete[1].JobID)
	}
}

func TestSelectRecordsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	infos := []store.RecordInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectRecordsForDeletion(infos, 2, 0, now)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 records to delete, got %d", len(toDelete))
	}
	for _, info := range toDelete {
		if info.JobID != "job4" && info.JobID != "job1" {
			t.Errorf("Unexpected record %s selected for deletion", info.JobID)
		}
	}

	if got := selectRecordsForDeletion(infos, 10, 0, now); len(got) != 0 {
		t.Errorf("Expected nothing to delete when keeping more than exist, got %d", len(got))
	}
}

func TestSelectRecordsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	infos := []store.RecordInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)},
		{JobID: "job5", Timestamp: now.AddDate(0, 0, -2)},
	}

	// Age selects job4 and job1; keeping 2 also drops job2. No duplicates.
	toDelete := selectRecordsForDeletion(infos, 2, 7, now)

	want := []string{"job4", "job1", "job2"}
	if len(toDelete) != len(want) {
		t.Fatalf("Expected %d records to delete, got %d", len(want), len(toDelete))
	}
	for i, id := range want {
		if toDelete[i].JobID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, toDelete[i].JobID)
		}
	}
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "test.txt")
	content := []byte("Hello, World!")
	if err := os.WriteFile(testFile, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	size, err := getDirSize(tmpDir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}

	if size < int64(len(content)) {
		t.Errorf("Expected size >= %d, got %d", len(content), size)
	}

	if _, err := getDirSize(filepath.Join(tmpDir, "missing")); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDisplayID(t *testing.T) {
	if got := displayID("short"); got != "short" {
		t.Errorf("Expected short ID unchanged, got %q", got)
	}
	if got := displayID("0123456789abcdef"); got != "0123456789ab..." {
		t.Errorf("Expected truncated ID, got %q", got)
	}
}

// seedRecords saves n describe records with increasing timestamps.
func seedRecords(t *testing.T, dir string, n int) *store.FSStore {
	t.Helper()

	fsStore, err := store.NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	img := &hog.Image{Rows: 4, Cols: 4, Pix: make([]float64, 16)}
	img.Pix[5] = 1
	d, err := hog.Describe(img, hog.Params{CellWidth: 2, CellHeight: 2, Bins: 9})
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}

	config := store.JobConfig{Kind: store.KindDescribe, ImagePath: "in.png", CellWidth: 2, CellHeight: 2, Bins: 9, Gray: "luma"}
	base := time.Now().Add(-time.Duration(n) * time.Hour)
	for i := 0; i < n; i++ {
		id := string(rune('a'+i)) + "-record"
		record := store.NewRecord(id, config, d, nil, time.Millisecond)
		record.Timestamp = base.Add(time.Duration(i) * time.Hour)
		if err := fsStore.SaveRecord(id, record); err != nil {
			t.Fatalf("SaveRecord failed: %v", err)
		}
	}
	return fsStore
}

func withDataDir(t *testing.T, dir string) {
	t.Helper()
	old := dataDir
	dataDir = dir
	t.Cleanup(func() { dataDir = old })
}

func testCommand(out *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetIn(strings.NewReader(""))
	return cmd
}

func TestRunListRecords(t *testing.T) {
	dir := t.TempDir()
	withDataDir(t, dir)

	var out bytes.Buffer
	if err := runListRecords(testCommand(&out), nil); err != nil {
		t.Fatalf("runListRecords failed: %v", err)
	}
	if !strings.Contains(out.String(), "No records found.") {
		t.Errorf("Expected empty message, got %q", out.String())
	}

	seedRecords(t, dir, 3)
	out.Reset()
	if err := runListRecords(testCommand(&out), nil); err != nil {
		t.Fatalf("runListRecords failed: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "Total records: 3") {
		t.Errorf("Expected 3 records, got %q", text)
	}
	if !strings.Contains(text, "2x2x9") {
		t.Error("Expected grid column")
	}
	// Newest first.
	if strings.Index(text, "c-record") > strings.Index(text, "a-record") {
		t.Error("Expected newest record first")
	}
}

func TestRunShowRecord(t *testing.T) {
	dir := t.TempDir()
	withDataDir(t, dir)
	seedRecords(t, dir, 1)

	var out bytes.Buffer
	if err := runShowRecord(testCommand(&out), []string{"a-record"}); err != nil {
		t.Fatalf("runShowRecord failed: %v", err)
	}
	for _, want := range []string{"Job: a-record", "Kind: describe", "Grid: 2x2 cells (36 values)", "Active cells: 3"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected %q in output:\n%s", want, out.String())
		}
	}

	if err := runShowRecord(testCommand(&out), []string{"missing"}); err == nil {
		t.Error("Expected error for missing record")
	}
}

func TestRunCleanRecords(t *testing.T) {
	dir := t.TempDir()
	withDataDir(t, dir)
	fsStore := seedRecords(t, dir, 4)

	oldKeep, oldForce := keepLast, forceClean
	t.Cleanup(func() { keepLast, forceClean = oldKeep, oldForce })

	// Without confirmation nothing is deleted.
	keepLast, forceClean = 1, false
	var out bytes.Buffer
	if err := runCleanRecords(testCommand(&out), nil); err != nil {
		t.Fatalf("runCleanRecords failed: %v", err)
	}
	if !strings.Contains(out.String(), "Aborted.") {
		t.Errorf("Expected abort, got %q", out.String())
	}

	forceClean = true
	out.Reset()
	if err := runCleanRecords(testCommand(&out), nil); err != nil {
		t.Fatalf("runCleanRecords failed: %v", err)
	}
	if !strings.Contains(out.String(), "Deleted 3 record(s), 0 failed.") {
		t.Errorf("Unexpected output %q", out.String())
	}

	infos, err := fsStore.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(infos) != 1 || infos[0].JobID != "d-record" {
		t.Errorf("Expected only the newest record to remain, got %+v", infos)
	}

	keepLast = 0
	if err := runCleanRecords(testCommand(&out), nil); err == nil {
		t.Error("Expected error without retention flags")
	}
}
