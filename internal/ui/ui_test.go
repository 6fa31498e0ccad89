package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestJobListEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := JobList(nil).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No jobs yet") {
		t.Error("Expected empty-state message")
	}
}

func TestJobListEscapesFields(t *testing.T) {
	d := 0.5
	jobs := []JobListItem{{
		ID:        "0123456789abcdef",
		Kind:      "locate",
		State:     "completed",
		ImagePath: "<script>x</script>.png",
		Grid:      "4x4x9",
		Distance:  &d,
		StartTime: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}}

	var buf bytes.Buffer
	if err := JobList(jobs).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	body := buf.String()

	if strings.Contains(body, "<script>x</script>") {
		t.Error("Image path must be escaped")
	}
	for _, want := range []string{"/jobs/0123456789abcdef", ">01234567<", "Completed", "0.5000", "03:04:05", "4x4x9"} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in page", want)
		}
	}
}

func TestJobPage(t *testing.T) {
	job := JobDetail{
		JobListItem: JobListItem{ID: "abc", Kind: "describe", State: "running", ImagePath: "a.png", Grid: "2x2x9", ActiveCells: 3},
		Stage:         "histogram",
		Params:        "8x8 cells, 9 bins",
		MeanEnergy:    0.75,
		HasDescriptor: true,
	}

	var buf bytes.Buffer
	if err := JobPage(job).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	body := buf.String()

	for _, want := range []string{"Running", "histogram", "/api/v1/jobs/abc/hog.png", "0.7500", "8x8 cells, 9 bins"} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in page", want)
		}
	}
	if strings.Contains(body, "<th>Match</th>") {
		t.Error("Describe job should not show a match row")
	}
}
