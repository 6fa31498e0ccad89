package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/cwbudde/hogdesc/internal/store"
	"github.com/cwbudde/hogdesc/internal/ui"
)

func listItem(job *Job) ui.JobListItem {
	item := ui.JobListItem{
		ID:        job.ID,
		Kind:      string(job.Config.Kind),
		State:     string(job.State),
		ImagePath: job.Config.ImagePath,
		Grid:      formatGrid(job.Grid),
		StartTime: job.StartTime,
		EndTime:   job.EndTime,
		Error:     job.Error,
	}
	if job.Summary != nil {
		item.ActiveCells = job.Summary.ActiveCells
	}
	if job.Match != nil {
		d := job.Match.Distance
		item.Distance = &d
	}
	return item
}

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	jobs := s.jobManager.ListJobs()
	items := make([]ui.JobListItem, len(jobs))
	for i, job := range jobs {
		items[i] = listItem(job)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ui.JobList(items).Render(r.Context(), w); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// handleJobPage handles GET /jobs/:id
func (s *Server) handleJobPage(w http.ResponseWriter, r *http.Request) {
	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/jobs/"), "/")
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.NotFound(w, r)
		return
	}

	detail := ui.JobDetail{
		JobListItem:   listItem(job),
		Stage:         job.Stage,
		Params:        formatParams(job.Config),
		Match:         formatMatch(job.Match),
		HasDescriptor: job.State == StateCompleted,
	}
	if job.Summary != nil {
		detail.DominantBins = job.Summary.DominantBins
		detail.MeanEnergy = job.Summary.MeanEnergy
		detail.MeanOrientation = job.Summary.MeanOrientation
	}
	if job.Config.Kind == store.KindLocate && job.Evaluations > 0 && job.Match == nil {
		detail.Match = fmt.Sprintf("%d windows evaluated", job.Evaluations)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ui.JobPage(detail).Render(r.Context(), w); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}
