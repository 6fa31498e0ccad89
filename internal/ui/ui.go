// Package ui renders the server's HTML pages as templ components.
package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"
)

// JobListItem is one row of the job list page.
type JobListItem struct {
	ID          string
	Kind        string
	State       string
	ImagePath   string
	Grid        string
	ActiveCells int
	Distance    *float64
	StartTime   time.Time
	EndTime     *time.Time
	Error       string
}

// JobDetail is the data shown on a job's page.
type JobDetail struct {
	JobListItem
	Stage           string
	Params          string
	DominantBins    []int
	MeanEnergy      float64
	MeanOrientation float64
	Match           string
	HasDescriptor   bool
}

const style = `body{font-family:sans-serif;margin:2rem;color:#222}
table{border-collapse:collapse}td,th{padding:.3rem .8rem;border-bottom:1px solid #ddd;text-align:left}
.badge{padding:.1rem .5rem;border-radius:.3rem;background:#eee}
.completed{background:#cfc}.failed{background:#fcc}.running{background:#ffc}
img{image-rendering:pixelated;border:1px solid #ccc}`

func page(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>%s</title><style>%s</style></head><body>",
			templ.EscapeString(title), style); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</body></html>")
		return err
	})
}

func badge(state string) string {
	return fmt.Sprintf(`<span class="badge %s">%s</span>`, templ.EscapeString(state), templ.EscapeString(stateLabel(state)))
}

func stateLabel(state string) string {
	if state == "" {
		return "Unknown"
	}
	return strings.ToUpper(state[:1]) + state[1:]
}

// JobList renders the index page.
func JobList(jobs []JobListItem) templ.Component {
	return page("HOG jobs", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		ew := &errWriter{w: w}
		ew.printf("<h1>HOG jobs</h1>")
		if len(jobs) == 0 {
			ew.printf("<p>No jobs yet. POST to <code>/api/v1/jobs</code> to start one.</p>")
			return ew.err
		}
		ew.printf("<table><tr><th>ID</th><th>Kind</th><th>State</th><th>Image</th><th>Grid</th><th>Active cells</th><th>Distance</th><th>Started</th></tr>")
		for _, j := range jobs {
			distance := "-"
			if j.Distance != nil {
				distance = fmt.Sprintf("%.4f", *j.Distance)
			}
			ew.printf(`<tr><td><a href="/jobs/%s">%s</a></td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%d</td><td>%s</td><td>%s</td></tr>`,
				templ.EscapeString(j.ID), templ.EscapeString(shortID(j.ID)),
				templ.EscapeString(j.Kind), badge(j.State),
				templ.EscapeString(j.ImagePath), templ.EscapeString(j.Grid),
				j.ActiveCells, distance, j.StartTime.Format(time.TimeOnly))
		}
		ew.printf("</table>")
		return ew.err
	}))
}

// JobPage renders a single job with its glyph image.
func JobPage(job JobDetail) templ.Component {
	return page("Job "+shortID(job.ID), templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		ew := &errWriter{w: w}
		id := templ.EscapeString(job.ID)
		ew.printf(`<p><a href="/">&larr; all jobs</a></p><h1>%s job %s</h1>`, templ.EscapeString(job.Kind), id)
		ew.printf("<table>")
		ew.printf("<tr><th>State</th><td>%s</td></tr>", badge(job.State))
		if job.Stage != "" {
			ew.printf("<tr><th>Stage</th><td>%s</td></tr>", templ.EscapeString(job.Stage))
		}
		ew.printf("<tr><th>Image</th><td>%s</td></tr>", templ.EscapeString(job.ImagePath))
		ew.printf("<tr><th>Params</th><td>%s</td></tr>", templ.EscapeString(job.Params))
		if job.Grid != "" {
			ew.printf("<tr><th>Grid</th><td>%s</td></tr>", templ.EscapeString(job.Grid))
			ew.printf("<tr><th>Active cells</th><td>%d</td></tr>", job.ActiveCells)
			ew.printf("<tr><th>Mean energy</th><td>%.4f</td></tr>", job.MeanEnergy)
			ew.printf("<tr><th>Mean orientation</th><td>%.1f&deg;</td></tr>", job.MeanOrientation)
		}
		if job.Match != "" {
			ew.printf("<tr><th>Match</th><td>%s</td></tr>", templ.EscapeString(job.Match))
		}
		if job.Error != "" {
			ew.printf("<tr><th>Error</th><td>%s</td></tr>", templ.EscapeString(job.Error))
		}
		ew.printf("</table>")
		if job.HasDescriptor {
			ew.printf(`<h2>Cells</h2><img src="/api/v1/jobs/%s/hog.png" alt="HOG glyphs">`, id)
			ew.printf(`<p><a href="/api/v1/jobs/%s/descriptor">descriptor JSON</a></p>`, id)
		}
		return ew.err
	}))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// errWriter keeps the first write error so templates can print freely.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
