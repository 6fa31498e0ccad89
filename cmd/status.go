package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/hogdesc/internal/hog"
	"github.com/cwbudde/hogdesc/internal/locate"
	"github.com/cwbudde/hogdesc/internal/store"
	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

// jobStatus mirrors the server's job status response.
type jobStatus struct {
	ID          string          `json:"id"`
	State       string          `json:"state"`
	Stage       string          `json:"stage"`
	Config      store.JobConfig `json:"config"`
	Grid        *hog.Grid       `json:"grid"`
	Summary     *hog.Summary    `json:"summary"`
	Match       *locate.Result  `json:"match"`
	Evaluations int             `json:"evaluations"`
	Distance    *float64        `json:"distance"`
	Elapsed     float64         `json:"elapsed"`
	Error       string          `json:"error"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	base := strings.TrimRight(serverURL, "/")
	if len(args) == 0 {
		return listJobs(cmd.OutOrStdout(), base+"/api/v1/jobs")
	}

	jobID := args[0]
	return getJobStatus(cmd.OutOrStdout(), fmt.Sprintf("%s/api/v1/jobs/%s/status", base, jobID), jobID)
}

func fetchJSON(url string, v any) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(out io.Writer, url string) error {
	var jobs []jobStatus
	if _, err := fetchJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Job ID: %s\n", job.ID)
		fmt.Fprintf(out, "  Kind: %s\n", job.Config.Kind)
		fmt.Fprintf(out, "  State: %s\n", job.State)
		fmt.Fprintf(out, "  Image: %s\n", job.Config.ImagePath)
		if job.Grid != nil {
			fmt.Fprintf(out, "  Grid: %dx%dx%d\n", job.Grid.CellsY, job.Grid.CellsX, job.Grid.Bins)
		}
		if job.Match != nil {
			fmt.Fprintf(out, "  Match: (%d, %d) distance %.4f\n", job.Match.X, job.Match.Y, job.Match.Distance)
		}
		fmt.Fprintln(out)
	}

	return nil
}

func getJobStatus(out io.Writer, url, jobID string) error {
	var status jobStatus
	code, err := fetchJSON(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n", status.State)
	if status.Stage != "" {
		fmt.Fprintf(out, "Stage: %s\n", status.Stage)
	}
	fmt.Fprintln(out)

	config := status.Config
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Kind: %s\n", config.Kind)
	fmt.Fprintf(out, "  Image: %s\n", config.ImagePath)
	if config.TemplatePath != "" {
		fmt.Fprintf(out, "  Template: %s\n", config.TemplatePath)
	}
	fmt.Fprintf(out, "  Cells: %dx%d, %d bins\n", config.CellWidth, config.CellHeight, config.Bins)
	fmt.Fprintf(out, "  Gray: %s\n", config.Gray)
	if config.Kind == store.KindLocate {
		fmt.Fprintf(out, "  Iterations: %d\n", config.Iters)
		fmt.Fprintf(out, "  Population: %d\n", config.PopSize)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	if status.Grid != nil {
		fmt.Fprintf(out, "  Grid: %dx%dx%d\n", status.Grid.CellsY, status.Grid.CellsX, status.Grid.Bins)
	}
	if status.Summary != nil {
		fmt.Fprintf(out, "  Active cells: %d\n", status.Summary.ActiveCells)
		fmt.Fprintf(out, "  Mean orientation: %.1f deg\n", status.Summary.MeanOrientation)
	}
	if status.Evaluations > 0 {
		fmt.Fprintf(out, "  Windows evaluated: %d\n", status.Evaluations)
	}
	if status.Match != nil {
		fmt.Fprintf(out, "  Match: %dx%d at (%d, %d), distance %.4f\n",
			status.Match.Width, status.Match.Height, status.Match.X, status.Match.Y, status.Match.Distance)
	} else if status.Distance != nil {
		fmt.Fprintf(out, "  Best distance so far: %.4f\n", *status.Distance)
	}

	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if status.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", status.Error)
	}

	return nil
}
