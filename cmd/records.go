package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/hogdesc/internal/store"
	"github.com/spf13/cobra"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
	showTrace     bool
	showJSON      bool
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Manage stored descriptor records",
	Long: `Manage records saved by describe --save, locate --save and the server,
including listing, inspecting and cleaning old records.`,
}

var listRecordsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored records",
	Long:  `Display all records with job ID, kind, timestamp, grid, active cells, match distance and size on disk.`,
	RunE:  runListRecords,
}

var showRecordCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a stored record",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRecord,
}

var cleanRecordsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old records",
	Long: `Delete old records based on retention policy.
You can keep only the newest N records or delete records older than N days.`,
	RunE: runCleanRecords,
}

func init() {
	rootCmd.AddCommand(recordsCmd)

	recordsCmd.AddCommand(listRecordsCmd)
	recordsCmd.AddCommand(showRecordCmd)
	recordsCmd.AddCommand(cleanRecordsCmd)

	showRecordCmd.Flags().BoolVar(&showTrace, "trace", false, "Print the evaluation trace of locate records")
	showRecordCmd.Flags().BoolVar(&showJSON, "json", false, "Print the full record as JSON")

	cleanRecordsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N records (0 = keep all)")
	cleanRecordsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete records older than N days (0 = no age limit)")
	cleanRecordsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListRecords(cmd *cobra.Command, args []string) error {
	recordStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create record store: %w", err)
	}

	infos, err := recordStore.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No records found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tKIND\tTIMESTAMP\tGRID\tACTIVE\tDISTANCE\tSIZE")
	fmt.Fprintln(w, "------\t----\t---------\t----\t------\t--------\t----")

	for _, info := range infos {
		size, err := getDirSize(filepath.Join(recordStore.BaseDir(), "jobs", info.JobID))
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		distance := "-"
		if info.Distance != nil {
			distance = fmt.Sprintf("%.6f", *info.Distance)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%dx%dx%d\t%d\t%s\t%s\n",
			displayID(info.JobID),
			info.Kind,
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Grid.CellsY, info.Grid.CellsX, info.Grid.Bins,
			info.ActiveCells,
			distance,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Fprintf(out, "\nTotal records: %d\n", len(infos))
	return nil
}

func runShowRecord(cmd *cobra.Command, args []string) error {
	recordStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create record store: %w", err)
	}

	jobID := args[0]
	record, err := recordStore.LoadRecord(jobID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if showJSON {
		return writeJSONFile(cmd, "-", record)
	}

	printRecord(out, record)

	if showTrace {
		entries, err := recordStore.ReadTrace(jobID)
		if err != nil {
			return fmt.Errorf("failed to read trace: %w", err)
		}
		fmt.Fprintf(out, "\nTrace (%d evaluations):\n", len(entries))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tX\tY\tDISTANCE")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%d\t%d\t%.6f\n", e.Index, e.X, e.Y, e.Distance)
		}
		w.Flush()
	}
	return nil
}

func printRecord(out io.Writer, record *store.Record) {
	c := record.Config
	fmt.Fprintf(out, "Job: %s\n", record.JobID)
	fmt.Fprintf(out, "Kind: %s\n", c.Kind)
	fmt.Fprintf(out, "Saved: %s\n", record.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(out, "Image: %s\n", c.ImagePath)
	if c.TemplatePath != "" {
		fmt.Fprintf(out, "Template: %s\n", c.TemplatePath)
	}
	fmt.Fprintf(out, "Cells: %dx%d, %d bins, gray %s\n", c.CellWidth, c.CellHeight, c.Bins, c.Gray)
	fmt.Fprintf(out, "Grid: %dx%d cells (%d values)\n", record.Grid.CellsY, record.Grid.CellsX, len(record.Hist))
	fmt.Fprintf(out, "Active cells: %d\n", record.Summary.ActiveCells)
	fmt.Fprintf(out, "Mean energy: %.4f\n", record.Summary.MeanEnergy)
	fmt.Fprintf(out, "Mean orientation: %.1f deg\n", record.Summary.MeanOrientation)
	if m := record.Match; m != nil {
		fmt.Fprintf(out, "Match: %dx%d at (%d, %d), distance %.6f after %d windows\n",
			m.Width, m.Height, m.X, m.Y, m.Distance, m.Evaluations)
	}
	fmt.Fprintf(out, "Elapsed: %s\n", record.Elapsed.Round(time.Microsecond))
}

func runCleanRecords(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	recordStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create record store: %w", err)
	}

	infos, err := recordStore.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No records to clean.")
		return nil
	}

	toDelete := selectRecordsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No records match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d record(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s, %s)\n",
			displayID(info.JobID),
			info.Kind,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Fscanln(cmd.InOrStdin(), &response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := recordStore.DeleteRecord(info.JobID); err != nil {
			slog.Error("Failed to delete record", "job_id", info.JobID, "error", err)
			failed++
		} else {
			slog.Info("Deleted record", "job_id", info.JobID)
			deleted++
		}
	}

	fmt.Fprintf(out, "\nDeleted %d record(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRecordsForDeletion returns the records older than olderThanDays
// plus everything beyond the newest keepLast, oldest first.
func selectRecordsForDeletion(infos []store.RecordInfo, keepLast, olderThanDays int, now time.Time) []store.RecordInfo {
	sorted := make([]store.RecordInfo, len(infos))
	copy(sorted, infos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	cutoff := now.AddDate(0, 0, -olderThanDays)
	excess := 0
	if keepLast > 0 && len(sorted) > keepLast {
		excess = len(sorted) - keepLast
	}

	var toDelete []store.RecordInfo
	for i, info := range sorted {
		tooOld := olderThanDays > 0 && info.Timestamp.Before(cutoff)
		if tooOld || i < excess {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

func displayID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
