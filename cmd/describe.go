package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/hogdesc/internal/hog"
	"github.com/cwbudde/hogdesc/internal/source"
	"github.com/cwbudde/hogdesc/internal/store"
	"github.com/cwbudde/hogdesc/internal/workerpool"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	describeFlags hogFlags
	glyphOut      string
	glyphCell     int
	jsonOut       string
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Compute the HOG descriptor of an image",
	Long: `Computes the dense HOG descriptor of an image, prints a summary, and
optionally writes the descriptor as JSON and a glyph rendering as PNG.`,
	RunE: runDescribe,
}

func init() {
	describeFlags.register(describeCmd)
	describeCmd.Flags().StringVar(&glyphOut, "out", "", "Write a glyph rendering of the cells to this PNG path")
	describeCmd.Flags().IntVar(&glyphCell, "glyph-size", 16, "Glyph size in pixels per cell")
	describeCmd.Flags().StringVar(&jsonOut, "json", "", "Write the descriptor as JSON to this path (- for stdout)")

	rootCmd.AddCommand(describeCmd)
}

func runDescribe(cmd *cobra.Command, args []string) error {
	config, opts, err := describeFlags.config(store.KindDescribe)
	if err != nil {
		return err
	}

	img, err := source.Load(config.ImagePath, opts)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", config.ImagePath, err)
	}
	slog.Info("Loaded image", "path", config.ImagePath, "rows", img.Rows, "cols", img.Cols)

	pool := workerpool.New(describeFlags.workers)
	defer pool.Close()

	extractor := hog.NewExtractor(pool, func(stage hog.Stage, elapsed time.Duration) {
		slog.Debug("Stage finished", "stage", string(stage), "elapsed", elapsed)
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	d, err := extractor.DescribeContext(ctx, img, config.Params())
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	summary := hog.Summarize(d)
	slog.Info("Descriptor computed",
		"cells", d.Grid.Cells(),
		"active_cells", summary.ActiveCells,
		"elapsed", elapsed,
	)

	if glyphOut != "" {
		if err := imaging.Save(hog.Visualize(d, glyphCell), glyphOut); err != nil {
			return fmt.Errorf("failed to save glyphs: %w", err)
		}
	}
	if jsonOut != "" {
		if err := writeJSONFile(cmd, jsonOut, d); err != nil {
			return err
		}
	}

	if describeFlags.save {
		jobID := uuid.New().String()
		if err := saveRecord(jobID, store.NewRecord(jobID, config, d, nil, elapsed), d); err != nil {
			return err
		}
		msgOut := cmd.OutOrStdout()
		if jsonOut == "-" {
			msgOut = cmd.ErrOrStderr()
		}
		fmt.Fprintf(msgOut, "Saved record %s\n", jobID)
	}

	if jsonOut != "-" {
		printSummary(cmd, d, summary, elapsed)
	}
	return nil
}

func printSummary(cmd *cobra.Command, d *hog.Descriptor, s hog.Summary, elapsed time.Duration) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Grid: %dx%d cells, %d bins (%d values)\n", d.Grid.CellsY, d.Grid.CellsX, d.Grid.Bins, len(d.Hist))
	fmt.Fprintf(out, "Active cells: %d/%d\n", s.ActiveCells, d.Grid.Cells())
	fmt.Fprintf(out, "Mean energy: %.4f\n", s.MeanEnergy)
	fmt.Fprintf(out, "Mean orientation: %.1f deg\n", s.MeanOrientation)
	fmt.Fprintf(out, "Elapsed: %s\n", elapsed.Round(time.Microsecond))
}

// saveRecord stores a record and its glyph image under --data-dir.
func saveRecord(jobID string, record *store.Record, d *hog.Descriptor) error {
	recordStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create record store: %w", err)
	}
	if err := recordStore.SaveRecord(jobID, record); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	if err := recordStore.SaveVisualization(jobID, hog.Visualize(d, 16)); err != nil {
		return fmt.Errorf("failed to save glyphs: %w", err)
	}
	slog.Info("Record saved", "job_id", jobID, "dir", recordStore.BaseDir())
	return nil
}
