package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cwbudde/hogdesc/internal/hog"
	"github.com/cwbudde/hogdesc/internal/source"
	"github.com/cwbudde/hogdesc/internal/store"
	"github.com/spf13/cobra"
)

// hogFlags are the descriptor and preprocessing flags shared by describe
// and locate.
type hogFlags struct {
	imagePath  string
	cellWidth  int
	cellHeight int
	bins       int
	gray       string
	blur       float64
	width      int
	height     int
	workers    int
	save       bool
}

func (f *hogFlags) register(cmd *cobra.Command) {
	def := hog.DefaultParams()
	cmd.Flags().StringVar(&f.imagePath, "image", "", "Input image path (required)")
	cmd.Flags().IntVar(&f.cellWidth, "cell-width", def.CellWidth, "Cell width in pixels")
	cmd.Flags().IntVar(&f.cellHeight, "cell-height", def.CellHeight, "Cell height in pixels")
	cmd.Flags().IntVar(&f.bins, "bins", def.Bins, "Orientation bins per cell")
	cmd.Flags().StringVar(&f.gray, "gray", "luma", "Gray conversion: luma, lab")
	cmd.Flags().Float64Var(&f.blur, "blur", 0, "Gaussian pre-smoothing radius (0 = off)")
	cmd.Flags().IntVar(&f.width, "width", 0, "Resize to this width before describing (0 = keep)")
	cmd.Flags().IntVar(&f.height, "height", 0, "Resize to this height before describing (0 = keep)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Worker goroutines (0 = GOMAXPROCS)")
	cmd.Flags().BoolVar(&f.save, "save", false, "Store the result as a record under --data-dir")

	cmd.MarkFlagRequired("image")
}

// config validates the flags and returns them as a job config.
func (f *hogFlags) config(kind store.JobKind) (store.JobConfig, source.Options, error) {
	gray, err := source.ParseGrayMode(f.gray)
	if err != nil {
		return store.JobConfig{}, source.Options{}, err
	}
	if f.blur < 0 {
		return store.JobConfig{}, source.Options{}, fmt.Errorf("--blur must not be negative")
	}
	if f.width < 0 || f.height < 0 {
		return store.JobConfig{}, source.Options{}, fmt.Errorf("--width and --height must not be negative")
	}

	config := store.JobConfig{
		Kind:       kind,
		ImagePath:  f.imagePath,
		CellWidth:  f.cellWidth,
		CellHeight: f.cellHeight,
		Bins:       f.bins,
		Gray:       string(gray),
		Blur:       f.blur,
		Width:      f.width,
		Height:     f.height,
	}
	if err := config.Params().Validate(); err != nil {
		return store.JobConfig{}, source.Options{}, err
	}

	opts := source.Options{Gray: gray, Blur: f.blur, Width: f.width, Height: f.height}
	return config, opts, nil
}

// writeJSONFile writes v as indented JSON to path, or to stdout for "-".
func writeJSONFile(cmd *cobra.Command, path string, v any) error {
	out := cmd.OutOrStdout()
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
