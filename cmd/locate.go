package main

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/cwbudde/hogdesc/internal/hog"
	"github.com/cwbudde/hogdesc/internal/locate"
	"github.com/cwbudde/hogdesc/internal/opt"
	"github.com/cwbudde/hogdesc/internal/source"
	"github.com/cwbudde/hogdesc/internal/store"
	"github.com/cwbudde/hogdesc/internal/workerpool"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	locateFlags  hogFlags
	templatePath string
	matchOut     string
	iters        int
	popSize      int
	seed         int64
)

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Find a template in an image by descriptor distance",
	Long: `Searches the image for the window whose HOG descriptor is closest to the
template's, using mayfly optimization over window offsets.`,
	RunE: runLocate,
}

func init() {
	locateFlags.register(locateCmd)
	locateCmd.Flags().StringVar(&templatePath, "template", "", "Template image path (required)")
	locateCmd.Flags().StringVar(&matchOut, "out", "", "Write the matched window to this image path")
	locateCmd.Flags().IntVar(&iters, "iters", 100, "Max iterations")
	locateCmd.Flags().IntVar(&popSize, "pop", opt.MinPopulation, "Population size")
	locateCmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")

	locateCmd.MarkFlagRequired("template")
	rootCmd.AddCommand(locateCmd)
}

func runLocate(cmd *cobra.Command, args []string) error {
	config, opts, err := locateFlags.config(store.KindLocate)
	if err != nil {
		return err
	}
	config.TemplatePath = templatePath
	config.Iters = iters
	config.PopSize = max(popSize, opt.MinPopulation)
	config.Seed = seed

	scene, err := source.Load(config.ImagePath, opts)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", config.ImagePath, err)
	}
	tplOpts := opts
	tplOpts.Width, tplOpts.Height = 0, 0
	template, err := source.Load(templatePath, tplOpts)
	if err != nil {
		return fmt.Errorf("failed to load template %s: %w", templatePath, err)
	}
	slog.Info("Loaded images",
		"scene", fmt.Sprintf("%dx%d", scene.Cols, scene.Rows),
		"template", fmt.Sprintf("%dx%d", template.Cols, template.Rows),
	)

	jobID := uuid.New().String()
	var trace *store.TraceWriter
	if locateFlags.save {
		recordStore, err := store.NewFSStore(dataDir)
		if err != nil {
			return fmt.Errorf("failed to create record store: %w", err)
		}
		trace, err = recordStore.CreateTrace(jobID)
		if err != nil {
			return fmt.Errorf("failed to create trace: %w", err)
		}
		defer trace.Close()
	}

	pool := workerpool.New(locateFlags.workers)
	defer pool.Close()
	extractor := hog.NewExtractor(pool, nil)

	var onEval func(locate.Evaluation)
	if trace != nil {
		onEval = trace.Evaluation
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	locator := locate.New(extractor, config.Params(), onEval)
	match, err := locator.Locate(ctx, scene, template, opt.NewMayfly(config.Iters, config.PopSize, config.Seed))
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Match: %dx%d at (%d, %d)\n", match.Width, match.Height, match.X, match.Y)
	fmt.Fprintf(out, "Distance: %.6f\n", match.Distance)
	fmt.Fprintf(out, "Windows evaluated: %d\n", match.Evaluations)
	fmt.Fprintf(out, "Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if matchOut != "" {
		if err := saveMatch(config, match, matchOut); err != nil {
			return err
		}
	}

	if trace != nil {
		if err := trace.Flush(); err != nil {
			return fmt.Errorf("failed to flush trace: %w", err)
		}
		d, err := extractor.Describe(template, config.Params())
		if err != nil {
			return err
		}
		if err := saveRecord(jobID, store.NewRecord(jobID, config, d, match, elapsed), d); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved record %s\n", jobID)
	}
	return nil
}

// saveMatch crops the matched window from the image, resized the same way
// the search saw it.
func saveMatch(config store.JobConfig, match *locate.Result, path string) error {
	img, err := imaging.Open(config.ImagePath, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", config.ImagePath, err)
	}
	if config.Width > 0 || config.Height > 0 {
		img = imaging.Resize(img, config.Width, config.Height, imaging.Lanczos)
	}

	rect := image.Rect(match.X, match.Y, match.X+match.Width, match.Y+match.Height)
	if err := imaging.Save(imaging.Crop(img, rect), path); err != nil {
		return fmt.Errorf("failed to save match: %w", err)
	}
	return nil
}
