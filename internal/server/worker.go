package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/hogdesc/internal/hog"
	"github.com/cwbudde/hogdesc/internal/locate"
	"github.com/cwbudde/hogdesc/internal/opt"
	"github.com/cwbudde/hogdesc/internal/source"
	"github.com/cwbudde/hogdesc/internal/store"
	"github.com/cwbudde/hogdesc/internal/workerpool"
)

// visualizationCell is the glyph size of saved hog.png artifacts.
const visualizationCell = 16

// progressEvery throttles locate progress events to one per this many windows.
const progressEvery = 25

// Runner holds what jobs share: the decoded image cache, the worker pool and
// the optional record store.
type Runner struct {
	cache *source.Cache
	pool  *workerpool.Pool
	store store.Store
}

// NewRunner returns a Runner. pool and recordStore may be nil; without a
// store results only live in memory. cacheSize bounds the decoded image
// cache; 0 selects source.DefaultCacheSize.
func NewRunner(pool *workerpool.Pool, recordStore store.Store, cacheSize int) *Runner {
	return &Runner{
		cache: source.NewCache(cacheSize),
		pool:  pool,
		store: recordStore,
	}
}

// Store returns the record store, or nil.
func (r *Runner) Store() store.Store {
	return r.store
}

// runJob executes a describe or locate job in the background.
func runJob(ctx context.Context, jm *JobManager, runner *Runner, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}
	jm.publish(jobID, 0)

	slog.Info("Starting job", "job_id", jobID, "kind", job.Config.Kind, "image", job.Config.ImagePath)

	opts, err := sourceOptions(job.Config)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	img, err := runner.cache.Load(job.Config.ImagePath, opts)
	if err != nil {
		err = fmt.Errorf("failed to load image: %w", err)
		markJobFailed(jm, jobID, err)
		return err
	}

	slog.Info("Loaded image", "job_id", jobID, "rows", img.Rows, "cols", img.Cols)

	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	start := time.Now()
	var d *hog.Descriptor
	var match *locate.Result

	switch job.Config.Kind {
	case store.KindDescribe:
		d, err = runner.describe(ctx, jm, jobID, img, job.Config.Params())
	case store.KindLocate:
		d, match, err = runner.locate(ctx, jm, jobID, img, job.Config, opts)
	default:
		err = fmt.Errorf("unknown kind: %s", job.Config.Kind)
	}

	if ctx.Err() != nil {
		markJobCancelled(jm, jobID)
		return ctx.Err()
	}
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	elapsed := time.Since(start)
	summary := hog.Summarize(d)
	grid := d.Grid

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Stage = ""
		j.Grid = &grid
		j.Summary = &summary
		j.Match = match
		j.descriptor = d
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	if runner.store != nil {
		if err := persist(runner.store, jobID, job.Config, d, match, elapsed); err != nil {
			slog.Error("Failed to save record", "job_id", jobID, "error", err)
		}
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"cells", grid.Cells(),
		"active_cells", summary.ActiveCells,
	)

	jm.publish(jobID, 0)
	return nil
}

// describe runs the pipeline once, reporting each stage.
func (r *Runner) describe(ctx context.Context, jm *JobManager, jobID string, img *hog.Image, params hog.Params) (*hog.Descriptor, error) {
	extractor := hog.NewExtractor(r.pool, func(stage hog.Stage, elapsed time.Duration) {
		jm.UpdateJob(jobID, func(j *Job) {
			j.Stage = string(stage)
		})
		jm.publish(jobID, float64(elapsed.Microseconds())/1000)
	})
	return extractor.DescribeContext(ctx, img, params)
}

// locate searches the job image for its template and returns the template
// descriptor with the best match.
func (r *Runner) locate(ctx context.Context, jm *JobManager, jobID string, scene *hog.Image, config JobConfig, opts source.Options) (*hog.Descriptor, *locate.Result, error) {
	// Templates keep their own size; only gray mode and blur carry over.
	opts.Width, opts.Height = 0, 0
	template, err := r.cache.Load(config.TemplatePath, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load template: %w", err)
	}

	var trace *store.TraceWriter
	if r.store != nil {
		trace, err = r.store.CreateTrace(jobID)
		if err != nil {
			slog.Warn("Evaluation trace disabled", "job_id", jobID, "error", err)
		} else {
			defer trace.Close()
		}
	}

	jm.UpdateJob(jobID, func(j *Job) {
		j.Stage = "search"
	})

	best := -1.0
	onEval := func(e locate.Evaluation) {
		if trace != nil {
			trace.Evaluation(e)
		}
		if best < 0 || e.Distance < best {
			best = e.Distance
		}
		d := best
		jm.UpdateJob(jobID, func(j *Job) {
			j.Evaluations = e.Index
			j.Distance = &d
		})
		if e.Index%progressEvery == 0 {
			jm.publish(jobID, 0)
		}
	}

	extractor := hog.NewExtractor(r.pool, nil)
	params := config.Params()

	locator := locate.New(extractor, params, onEval)
	optimizer := opt.NewMayfly(config.Iters, config.PopSize, config.Seed)
	match, err := locator.Locate(ctx, scene, template, optimizer)
	if err != nil {
		return nil, nil, err
	}
	if trace != nil && trace.Err() != nil {
		slog.Warn("Evaluation trace incomplete", "job_id", jobID, "error", trace.Err())
	}

	d, err := extractor.DescribeContext(ctx, template, params)
	if err != nil {
		return nil, nil, err
	}
	return d, match, nil
}

// persist saves the record and its glyph image.
func persist(s store.Store, jobID string, config JobConfig, d *hog.Descriptor, match *locate.Result, elapsed time.Duration) error {
	record := store.NewRecord(jobID, config, d, match, elapsed)
	if err := s.SaveRecord(jobID, record); err != nil {
		return err
	}
	if err := s.SaveVisualization(jobID, hog.Visualize(d, visualizationCell)); err != nil {
		slog.Warn("Failed to save visualization", "job_id", jobID, "error", err)
	}
	return nil
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
	jm.publish(jobID, 0)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
	jm.publish(jobID, 0)
}
