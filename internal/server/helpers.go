package server

import (
	"errors"
	"fmt"

	"github.com/cwbudde/hogdesc/internal/hog"
	"github.com/cwbudde/hogdesc/internal/locate"
	"github.com/cwbudde/hogdesc/internal/opt"
	"github.com/cwbudde/hogdesc/internal/source"
	"github.com/cwbudde/hogdesc/internal/store"
)

// errNoDescriptor is returned for jobs that have not produced a descriptor yet.
var errNoDescriptor = errors.New("no descriptor yet")

// applyDefaults fills unset fields of a job request and validates it.
func applyDefaults(config *JobConfig) error {
	if config.Kind == "" {
		config.Kind = store.KindDescribe
	}
	if config.Kind != store.KindDescribe && config.Kind != store.KindLocate {
		return fmt.Errorf("unknown kind %q (want %q or %q)", config.Kind, store.KindDescribe, store.KindLocate)
	}
	if config.ImagePath == "" {
		return fmt.Errorf("imagePath is required")
	}

	def := hog.DefaultParams()
	if config.CellWidth == 0 {
		config.CellWidth = def.CellWidth
	}
	if config.CellHeight == 0 {
		config.CellHeight = def.CellHeight
	}
	if config.Bins == 0 {
		config.Bins = def.Bins
	}
	if err := config.Params().Validate(); err != nil {
		return err
	}

	gray, err := source.ParseGrayMode(config.Gray)
	if err != nil {
		return err
	}
	config.Gray = string(gray)
	if config.Blur < 0 {
		return fmt.Errorf("blur must not be negative")
	}
	if config.Width < 0 || config.Height < 0 {
		return fmt.Errorf("width and height must not be negative")
	}

	if config.Kind == store.KindLocate {
		if config.TemplatePath == "" {
			return fmt.Errorf("templatePath is required for locate jobs")
		}
		if config.Iters <= 0 {
			config.Iters = 100
		}
		if config.PopSize < opt.MinPopulation {
			config.PopSize = opt.MinPopulation
		}
	}
	return nil
}

// sourceOptions converts the preprocessing part of a job config.
func sourceOptions(config JobConfig) (source.Options, error) {
	gray, err := source.ParseGrayMode(config.Gray)
	if err != nil {
		return source.Options{}, err
	}
	return source.Options{
		Gray:   gray,
		Blur:   config.Blur,
		Width:  config.Width,
		Height: config.Height,
	}, nil
}

func formatGrid(g *hog.Grid) string {
	if g == nil {
		return ""
	}
	return fmt.Sprintf("%dx%dx%d", g.CellsY, g.CellsX, g.Bins)
}

func formatParams(config JobConfig) string {
	return fmt.Sprintf("%dx%d cells, %d bins", config.CellWidth, config.CellHeight, config.Bins)
}

func formatMatch(m *locate.Result) string {
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%dx%d at (%d, %d), distance %.4f after %d windows",
		m.Width, m.Height, m.X, m.Y, m.Distance, m.Evaluations)
}
