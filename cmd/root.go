package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	logLevel string
	dataDir  string
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hogdesc",
	Short: "Dense HOG descriptors for grayscale images",
	Long: `hogdesc computes per-cell histograms of oriented gradients with L2-Hys
normalization, locates templates by descriptor distance, and serves jobs
over HTTP with a small status UI.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging(cmd.ErrOrStderr(), logLevel)
	},
}

// configureLogging installs a JSON slog handler on w. Logs never go to
// stdout, which carries command output such as --json -.
func configureLogging(w io.Writer, levelName string) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	handler := slog.NewJSONHandler(w, opts)
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Base directory for stored records")
}
