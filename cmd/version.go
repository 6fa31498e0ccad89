package main

import (
	"fmt"
	"runtime"

	"github.com/cwbudde/hogdesc/internal/hog"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "hogdesc version %s (%s/%s, %s kernels)\n",
			version, runtime.GOOS, runtime.GOARCH, hog.ActiveBackend)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
