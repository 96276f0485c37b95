package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"finance-etl/internal/app"
)

var (
	transformRawDir       string
	transformProcessedDir string
	transformFailFast     bool
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Run the transform stage once over the raw data tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := transformOptions(cmd)
		report, err := getApp().Transform(cmd.Context(), opts)
		if report != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %s, %d files, %d failed, %d rows merged\n",
				report.RunID, report.Status(), report.Files, len(report.Failures), report.RowsWritten)
		}
		return err
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the transform stage on the configured schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Watch(cmd.Context(), transformOptions(cmd))
	},
}

func transformOptions(cmd *cobra.Command) app.TransformOptions {
	opts := app.TransformOptions{
		RawDir:       transformRawDir,
		ProcessedDir: transformProcessedDir,
	}
	if cmd.Flags().Changed("fail-fast") {
		failFast := transformFailFast
		opts.FailFast = &failFast
	}
	return opts
}

func init() {
	for _, cmd := range []*cobra.Command{transformCmd, watchCmd} {
		cmd.Flags().StringVar(&transformRawDir, "raw", "", "Raw data root (defaults to paths.raw_dir)")
		cmd.Flags().StringVar(&transformProcessedDir, "processed", "", "Processed data root (defaults to paths.processed_dir)")
		cmd.Flags().BoolVar(&transformFailFast, "fail-fast", false, "Abort on the first failing file")
	}
}
