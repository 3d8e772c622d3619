package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-darknet/benchmark"
	"github.com/nvr-ai/go-darknet/images"
	"github.com/nvr-ai/go-darknet/logger"
)

// BenchOptions holds the bench command flags.
type BenchOptions struct {
	Images     string
	OutputDir  string
	Format     string
	Iterations int
	Warmup     int
	BatchSize  int
}

// NewBenchCommand creates the bench command.
func NewBenchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BenchOptions{}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure decode and detection latency at camera resolutions",
		Long: `Scales the source images (or a synthetic gradient) to VGA, 720p and
1080p, encodes them, then times decoding plus detection for each. Results
are printed and written as JSON and CSV to the output directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := images.ParseFormat(opts.Format)
			if err != nil {
				return err
			}
			det, err := rootOpts.detector()
			if err != nil {
				return err
			}

			suite := benchmark.NewSuite(det, opts.OutputDir, logger.Log())
			if opts.Images != "" {
				if err := suite.LoadTestImages(opts.Images); err != nil {
					return err
				}
			}
			for _, s := range benchmark.QuickScenarios(opts.Iterations, opts.BatchSize) {
				s.ImageFormat = format
				s.WarmupRuns = opts.Warmup
				suite.AddScenario(s)
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()
			if err := suite.RunAllScenarios(ctx); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SCENARIO\tFPS\tMEAN\tP50\tP95\tERRORS")
			for _, r := range suite.GetResults() {
				fmt.Fprintf(w, "%s\t%.2f\t%v\t%v\t%v\t%.2f\n", r.Scenario.Name, r.FramesPerSecond, r.MeanLatency, r.P50Latency, r.P95Latency, r.ErrorRate)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if opts.OutputDir == "" {
				return nil
			}
			jsonPath, csvPath, err := suite.SaveResults()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "results: %s\nsummary: %s\n", jsonPath, csvPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Images, "images", "", "source image file or directory (default synthetic)")
	cmd.Flags().StringVarP(&opts.OutputDir, "output", "o", "", "directory for JSON and CSV reports")
	cmd.Flags().StringVar(&opts.Format, "format", "jpeg", "encoding of the source frames (jpeg|png|webp)")
	cmd.Flags().IntVar(&opts.Iterations, "iterations", 20, "timed batches per scenario")
	cmd.Flags().IntVar(&opts.Warmup, "warmup", 2, "untimed batches per scenario")
	cmd.Flags().IntVar(&opts.BatchSize, "batch", 1, "images per forward pass")
	return cmd
}
