package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// DetectOptions holds the flags shared by the detect subcommands.
type DetectOptions struct {
	Output    string
	Show      bool
	Smoothing int
	NoFPS     bool
}

// NewDetectCommand creates the detect command and its per-source
// subcommands.
func NewDetectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DetectOptions{}

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect objects in an image, video, camera or directory",
	}
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "", "annotated output file (directory for dir)")
	cmd.PersistentFlags().BoolVar(&opts.Show, "show", false, "display annotated frames")

	cmd.AddCommand(newDetectImageCommand(rootOpts, opts))
	cmd.AddCommand(newDetectVideoCommand(rootOpts, opts))
	cmd.AddCommand(newDetectCamCommand(rootOpts, opts))
	cmd.AddCommand(newDetectDirCommand(rootOpts, opts))
	return cmd
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func newDetectImageCommand(rootOpts *RootOptions, opts *DetectOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "image <path>",
		Short: "Detect objects in one image and print them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rootOpts.runner()
			if err != nil {
				return err
			}
			results, err := r.Image(cmd.Context(), args[0], opts.Output, opts.Show)
			if err != nil {
				return err
			}
			for _, res := range results {
				fmt.Fprintln(cmd.OutOrStdout(), res.String())
			}
			return nil
		},
	}
}

func newDetectVideoCommand(rootOpts *RootOptions, opts *DetectOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "video <path>",
		Short: "Detect objects in every frame of a video file",
		Long: `Annotates every frame of the video. With --output the result is written
as mp4 at the source frame rate; with --show frames are displayed and q
stops early. Detections are smoothed over recent frames when
smoothing_frames is configured.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rootOpts.runner()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()
			return r.Video(ctx, args[0], opts.Output, opts.Show)
		},
	}
}

func newDetectCamCommand(rootOpts *RootOptions, opts *DetectOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cam [device]",
		Short: "Run live detection on a camera or stream",
		Long: `Captures from a camera index (default 0) or a stream URL and shows
annotated frames until q is pressed. Capture and display run on their own
goroutines and always use the newest frame, so frames that arrive during a
detection are dropped. With --output the shown frames are written as mp4
at the achieved frame rate, capped at the rate the camera reports.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := "0"
			if len(args) == 1 {
				src = args[0]
			}
			r, err := rootOpts.runner()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("smoothing") {
				r.SmoothingFrames = opts.Smoothing
			}
			r.ShowFPS = !opts.NoFPS

			ctx, cancel := signalContext(cmd)
			defer cancel()
			return r.Camera(ctx, src, opts.Output)
		},
	}
	cmd.Flags().IntVar(&opts.Smoothing, "smoothing", 0, "merge detections over this many recent frames (0 or 1 disables)")
	cmd.Flags().BoolVar(&opts.NoFPS, "no-fps", false, "hide the frame rate overlay")
	return cmd
}

func newDetectDirCommand(rootOpts *RootOptions, opts *DetectOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dir <directory>",
		Short: "Detect objects in every image of a directory",
		Long: `Processes every jpg, png and webp file in the directory in name order
and prints one JSON line per image. With --output annotated copies are
written to that directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rootOpts.runner()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()
			return r.Directory(ctx, args[0], opts.Output, cmd.OutOrStdout())
		},
	}
}
