// Package cli - cobra commands for the darknet detector.
package cli

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-darknet/config"
	"github.com/nvr-ai/go-darknet/inference"
	"github.com/nvr-ai/go-darknet/logger"
	"github.com/nvr-ai/go-darknet/models/model"
	"github.com/nvr-ai/go-darknet/pipeline"
	"github.com/nvr-ai/go-darknet/video"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Cfg        string
	Weights    string
	Names      string
	Confidence float32
	NMS        float32
	LogMode    string

	// resolved is the file configuration with flag overrides applied.
	resolved config.Config
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "darknet",
		Short: "YOLO object detection from darknet cfg and weights files",
		Long: `Builds a YOLO network from a darknet .cfg file, loads its .weights blob
and runs detection on images, videos, cameras or over HTTP.

Settings come from an optional YAML file (--config); flags override it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigFile, "config", "c", "", "YAML configuration file")
	flags.StringVar(&opts.Cfg, "cfg", "", "darknet network .cfg file")
	flags.StringVar(&opts.Weights, "weights", "", "darknet .weights file")
	flags.StringVar(&opts.Names, "names", "", "class names file, one per line (default COCO)")
	flags.Float32Var(&opts.Confidence, "confidence", config.DefaultConfidenceThreshold, "minimum detection confidence")
	flags.Float32Var(&opts.NMS, "nms", config.DefaultNMSThreshold, "per-class suppression IoU")
	flags.StringVar(&opts.LogMode, "log-mode", string(logger.ModeProduction), "log mode (production|development)")

	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewDetectCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewBenchCommand(opts))

	return cmd
}

// resolve loads the configuration file, applies the flags the user set and
// installs the logger.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg := config.Default()
	if o.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(o.ConfigFile); err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("cfg") {
		cfg.Model.ConfigPath = o.Cfg
	}
	if flags.Changed("weights") {
		cfg.Model.WeightsPath = o.Weights
	}
	if flags.Changed("names") {
		cfg.Model.NamesPath = o.Names
	}
	if flags.Changed("confidence") {
		cfg.Detection.ConfidenceThreshold = o.Confidence
	}
	if flags.Changed("nms") {
		cfg.Detection.NMS.IoUThreshold = o.NMS
	}
	if flags.Changed("log-mode") {
		cfg.LogMode = logger.Mode(o.LogMode)
	}
	if cfg.Model.Family == "" {
		cfg.Model.Family = model.ModelFamilyYOLO
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Model.ConfigPath == "" {
		return errors.New("no network cfg: set --cfg or model.config")
	}
	if err := logger.Init(cfg.LogMode); err != nil {
		return errors.Wrap(err, "init logger")
	}

	o.resolved = cfg
	return nil
}

// Config returns the resolved configuration. It is only valid inside a
// command's Run.
func (o *RootOptions) Config() config.Config {
	return o.resolved
}

func (o *RootOptions) detector() (*inference.Detector, error) {
	cfg := o.resolved
	engine, err := inference.NewEngineBuilder().
		WithLogger(logger.Log()).
		WithModel(cfg.Model).
		WithDetector(cfg.Detection.Inference()).
		Build()
	if err != nil {
		return nil, err
	}
	return engine.Detector(), nil
}

func (o *RootOptions) runner() (*video.Runner, error) {
	det, err := o.detector()
	if err != nil {
		return nil, err
	}

	classes := 1
	if set := det.Classes(); set != nil && set.Len() > 0 {
		classes = set.Len()
	}
	d := o.resolved.Detection
	return &video.Runner{
		Detector:        det,
		Palette:         pipeline.NewPalette(classes),
		SmoothingFrames: d.SmoothingFrames,
		SmoothingIoU:    d.SmoothingThreshold,
		ShowFPS:         true,
		Log:             logger.Log(),
	}, nil
}
