package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-darknet/logger"
	"github.com/nvr-ai/go-darknet/models"
	"github.com/nvr-ai/go-darknet/models/darknet"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the layer graph built from the network cfg",
		Long: `Parses the network cfg, resolves every route and shortcut and prints
one line per layer with its channels and parameters. Layers marked with *
are kept for later routes or shortcuts. When --weights is set the blob is
loaded and its header printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config()
			m, err := models.NewModel(cfg.Model, darknet.WithLogger(logger.Log()))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, m.Graph.Summary())
			if cfg.Model.WeightsPath != "" {
				h := m.Header
				fmt.Fprintf(out, "weights %s: version %d.%d.%d, seen %d\n", cfg.Model.WeightsPath, h[0], h[1], h[2], h[3])
			}
			return nil
		},
	}
}
