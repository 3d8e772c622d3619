package cli

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-darknet/logger"
	"github.com/nvr-ai/go-darknet/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the detection HTTP API",
		Long: `Serves POST /api/detect, GET /api/model, POST /api/model/weights,
GET /api/ping and GET /metrics until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config()
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cfg.LogMode != logger.ModeDevelopment {
				gin.SetMode(gin.ReleaseMode)
			}

			det, err := rootOpts.detector()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()
			return server.New(det, logger.Log()).Run(ctx, cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	return cmd
}
