package cli

import (
	"github.com/spf13/cobra"

	"basecampy/cmd/internal/app"
)

func newServeCmd() *cobra.Command {
	cfg, cfgErr := app.LoadConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgErr != nil {
				return cfgErr
			}
			return app.Serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "Listen address (env: BASECAMPY_HTTP_ADDR)")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error (env: BASECAMPY_LOG_LEVEL)")
	cmd.Flags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "json or pretty (env: BASECAMPY_LOG_FORMAT)")

	return cmd
}
