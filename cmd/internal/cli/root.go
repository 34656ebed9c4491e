// Package cli implements the basecampy command line.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "basecampy",
		Short: "Credential and token service",
		Long: `basecampy issues and verifies credentials for the basecampy API.

Configuration is read from BASECAMPY_* environment variables; flags on
individual commands override the matching variable.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newHashPasswordCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
