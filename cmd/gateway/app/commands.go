// Package app provides the command-line interface for the gateway.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/doculearn/gateway/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "gateway",
	DisableAutoGenTag: true,
	Short:             "Authentication gateway for the DocuLearn services",
	Long: `The DocuLearn gateway sits in front of the content generation and RAG
services. It handles OIDC login against the configured identity provider,
verifies access tokens on every request, provisions local user records on
first login, and forwards authenticated requests downstream with the
caller's identity injected.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates the root command for the gateway CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Fatalf("Failed to bind debug flag: %v", err)
	}

	rootCmd.AddCommand(serveCmd)

	return rootCmd
}
