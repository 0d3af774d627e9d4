package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/doculearn/gateway/pkg/api"
	"github.com/doculearn/gateway/pkg/config"
	"github.com/doculearn/gateway/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway HTTP server",
	Long: `Start the gateway HTTP server. Configuration is read from flags and
from GATEWAY_* environment variables, e.g. GATEWAY_PROVIDER_CLIENT_ID.`,
	RunE: runServe,
}

func init() {
	config.SetDefaults(viper.GetViper())

	serveCmd.Flags().String("address", ":8000", "Address to listen on")
	serveCmd.Flags().String("database-path", "gateway.db", "Path to the SQLite user database")
	serveCmd.Flags().String("generation-service-url", "", "Base URL of the generation service")
	serveCmd.Flags().String("rag-service-url", "", "Base URL of the RAG service")
	serveCmd.Flags().String("frontend-url", "http://localhost:3000", "Frontend origin for redirects and CORS")

	for _, flag := range []string{
		"address",
		"database-path",
		"generation-service-url",
		"rag-service-url",
		"frontend-url",
	} {
		if err := viper.BindPFlag(flag, serveCmd.Flags().Lookup(flag)); err != nil {
			logger.Fatalf("Failed to bind %s flag: %v", flag, err)
		}
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger.Infof("Starting gateway on %s", settings.Address)
	logger.Infof("Generation service: %s, RAG service: %s",
		settings.GenerationServiceURL, settings.RAGServiceURL)

	return api.Serve(ctx, settings)
}
