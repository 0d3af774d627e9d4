// Package main is the entry point for the DocuLearn gateway.
package main

import (
	"os"

	"github.com/doculearn/gateway/cmd/gateway/app"
	"github.com/doculearn/gateway/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
