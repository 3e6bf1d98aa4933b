package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const configFilePath = "./configs/config.yaml"

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pdfchat",
		Short:         "Chat with your PDF documents through a local model backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", configFilePath, "Path to the YAML config file")

	root.AddCommand(serveCmd())
	root.AddCommand(ingestCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(modelsCmd())
	return root
}
