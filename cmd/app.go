package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pdf-chat/internal/config"
	"pdf-chat/internal/db"
	"pdf-chat/internal/llmservice"
	"pdf-chat/internal/rag"
	"pdf-chat/internal/storage"
)

// app holds everything a command needs once config is loaded.
type app struct {
	cfg   *config.Config
	store rag.Store
	rag   *rag.RAG
}

func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.JSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

func openStore(ctx context.Context, cfg *config.StorageConfig) (rag.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return db.NewStore(ctx, cfg)
	default:
		return storage.NewFileStore(*cfg)
	}
}

// newApp loads config from the --config flag and wires store, model client
// and pipeline.
func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg.Log)
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	store, err := openStore(cmd.Context(), &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}

	client := llmservice.NewClient(cfg.LLM)
	return &app{
		cfg:   cfg,
		store: store,
		rag:   rag.NewRAG(store, client, cfg),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing store")
	}
}
