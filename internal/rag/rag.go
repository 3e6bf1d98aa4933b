package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"pdf-chat/internal/chunker"
	"pdf-chat/internal/config"
	"pdf-chat/internal/models"
	"pdf-chat/internal/parser"
	"pdf-chat/internal/storage"
)

// Store persists chunk records and transcripts by document key.
type Store interface {
	SaveDocument(ctx context.Context, doc models.Document) error
	LoadChunks(ctx context.Context, key string) ([]string, error)
	DeleteDocument(ctx context.Context, key string) error
	ListDocuments(ctx context.Context) ([]string, error)
	LoadHistory(ctx context.Context, key string) (models.HistoryResult, error)
	AppendHistory(ctx context.Context, key string, turns ...models.Turn) error
	ClearHistory(ctx context.Context, key string) error
	Close() error
}

// ChatModel is the external chat-completion backend.
type ChatModel interface {
	Chat(ctx context.Context, model string, messages []models.Turn) (string, error)
	ListModels(ctx context.Context) ([]string, error)
}

var modelNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:/@+-]{0,199}$`)

type RAG struct {
	store   Store
	llm     ChatModel
	chunker *chunker.Chunker
	cfg     *config.Config
}

func NewRAG(store Store, llm ChatModel, cfg *config.Config) *RAG {
	return &RAG{
		store: store,
		llm:   llm,
		chunker: chunker.New(
			chunker.WithChunkSize(cfg.RAG.ChunkSize),
			chunker.WithOverlap(cfg.RAG.ChunkOverlap),
		),
		cfg: cfg,
	}
}

// Ingest extracts, chunks and stores an uploaded PDF, replacing any
// previous record with the same key.
func (r *RAG) Ingest(ctx context.Context, filename string, data []byte) (*models.UploadResult, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return nil, fmt.Errorf("%w: Invalid file type", models.ErrInvalidInput)
	}
	key, err := storage.NormalizeKey(filename)
	if err != nil {
		return nil, err
	}

	ext, err := parser.ExtractBytes(data)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	chunks := r.chunker.Split(ext.Text)

	doc := models.Document{Key: key, Chunks: chunks}
	if r.cfg.Storage.RetainOriginals {
		doc.Original = data
	}
	if err := r.store.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}

	log.Info().Str("key", key).Int("pages", ext.Pages).Int("chunks", len(chunks)).Msg("Stored document")
	return &models.UploadResult{Key: key, Filename: key + ".json", Chunks: len(chunks)}, nil
}

// IngestFile runs Ingest on a PDF read from disk.
func (r *RAG) IngestFile(ctx context.Context, path string) (*models.UploadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return r.Ingest(ctx, filepath.Base(path), data)
}

// ResolveModel substitutes the configured default for a missing or
// malformed model name.
func (r *RAG) ResolveModel(model string) string {
	model = strings.TrimSpace(model)
	if !modelNameRe.MatchString(model) {
		if model != "" {
			log.Debug().Str("model", model).Msg("Invalid model name, using default")
		}
		return r.cfg.LLM.DefaultModel
	}
	return model
}

// BuildMessages lays out the conversation sent to the model: a system turn
// carrying the first contextChunks chunks, the prior transcript, then the
// new user message.
func BuildMessages(chunks []string, contextChunks int, history []models.Turn, message string) []models.Turn {
	if len(chunks) > contextChunks {
		chunks = chunks[:contextChunks]
	}
	system := models.Turn{
		Role:    models.RoleSystem,
		Content: fmt.Sprintf(models.SystemPromptTemplate, strings.Join(chunks, models.ContextSeparator)),
	}

	messages := make([]models.Turn, 0, len(history)+2)
	messages = append(messages, system)
	messages = append(messages, history...)
	messages = append(messages, models.Turn{Role: models.RoleUser, Content: message})
	return messages
}

// Chat answers message in the context of the named document and records
// the exchange. A backend failure leaves the transcript untouched and is
// reported as ErrBackendUnavailable.
func (r *RAG) Chat(ctx context.Context, name, message, model string) (string, error) {
	if name == "" || message == "" {
		return "", fmt.Errorf("%w: Missing required fields", models.ErrInvalidInput)
	}
	key, err := storage.NormalizeKey(name)
	if err != nil {
		return "", err
	}
	model = r.ResolveModel(model)

	chunks, err := r.store.LoadChunks(ctx, key)
	if err != nil {
		return "", err
	}

	history, err := r.store.LoadHistory(ctx, key)
	if err != nil {
		return "", err
	}
	if history.Recovered {
		log.Warn().Str("key", key).Msg("Continuing chat over unreadable history")
	}

	messages := BuildMessages(chunks, r.cfg.RAG.ContextChunks, history.Turns, message)

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.LLM.Timeout)
	defer cancel()
	reply, err := r.llm.Chat(callCtx, model, messages)
	if err != nil {
		log.Error().Err(err).Str("key", key).Str("model", model).Msg("Error in model chat")
		return "", fmt.Errorf("%w: %v", models.ErrBackendUnavailable, err)
	}

	err = r.store.AppendHistory(ctx, key,
		models.Turn{Role: models.RoleUser, Content: message},
		models.Turn{Role: models.RoleAssistant, Content: reply},
	)
	if err != nil {
		return "", err
	}
	return reply, nil
}

// History returns the transcript for the named document, empty if none.
func (r *RAG) History(ctx context.Context, name string) ([]models.Turn, error) {
	key, err := storage.NormalizeKey(name)
	if err != nil {
		return nil, err
	}
	res, err := r.store.LoadHistory(ctx, key)
	if err != nil {
		return nil, err
	}
	return res.Turns, nil
}

func (r *RAG) ClearHistory(ctx context.Context, name string) error {
	key, err := storage.NormalizeKey(name)
	if err != nil {
		return err
	}
	return r.store.ClearHistory(ctx, key)
}

// DeleteDocument removes the chunk record and the transcript.
func (r *RAG) DeleteDocument(ctx context.Context, name string) error {
	key, err := storage.NormalizeKey(name)
	if err != nil {
		return err
	}
	log.Info().Str("key", key).Msg("Deleting document")
	return r.store.DeleteDocument(ctx, key)
}

func (r *RAG) Documents(ctx context.Context) ([]string, error) {
	return r.store.ListDocuments(ctx)
}

// Models lists the backend's models; any failure yields an empty list.
func (r *RAG) Models(ctx context.Context) []string {
	names, err := r.llm.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Error fetching models")
		return []string{}
	}
	if names == nil {
		return []string{}
	}
	return names
}

// BackendReachable reports whether the model backend answers at all.
func (r *RAG) BackendReachable(ctx context.Context) bool {
	_, err := r.llm.ListModels(ctx)
	return err == nil
}
