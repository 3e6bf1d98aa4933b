package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"pdf-chat/internal/config"
	"pdf-chat/internal/helper"
	"pdf-chat/internal/models"
)

const (
	chunksExt   = ".json"
	originalExt = ".pdf"
)

// FileStore keeps one JSON file per document and one per transcript.
// Read-modify-write cycles are not serialized; the last writer wins.
type FileStore struct {
	documentsDir    string
	historyDir      string
	retainOriginals bool
}

func NewFileStore(cfg config.StorageConfig) (*FileStore, error) {
	for _, dir := range []string{cfg.DocumentsDir, cfg.HistoryDir} {
		if err := helper.CreateFolder(dir); err != nil {
			return nil, err
		}
	}
	return &FileStore{
		documentsDir:    cfg.DocumentsDir,
		historyDir:      cfg.HistoryDir,
		retainOriginals: cfg.RetainOriginals,
	}, nil
}

func (s *FileStore) chunksPath(key string) string {
	return filepath.Join(s.documentsDir, key+chunksExt)
}

func (s *FileStore) originalPath(key string) string {
	return filepath.Join(s.documentsDir, key+originalExt)
}

func (s *FileStore) historyPath(key string) string {
	return filepath.Join(s.historyDir, key+models.HistorySuffix+".json")
}

// SaveDocument replaces the chunk record for doc.Key.
func (s *FileStore) SaveDocument(_ context.Context, doc models.Document) error {
	chunks := doc.Chunks
	if chunks == nil {
		chunks = []string{}
	}
	data, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("encode chunks for %s: %w", doc.Key, err)
	}
	if err := writeFileAtomic(s.chunksPath(doc.Key), data); err != nil {
		return err
	}

	if s.retainOriginals && len(doc.Original) > 0 {
		if err := writeFileAtomic(s.originalPath(doc.Key), doc.Original); err != nil {
			return err
		}
	}
	return nil
}

// LoadChunks returns the stored chunks for key, ErrDocumentNotFound if there
// is no record, or ErrDocumentCorrupt if the record cannot be decoded.
func (s *FileStore) LoadChunks(_ context.Context, key string) ([]string, error) {
	data, err := os.ReadFile(s.chunksPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read chunks for %s: %w", key, err)
	}

	var chunks []string
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrDocumentCorrupt, key, err)
	}
	return chunks, nil
}

// DeleteDocument removes the chunk record, the retained original and the
// transcript for key. Missing files are not an error.
func (s *FileStore) DeleteDocument(ctx context.Context, key string) error {
	for _, p := range []string{s.chunksPath(key), s.originalPath(key)} {
		if err := removeIfExists(p); err != nil {
			return err
		}
	}
	return s.ClearHistory(ctx, key)
}

// ListDocuments returns the keys of all stored documents, sorted.
func (s *FileStore) ListDocuments(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.documentsDir)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	keys := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, chunksExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, chunksExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// LoadHistory returns the transcript for key. A missing record is an empty
// transcript; an undecodable one is an empty transcript with Recovered set.
func (s *FileStore) LoadHistory(_ context.Context, key string) (models.HistoryResult, error) {
	data, err := os.ReadFile(s.historyPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return models.HistoryResult{Turns: []models.Turn{}}, nil
	}
	if err != nil {
		return models.HistoryResult{}, fmt.Errorf("read history for %s: %w", key, err)
	}

	turns, err := decodeTurns(data)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Chat history unreadable, starting fresh")
		return models.HistoryResult{Turns: []models.Turn{}, Recovered: true}, nil
	}
	return models.HistoryResult{Turns: turns}, nil
}

// AppendHistory reads the current transcript, appends turns in order and
// writes the whole transcript back.
func (s *FileStore) AppendHistory(ctx context.Context, key string, turns ...models.Turn) error {
	current, err := s.LoadHistory(ctx, key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(append(current.Turns, turns...))
	if err != nil {
		return fmt.Errorf("encode history for %s: %w", key, err)
	}
	return writeFileAtomic(s.historyPath(key), data)
}

// ClearHistory deletes the transcript for key; absent is fine.
func (s *FileStore) ClearHistory(_ context.Context, key string) error {
	return removeIfExists(s.historyPath(key))
}

func (s *FileStore) Close() error { return nil }

func decodeTurns(data []byte) ([]models.Turn, error) {
	var turns []models.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []models.Turn{}
	}
	return turns, nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
