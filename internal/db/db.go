package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"pdf-chat/internal/config"
	"pdf-chat/internal/models"
)

type Document struct {
	bun.BaseModel `bun:"table:pdf_documents,alias:d"`
	Key           string    `bun:"key,pk"`
	Chunks        []string  `bun:"chunks,array,notnull"`
	Original      []byte    `bun:"original"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// History keeps the transcript as JSON text so an unreadable value can be
// recovered as empty instead of failing the scan.
type History struct {
	bun.BaseModel `bun:"table:chat_histories,alias:h"`
	Key           string    `bun:"key,pk"`
	Turns         string    `bun:"turns,type:jsonb,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Store is the Postgres-backed document and transcript store.
// Like the file store it does not serialize read-modify-write per key.
type Store struct {
	db              *bun.DB
	retainOriginals bool
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg *config.StorageConfig) *sql.DB {
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
}

// NewStore connects, pings and creates the tables if needed.
func NewStore(ctx context.Context, cfg *config.StorageConfig) (*Store, error) {
	db := NewDB(ConnectDB(cfg), cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, retainOriginals: cfg.RetainOriginals}, nil
}

func InitDB(ctx context.Context, db *bun.DB) error {
	for _, model := range []interface{}{(*Document)(nil), (*History)(nil)} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// DropTables removes both tables, used to reset test databases.
func DropTables(ctx context.Context, db *bun.DB) error {
	for _, model := range []interface{}{(*Document)(nil), (*History)(nil)} {
		if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DB() *bun.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SaveDocument(ctx context.Context, doc models.Document) error {
	rec := &Document{Key: doc.Key, Chunks: doc.Chunks}
	if rec.Chunks == nil {
		rec.Chunks = []string{}
	}
	if s.retainOriginals {
		rec.Original = doc.Original
	}
	_, err := s.db.NewInsert().
		Model(rec).
		On("CONFLICT (key) DO UPDATE").
		Set("chunks = EXCLUDED.chunks").
		Set("original = EXCLUDED.original").
		Set("created_at = current_timestamp").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store document %s: %w", doc.Key, err)
	}
	return nil
}

func (s *Store) LoadChunks(ctx context.Context, key string) ([]string, error) {
	var rec Document
	err := s.db.NewSelect().Model(&rec).Column("key", "chunks").Where("key = ?", key).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", key, err)
	}
	return rec.Chunks, nil
}

func (s *Store) DeleteDocument(ctx context.Context, key string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*Document)(nil)).Where("key = ?", key).Exec(ctx); err != nil {
			return fmt.Errorf("delete document %s: %w", key, err)
		}
		if _, err := tx.NewDelete().Model((*History)(nil)).Where("key = ?", key).Exec(ctx); err != nil {
			return fmt.Errorf("delete history %s: %w", key, err)
		}
		return nil
	})
}

func (s *Store) ListDocuments(ctx context.Context) ([]string, error) {
	keys := []string{}
	err := s.db.NewSelect().Model((*Document)(nil)).Column("key").Scan(ctx, &keys)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) LoadHistory(ctx context.Context, key string) (models.HistoryResult, error) {
	var rec History
	err := s.db.NewSelect().Model(&rec).Where("key = ?", key).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.HistoryResult{Turns: []models.Turn{}}, nil
	}
	if err != nil {
		return models.HistoryResult{}, fmt.Errorf("load history %s: %w", key, err)
	}

	var turns []models.Turn
	if err := json.Unmarshal([]byte(rec.Turns), &turns); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Chat history unreadable, starting fresh")
		return models.HistoryResult{Turns: []models.Turn{}, Recovered: true}, nil
	}
	if turns == nil {
		turns = []models.Turn{}
	}
	return models.HistoryResult{Turns: turns}, nil
}

func (s *Store) AppendHistory(ctx context.Context, key string, turns ...models.Turn) error {
	current, err := s.LoadHistory(ctx, key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(append(current.Turns, turns...))
	if err != nil {
		return fmt.Errorf("encode history %s: %w", key, err)
	}

	rec := &History{Key: key, Turns: string(data), UpdatedAt: time.Now()}
	_, err = s.db.NewInsert().
		Model(rec).
		On("CONFLICT (key) DO UPDATE").
		Set("turns = EXCLUDED.turns").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store history %s: %w", key, err)
	}
	return nil
}

func (s *Store) ClearHistory(ctx context.Context, key string) error {
	if _, err := s.db.NewDelete().Model((*History)(nil)).Where("key = ?", key).Exec(ctx); err != nil {
		return fmt.Errorf("clear history %s: %w", key, err)
	}
	return nil
}
