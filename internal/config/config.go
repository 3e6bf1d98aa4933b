package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PDFCHAT_"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	RAG     RAGConfig     `yaml:"rag"`
	LLM     LLMConfig     `yaml:"llm"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Addr           string `yaml:"addr"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// StorageConfig selects where document chunks and transcripts live.
type StorageConfig struct {
	Driver          string `yaml:"driver"`
	DocumentsDir    string `yaml:"documents_dir"`
	HistoryDir      string `yaml:"history_dir"`
	RetainOriginals bool   `yaml:"retain_originals"`
	DSN             string `yaml:"dsn"`
	Debug           bool   `yaml:"debug"`
}

type RAGConfig struct {
	ChunkSize     int `yaml:"chunk_size"`
	ChunkOverlap  int `yaml:"chunk_overlap"`
	ContextChunks int `yaml:"context_chunks"`
}

type LLMConfig struct {
	Provider     string        `yaml:"provider"`
	BaseURL      string        `yaml:"base_url"`
	Key          string        `yaml:"key"`
	DefaultModel string        `yaml:"default_model"`
	Timeout      time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

const (
	DriverFile     = "file"
	DriverPostgres = "postgres"

	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           "127.0.0.1:5000",
			MaxUploadBytes: 16 << 20,
		},
		Storage: StorageConfig{
			Driver:       DriverFile,
			DocumentsDir: "pdf_vault",
			HistoryDir:   "chat_history",
		},
		RAG: RAGConfig{
			ChunkSize:     1000,
			ChunkOverlap:  200,
			ContextChunks: 5,
		},
		LLM: LLMConfig{
			Provider:     ProviderOllama,
			BaseURL:      "http://localhost:11434",
			DefaultModel: "gemma:latest",
			Timeout:      120 * time.Second,
		},
		Log: LogConfig{
			Level: "debug",
		},
	}
}

// LoadConfig reads path on top of the defaults, then applies .env and
// PDFCHAT_* environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// .env is optional
	_ = godotenv.Load()

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"SERVER_ADDR":           &cfg.Server.Addr,
		"STORAGE_DRIVER":        &cfg.Storage.Driver,
		"STORAGE_DOCUMENTS_DIR": &cfg.Storage.DocumentsDir,
		"STORAGE_HISTORY_DIR":   &cfg.Storage.HistoryDir,
		"STORAGE_DSN":           &cfg.Storage.DSN,
		"LLM_PROVIDER":          &cfg.LLM.Provider,
		"LLM_BASE_URL":          &cfg.LLM.BaseURL,
		"LLM_KEY":               &cfg.LLM.Key,
		"LLM_DEFAULT_MODEL":     &cfg.LLM.DefaultModel,
		"LOG_LEVEL":             &cfg.Log.Level,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"RAG_CHUNK_SIZE":     &cfg.RAG.ChunkSize,
		"RAG_CHUNK_OVERLAP":  &cfg.RAG.ChunkOverlap,
		"RAG_CONTEXT_CHUNKS": &cfg.RAG.ContextChunks,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"STORAGE_RETAIN_ORIGINALS": &cfg.Storage.RetainOriginals,
		"LOG_JSON":                 &cfg.Log.JSON,
	}
	for name, dst := range bools {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = b
	}

	if v, ok := os.LookupEnv(envPrefix + "LLM_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sLLM_TIMEOUT: %w", envPrefix, err)
		}
		cfg.LLM.Timeout = d
	}
	return nil
}

func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, %d), got %d", c.RAG.ChunkSize, c.RAG.ChunkOverlap)
	}
	if c.RAG.ContextChunks <= 0 {
		return fmt.Errorf("rag.context_chunks must be positive, got %d", c.RAG.ContextChunks)
	}
	switch c.Storage.Driver {
	case DriverFile:
		if c.Storage.DocumentsDir == "" || c.Storage.HistoryDir == "" {
			return errors.New("storage.documents_dir and storage.history_dir are required for the file driver")
		}
		if filepath.Clean(c.Storage.DocumentsDir) == filepath.Clean(c.Storage.HistoryDir) {
			return errors.New("storage.documents_dir and storage.history_dir must differ")
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.LLM.Provider {
	case ProviderOllama:
	case ProviderOpenAI:
		if c.LLM.Key == "" {
			return errors.New("llm.key is required for the openai provider")
		}
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.DefaultModel == "" {
		return errors.New("llm.default_model is required")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive, got %s", c.LLM.Timeout)
	}
	return nil
}
