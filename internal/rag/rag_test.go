package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-chat/internal/config"
	"pdf-chat/internal/models"
	"pdf-chat/internal/storage"
	"pdf-chat/internal/testutil"
)

// fakeModel records every conversation it is sent.
type fakeModel struct {
	mu       sync.Mutex
	reply    string
	err      error
	names    []string
	listErr  error
	calls    [][]models.Turn
	lastName string
}

func (f *fakeModel) Chat(ctx context.Context, model string, messages []models.Turn) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	f.lastName = model
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeModel) ListModels(ctx context.Context) ([]string, error) {
	return f.names, f.listErr
}

func newTestRAG(t *testing.T, llm ChatModel) (*RAG, *config.Config) {
	t.Helper()
	cfg := config.Default()
	root := t.TempDir()
	cfg.Storage.DocumentsDir = filepath.Join(root, "pdf_vault")
	cfg.Storage.HistoryDir = filepath.Join(root, "chat_history")
	cfg.LLM.Timeout = 2 * time.Second

	store, err := storage.NewFileStore(cfg.Storage)
	require.NoError(t, err)
	return NewRAG(store, llm, cfg), cfg
}

func seed(t *testing.T, r *RAG, key string, chunks ...string) {
	t.Helper()
	require.NoError(t, r.store.SaveDocument(context.Background(), models.Document{Key: key, Chunks: chunks}))
}

func TestBuildMessages(t *testing.T) {
	chunks := []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7"}
	history := []models.Turn{
		{Role: models.RoleUser, Content: "q1"},
		{Role: models.RoleAssistant, Content: "a1"},
	}

	msgs := BuildMessages(chunks, 5, history, "q2")

	require.Len(t, msgs, 4)
	assert.Equal(t, models.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "c1"+models.ContextSeparator+"c2")
	assert.Contains(t, msgs[0].Content, "c5")
	assert.NotContains(t, msgs[0].Content, "c6")
	assert.Contains(t, msgs[0].Content, "bullet points")
	assert.Equal(t, history, msgs[1:3])
	assert.Equal(t, models.Turn{Role: models.RoleUser, Content: "q2"}, msgs[3])
}

func TestBuildMessages_FewChunks(t *testing.T) {
	msgs := BuildMessages([]string{"only"}, 5, nil, "hello")

	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "Context from PDF: only")
}

func TestResolveModel(t *testing.T) {
	r, cfg := newTestRAG(t, &fakeModel{})

	tests := []struct {
		input    string
		expected string
	}{
		{"", cfg.LLM.DefaultModel},
		{"   ", cfg.LLM.DefaultModel},
		{"llama3.2:latest", "llama3.2:latest"},
		{"library/mistral:7b-instruct", "library/mistral:7b-instruct"},
		{"bad model name", cfg.LLM.DefaultModel},
		{"; rm -rf /", cfg.LLM.DefaultModel},
		{strings.Repeat("m", 300), cfg.LLM.DefaultModel},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, r.ResolveModel(tc.input), "input %q", tc.input)
	}
}

func TestIngest(t *testing.T) {
	r, cfg := newTestRAG(t, &fakeModel{})
	data := testutil.TextPages("Page one talks about apples. ", "Page two talks about pears. ", "Page three is about plums.")

	res, err := r.Ingest(context.Background(), "My Fruit.pdf", data)
	require.NoError(t, err)

	assert.Equal(t, "My_Fruit", res.Key)
	assert.Equal(t, "My_Fruit.json", res.Filename)
	assert.GreaterOrEqual(t, res.Chunks, 1)

	chunks, err := r.store.LoadChunks(context.Background(), "My_Fruit")
	require.NoError(t, err)
	assert.Len(t, chunks, res.Chunks)
	assert.Contains(t, strings.Join(chunks, ""), "apples")

	_, err = os.Stat(filepath.Join(cfg.Storage.DocumentsDir, "My_Fruit.pdf"))
	assert.True(t, os.IsNotExist(err), "original should not be retained by default")
}

func TestIngest_RetainsOriginal(t *testing.T) {
	_, cfg := newTestRAG(t, &fakeModel{})
	cfg.Storage.RetainOriginals = true
	store, err := storage.NewFileStore(cfg.Storage)
	require.NoError(t, err)
	r := NewRAG(store, &fakeModel{}, cfg)

	data := testutil.TextPages("Keep me")
	_, err = r.Ingest(context.Background(), "keep.pdf", data)
	require.NoError(t, err)

	stored, err := os.ReadFile(filepath.Join(cfg.Storage.DocumentsDir, "keep.pdf"))
	require.NoError(t, err)
	assert.Equal(t, data, stored)
}

func TestIngest_Rejections(t *testing.T) {
	r, _ := newTestRAG(t, &fakeModel{})
	ctx := context.Background()

	_, err := r.Ingest(ctx, "notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = r.Ingest(ctx, "broken.pdf", []byte("not really a pdf, just text that is long enough to get past any header checks"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrInvalidInput)
}

func TestIngestFile(t *testing.T) {
	r, _ := newTestRAG(t, &fakeModel{})
	path := filepath.Join(t.TempDir(), "disk.pdf")
	require.NoError(t, os.WriteFile(path, testutil.TextPages("From the disk"), 0o644))

	res, err := r.IngestFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "disk", res.Key)
}

func TestChat_Success(t *testing.T) {
	llm := &fakeModel{reply: "• apples\n• pears"}
	r, cfg := newTestRAG(t, llm)
	seed(t, r, "fruit", "apples", "pears")
	ctx := context.Background()

	reply, err := r.Chat(ctx, "fruit.json", "List the fruit", "")
	require.NoError(t, err)
	assert.Equal(t, "• apples\n• pears", reply)
	assert.Equal(t, cfg.LLM.DefaultModel, llm.lastName)

	history, err := r.History(ctx, "fruit")
	require.NoError(t, err)
	assert.Equal(t, []models.Turn{
		{Role: models.RoleUser, Content: "List the fruit"},
		{Role: models.RoleAssistant, Content: "• apples\n• pears"},
	}, history)
}

func TestChat_TwoTurnsAlternate(t *testing.T) {
	llm := &fakeModel{reply: "answer"}
	r, _ := newTestRAG(t, llm)
	seed(t, r, "doc", "chunk")
	ctx := context.Background()

	_, err := r.Chat(ctx, "doc", "first", "llama3.2")
	require.NoError(t, err)
	_, err = r.Chat(ctx, "doc", "second", "llama3.2")
	require.NoError(t, err)

	history, err := r.History(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i, turn := range history {
		want := models.RoleUser
		if i%2 == 1 {
			want = models.RoleAssistant
		}
		assert.Equal(t, want, turn.Role, "turn %d", i)
	}

	// the second call carries the first exchange as prior transcript
	require.Len(t, llm.calls, 2)
	second := llm.calls[1]
	require.Len(t, second, 4)
	assert.Equal(t, "first", second[1].Content)
	assert.Equal(t, "answer", second[2].Content)
	assert.Equal(t, "second", second[3].Content)
	assert.Equal(t, "llama3.2", llm.lastName)
}

func TestChat_MissingFields(t *testing.T) {
	r, _ := newTestRAG(t, &fakeModel{})
	ctx := context.Background()

	_, err := r.Chat(ctx, "", "hello", "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = r.Chat(ctx, "doc", "", "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestChat_WhitespaceMessageIsSent(t *testing.T) {
	llm := &fakeModel{reply: "Could you clarify?"}
	r, _ := newTestRAG(t, llm)
	seed(t, r, "doc", "chunk")

	reply, err := r.Chat(context.Background(), "doc", "   ", "")
	require.NoError(t, err)
	assert.Equal(t, "Could you clarify?", reply)
	require.Len(t, llm.calls, 1)
	assert.Equal(t, "   ", llm.calls[0][len(llm.calls[0])-1].Content)
}

func TestChat_DocumentNotFound(t *testing.T) {
	llm := &fakeModel{reply: "x"}
	r, _ := newTestRAG(t, llm)

	_, err := r.Chat(context.Background(), "ghost", "hello", "")
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)
	assert.Empty(t, llm.calls)
}

func TestChat_BackendDownLeavesHistory(t *testing.T) {
	llm := &fakeModel{err: errors.New("connection refused")}
	r, cfg := newTestRAG(t, llm)
	seed(t, r, "doc", "chunk")
	ctx := context.Background()

	_, err := r.Chat(ctx, "doc", "hello", "")
	assert.ErrorIs(t, err, models.ErrBackendUnavailable)

	_, statErr := os.Stat(filepath.Join(cfg.Storage.HistoryDir, "doc_history.json"))
	assert.True(t, os.IsNotExist(statErr), "history must not be created on backend failure")

	require.NoError(t, r.store.AppendHistory(ctx, "doc", models.Turn{Role: models.RoleUser, Content: "earlier"}))
	_, err = r.Chat(ctx, "doc", "hello again", "")
	assert.ErrorIs(t, err, models.ErrBackendUnavailable)

	history, err := r.History(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, []models.Turn{{Role: models.RoleUser, Content: "earlier"}}, history)
}

type slowModel struct{ fakeModel }

func (s *slowModel) Chat(ctx context.Context, model string, messages []models.Turn) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestChat_TimeoutIsBackendUnavailable(t *testing.T) {
	r, cfg := newTestRAG(t, &slowModel{})
	cfg.LLM.Timeout = 50 * time.Millisecond
	seed(t, r, "doc", "chunk")

	_, err := r.Chat(context.Background(), "doc", "hello", "")
	assert.ErrorIs(t, err, models.ErrBackendUnavailable)
}

func TestChat_CorruptHistoryStartsFresh(t *testing.T) {
	r, cfg := newTestRAG(t, &fakeModel{reply: "ok"})
	seed(t, r, "doc", "chunk")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.HistoryDir, "doc_history.json"), []byte("{{{"), 0o644))

	_, err := r.Chat(context.Background(), "doc", "hello", "")
	require.NoError(t, err)

	history, err := r.History(context.Background(), "doc")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestClearAndDelete(t *testing.T) {
	r, _ := newTestRAG(t, &fakeModel{reply: "ok"})
	seed(t, r, "doc", "chunk")
	ctx := context.Background()

	require.NoError(t, r.ClearHistory(ctx, "doc"))

	_, err := r.Chat(ctx, "doc", "hello", "")
	require.NoError(t, err)
	require.NoError(t, r.ClearHistory(ctx, "doc.json"))
	history, err := r.History(ctx, "doc")
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = r.Chat(ctx, "doc", "hello", "")
	require.NoError(t, err)
	require.NoError(t, r.DeleteDocument(ctx, "doc"))

	docs, err := r.Documents(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
	history, err = r.History(ctx, "doc")
	require.NoError(t, err)
	assert.Empty(t, history)

	require.NoError(t, r.DeleteDocument(ctx, "doc"))
}

func TestModels(t *testing.T) {
	r, _ := newTestRAG(t, &fakeModel{names: []string{"gemma:latest"}})
	assert.Equal(t, []string{"gemma:latest"}, r.Models(context.Background()))
	assert.True(t, r.BackendReachable(context.Background()))

	r, _ = newTestRAG(t, &fakeModel{listErr: errors.New("down")})
	assert.Equal(t, []string{}, r.Models(context.Background()))
	assert.False(t, r.BackendReachable(context.Background()))
}
