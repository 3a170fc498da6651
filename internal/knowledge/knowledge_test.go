package knowledge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fyrsmithlabs/agentkb/internal/config"
	"github.com/fyrsmithlabs/agentkb/internal/embeddings"
	"github.com/fyrsmithlabs/agentkb/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const introMarkdown = `# What is Agno?

Agno is a lightweight library for building agents with memory, knowledge, tools and reasoning.

## Key features

Agents can search a knowledge base stored in a vector database before answering.

## Storage

Sessions are persisted so that agents remember previous runs in a conversation.
`

func newServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/introduction.md":
			w.Header().Set("Content-Type", "text/markdown")
			_, _ = w.Write([]byte(introMarkdown))
		case "/empty.md":
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newStore(t *testing.T) vectorstore.Store {
	t.Helper()
	client := embeddings.NewClientWithProvider(nil, "", zap.NewNop())
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Collection: "knowledge_test",
		InMemory:   true,
	}, client, zap.NewNop())
	require.NoError(t, err)
	return store
}

func newKnowledge(t *testing.T, store vectorstore.Store, urls ...string) *URLKnowledge {
	t.Helper()
	kb, err := NewURLKnowledge(Config{
		URLs:         urls,
		ChunkSize:    120,
		ChunkOverlap: 10,
		NumDocuments: 2,
	}, store, zap.NewNop())
	require.NoError(t, err)
	return kb
}

func TestNewURLKnowledge(t *testing.T) {
	store := newStore(t)

	t.Run("requires store", func(t *testing.T) {
		_, err := NewURLKnowledge(Config{}, nil, nil)
		assert.Error(t, err)
	})

	t.Run("rejects overlap not below chunk size", func(t *testing.T) {
		_, err := NewURLKnowledge(Config{ChunkSize: 100, ChunkOverlap: 100}, store, nil)
		assert.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		kb, err := NewURLKnowledge(Config{URLs: []string{"http://x"}}, store, nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultNumDocuments, kb.NumDocuments())
		assert.Equal(t, []string{"http://x"}, kb.URLs())
	})

	t.Run("from settings", func(t *testing.T) {
		cfg := ConfigFrom(config.Default().Knowledge)
		assert.Equal(t, 1000, cfg.ChunkSize)
		assert.Equal(t, 5, cfg.NumDocuments)
	})
}

func TestURLKnowledge_Load(t *testing.T) {
	ctx := context.Background()
	srv, hits := newServer(t)
	url := srv.URL + "/introduction.md"
	store := newStore(t)
	kb := newKnowledge(t, store, url)

	stats, err := kb.Load(ctx, false)
	require.NoError(t, err)
	assert.False(t, stats.Skipped)
	assert.Equal(t, 1, stats.URLs)
	assert.Greater(t, stats.Documents, 1, "document is split into several chunks")

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.Documents, count)

	results, err := store.SearchWithFilters(ctx, "Agno", count, map[string]interface{}{MetadataChunk: 0})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, DocumentPrefix(url)+"_0", results[0].ID)
	assert.Equal(t, url, results[0].Metadata[MetadataSource])
	assert.Contains(t, results[0].Content, "What is Agno?")

	t.Run("second load skips", func(t *testing.T) {
		before := hits.Load()
		stats, err := kb.Load(ctx, false)
		require.NoError(t, err)
		assert.True(t, stats.Skipped)
		assert.Equal(t, count, stats.Documents)
		assert.Equal(t, before, hits.Load(), "no fetch when skipped")
	})

	t.Run("recreate reloads", func(t *testing.T) {
		before := hits.Load()
		stats, err := kb.Load(ctx, true)
		require.NoError(t, err)
		assert.False(t, stats.Skipped)
		assert.Equal(t, count, stats.Documents)
		assert.Equal(t, before+1, hits.Load())

		after, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, count, after)
	})
}

func TestURLKnowledge_LoadErrors(t *testing.T) {
	ctx := context.Background()
	srv, _ := newServer(t)

	t.Run("no urls", func(t *testing.T) {
		kb := newKnowledge(t, newStore(t))
		_, err := kb.Load(ctx, false)
		assert.ErrorIs(t, err, ErrNoURLs)
	})

	t.Run("not found", func(t *testing.T) {
		kb := newKnowledge(t, newStore(t), srv.URL+"/missing.md")
		_, err := kb.Load(ctx, false)
		assert.ErrorIs(t, err, ErrFetchFailed)
		assert.ErrorContains(t, err, "status 404")
	})

	t.Run("empty document is skipped", func(t *testing.T) {
		kb := newKnowledge(t, newStore(t), srv.URL+"/empty.md")
		stats, err := kb.Load(ctx, false)
		require.NoError(t, err)
		assert.Zero(t, stats.Documents)
	})
}

func TestURLKnowledge_Search(t *testing.T) {
	ctx := context.Background()
	srv, _ := newServer(t)
	store := newStore(t)
	kb := newKnowledge(t, store, srv.URL+"/introduction.md")

	t.Run("empty knowledge", func(t *testing.T) {
		results, err := kb.Search(ctx, "What is Agno?")
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	_, err := kb.Load(ctx, false)
	require.NoError(t, err)

	results, err := kb.Search(ctx, "What is Agno?")
	require.NoError(t, err)
	assert.Len(t, results, 2)

	_, err = kb.Search(ctx, "")
	assert.ErrorIs(t, err, vectorstore.ErrInvalidQuery)
}

func TestDocumentPrefix(t *testing.T) {
	a := DocumentPrefix("https://docs.agno.com/introduction.md")
	assert.Len(t, a, 12)
	assert.Equal(t, a, DocumentPrefix("https://docs.agno.com/introduction.md"))
	assert.NotEqual(t, a, DocumentPrefix("https://docs.agno.com/other.md"))
	assert.False(t, strings.ContainsAny(a, "_-"))
}

type wordRedactor struct{ word string }

func (w wordRedactor) Redact(text string) string {
	return strings.ReplaceAll(text, w.word, "[REDACTED:test]")
}

func TestURLKnowledge_LoadRedacts(t *testing.T) {
	ctx := context.Background()
	srv, _ := newServer(t)
	store := newStore(t)

	kb, err := NewURLKnowledge(Config{
		URLs:         []string{srv.URL + "/introduction.md"},
		ChunkSize:    1000,
		ChunkOverlap: 0,
		Redactor:     wordRedactor{word: "lightweight"},
	}, store, zap.NewNop())
	require.NoError(t, err)

	_, err = kb.Load(ctx, false)
	require.NoError(t, err)

	results, err := kb.Search(ctx, "What is Agno?")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	n, err := store.Count(ctx)
	require.NoError(t, err)
	all, err := store.Search(ctx, "Agno", n)
	require.NoError(t, err)

	var redacted bool
	for _, r := range all {
		assert.NotContains(t, r.Content, "lightweight")
		redacted = redacted || strings.Contains(r.Content, "[REDACTED:test]")
	}
	assert.True(t, redacted)
}

func TestURLKnowledge_Documents(t *testing.T) {
	srv, _ := newServer(t)
	url := srv.URL + "/introduction.md"
	kb := newKnowledge(t, newStore(t), url)

	docs, err := kb.documents(context.Background(), url)

	require.NoError(t, err)
	require.Greater(t, len(docs), 1, "chunk size 120 splits the page")
	prefix := DocumentPrefix(url)
	for i, doc := range docs {
		assert.Equal(t, prefix+"_"+strconv.Itoa(i), doc.ID)
		assert.NotEmpty(t, strings.TrimSpace(doc.Content))
		assert.Equal(t, url, doc.Metadata[MetadataSource])
		assert.Equal(t, i, doc.Metadata[MetadataChunk])
	}

	empty, err := kb.documents(context.Background(), srv.URL+"/empty.md")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
