package vectorstore_test

import (
	"context"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/agentkb/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// wordEmbedder hashes each word into a bucket, so texts sharing words
// score higher than unrelated ones.
type wordEmbedder struct {
	dim   int
	calls int
}

func (e *wordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *wordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e *wordEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dim)
	// Bias bucket keeps the vector non-zero.
	v[0] = 0.1
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[1+int(h.Sum32())%(e.dim-1)] += 1
	}
	return v
}

func newMemoryStore(t *testing.T) (*vectorstore.ChromemStore, *wordEmbedder) {
	t.Helper()
	embedder := &wordEmbedder{dim: 64}
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Collection: "test_docs",
		InMemory:   true,
	}, embedder, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, embedder
}

func seedDocs() []vectorstore.Document {
	return []vectorstore.Document{
		{ID: "a_0", Content: "agents use tools and knowledge", Metadata: map[string]interface{}{"source": "a", "chunk": 0}},
		{ID: "a_1", Content: "vector databases store embeddings", Metadata: map[string]interface{}{"source": "a", "chunk": 1}},
		{ID: "b_0", Content: "the weather is sunny today", Metadata: map[string]interface{}{"source": "b", "chunk": 0}},
	}
}

func TestNewChromemStore(t *testing.T) {
	t.Run("requires embedder", func(t *testing.T) {
		_, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Collection: "docs", InMemory: true}, nil, nil)
		assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
	})

	t.Run("rejects invalid collection", func(t *testing.T) {
		_, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Collection: "Bad-Name", InMemory: true}, &wordEmbedder{dim: 8}, nil)
		assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
		assert.ErrorIs(t, err, vectorstore.ErrInvalidCollectionName)
	})

	t.Run("persistent path is created", func(t *testing.T) {
		dir := t.TempDir() + "/nested/db"
		store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Collection: "docs", Path: dir}, &wordEmbedder{dim: 8}, nil)
		require.NoError(t, err)
		assert.DirExists(t, dir)
		assert.Equal(t, "docs", store.Collection())
	})
}

func TestChromemStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	store, embedder := newMemoryStore(t)

	ids, err := store.AddDocuments(ctx, seedDocs())
	require.NoError(t, err)
	assert.Equal(t, []string{"a_0", "a_1", "b_0"}, ids)
	assert.Equal(t, 1, embedder.calls, "documents are embedded in one batch")

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	results, err := store.Search(ctx, "sunny weather", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b_0", results[0].ID)
	assert.Equal(t, "the weather is sunny today", results[0].Content)
	assert.Equal(t, "b", results[0].Metadata["source"])
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestChromemStore_SearchCapsK(t *testing.T) {
	ctx := context.Background()
	store, _ := newMemoryStore(t)

	_, err := store.AddDocuments(ctx, seedDocs())
	require.NoError(t, err)

	results, err := store.Search(ctx, "knowledge", 50)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestChromemStore_SearchWithFilters(t *testing.T) {
	ctx := context.Background()
	store, _ := newMemoryStore(t)

	_, err := store.AddDocuments(ctx, seedDocs())
	require.NoError(t, err)

	results, err := store.SearchWithFilters(ctx, "sunny weather", 3, map[string]interface{}{"source": "a"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "a", r.Metadata["source"])
	}
}

func TestChromemStore_UpsertByID(t *testing.T) {
	ctx := context.Background()
	store, _ := newMemoryStore(t)

	_, err := store.AddDocuments(ctx, seedDocs())
	require.NoError(t, err)
	_, err = store.AddDocuments(ctx, []vectorstore.Document{{ID: "b_0", Content: "rain is expected"}})
	require.NoError(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	results, err := store.Search(ctx, "rain expected", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "rain is expected", results[0].Content)
}

func TestChromemStore_MissingCollection(t *testing.T) {
	ctx := context.Background()
	store, _ := newMemoryStore(t)

	exists, err := store.CollectionExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	results, err := store.Search(ctx, "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.NoError(t, store.DeleteCollection(ctx))
}

func TestChromemStore_DeleteCollection(t *testing.T) {
	ctx := context.Background()
	store, _ := newMemoryStore(t)

	_, err := store.AddDocuments(ctx, seedDocs())
	require.NoError(t, err)

	exists, err := store.CollectionExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.DeleteCollection(ctx))

	exists, err = store.CollectionExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestChromemStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := vectorstore.ChromemConfig{Collection: "docs", Path: dir, Compress: true}

	store, err := vectorstore.NewChromemStore(cfg, &wordEmbedder{dim: 32}, nil)
	require.NoError(t, err)
	_, err = store.AddDocuments(ctx, seedDocs())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := vectorstore.NewChromemStore(cfg, &wordEmbedder{dim: 32}, nil)
	require.NoError(t, err)
	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestChromemStore_InvalidInput(t *testing.T) {
	ctx := context.Background()
	store, _ := newMemoryStore(t)

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{
			name: "no documents",
			run: func() error {
				_, err := store.AddDocuments(ctx, nil)
				return err
			},
			want: vectorstore.ErrEmptyDocuments,
		},
		{
			name: "empty query",
			run: func() error {
				_, err := store.Search(ctx, "", 3)
				return err
			},
			want: vectorstore.ErrInvalidQuery,
		},
		{
			name: "zero k",
			run: func() error {
				_, err := store.Search(ctx, "q", 0)
				return err
			},
			want: vectorstore.ErrInvalidQuery,
		},
		{
			name: "oversized query",
			run: func() error {
				_, err := store.Search(ctx, strings.Repeat("x", 10001), 3)
				return err
			},
			want: vectorstore.ErrInvalidQuery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), tt.want)
		})
	}

	t.Run("document without id", func(t *testing.T) {
		_, err := store.AddDocuments(ctx, []vectorstore.Document{{Content: "no id"}})
		assert.Error(t, err)
	})
}
