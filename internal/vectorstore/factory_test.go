package vectorstore

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/agentkb/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	embedder := &fixedEmbedder{dim: 8}

	t.Run("chromem", func(t *testing.T) {
		cfg := config.Default().VectorStore
		cfg.Chromem.Path = t.TempDir()

		store, err := NewStore(ctx, cfg, embedder, 8, nil)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &ChromemStore{}, store)
		assert.Equal(t, "agno_docs_with_embeddings", store.Collection())
	})

	t.Run("qdrant needs dimension", func(t *testing.T) {
		cfg := config.Default().VectorStore
		cfg.Provider = "qdrant"
		_, err := NewStore(ctx, cfg, embedder, 0, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := config.Default().VectorStore
		cfg.Provider = "pinecone"
		_, err := NewStore(ctx, cfg, embedder, 8, nil)
		assert.ErrorContains(t, err, "unsupported vectorstore provider")
	})
}
