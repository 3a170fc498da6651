package embeddings

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func newTrainedClient(t *testing.T, p *MockProvider) (*Client, *observer.ObservedLogs) {
	t.Helper()
	p.On("Dimension").Return(FallbackDimension)
	logger, logs := newObservedLogger()
	c := NewClientWithProvider(p, "test-model", logger)
	require.False(t, c.Degraded())
	return c, logs
}

func TestNewClient_DegradedWhenModelUnavailable(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
	}{
		{"fallback provider", ClientConfig{Provider: "fallback"}},
		{"unknown provider", ClientConfig{Provider: "word2vec"}},
		{"remote without url", ClientConfig{Provider: "remote"}},
		{"unsupported fastembed model", ClientConfig{Provider: "fastembed", Model: "no/such-model"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := newObservedLogger()

			c := NewClient(context.Background(), tt.cfg, logger)

			require.NotNil(t, c)
			assert.True(t, c.Degraded())
			assert.Equal(t, FallbackDimension, c.Dimension())
			assert.Equal(t, 1, logs.FilterMessage("embedding model unavailable, using fallback").Len())
			assert.NoError(t, c.Close())
		})
	}
}

func TestNewClient_DefaultModel(t *testing.T) {
	c := NewClient(context.Background(), ClientConfig{Provider: "fallback"}, nil)
	assert.Equal(t, DefaultModel, c.Model())
}

func TestClient_DegradedUsesFallback(t *testing.T) {
	c := NewClientWithProvider(nil, "m", nil)
	ctx := context.Background()

	for _, text := range []string{"one", "two", ""} {
		got, err := c.Embed(ctx, text)
		require.NoError(t, err)
		want, _ := HashEmbedding(text)
		assert.Equal(t, want, got)
	}
	batch, err := c.EmbedMany(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.True(t, c.Degraded())
}

func TestClient_Embed_UsesModel(t *testing.T) {
	p := &MockProvider{}
	modelVec := constVector(FallbackDimension, 0.5)
	p.On("EmbedDocuments", mock.Anything, []string{"hello"}).Return([][]float32{modelVec}, nil)
	c, logs := newTrainedClient(t, p)

	got, err := c.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, modelVec, got)
	assert.Equal(t, 1, logs.FilterMessage("loaded embedding model").Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	p.AssertExpectations(t)
}

func TestClient_Embed_CallFailureFallsBackOnce(t *testing.T) {
	p := &MockProvider{}
	modelVec := constVector(FallbackDimension, 0.25)
	p.On("EmbedDocuments", mock.Anything, []string{"bad"}).Return(nil, errors.New("onnx exploded")).Once()
	p.On("EmbedDocuments", mock.Anything, []string{"good"}).Return([][]float32{modelVec}, nil).Once()
	c, logs := newTrainedClient(t, p)
	ctx := context.Background()

	got, err := c.Embed(ctx, "bad")
	require.NoError(t, err)
	want, _ := HashEmbedding("bad")
	assert.Equal(t, want, got)
	assert.Equal(t, 1, logs.FilterMessage("embedding failed, using fallback").Len())

	// The failure does not make the client degraded.
	assert.False(t, c.Degraded())
	got, err = c.Embed(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, modelVec, got)
	p.AssertExpectations(t)
}

func TestClient_Embed_WrongVectorCountIsFailure(t *testing.T) {
	p := &MockProvider{}
	p.On("EmbedDocuments", mock.Anything, []string{"x"}).Return([][]float32{}, nil)
	c, _ := newTrainedClient(t, p)

	got, usage, err := c.EmbedWithUsage(context.Background(), "x")

	require.NoError(t, err)
	want, _ := HashEmbedding("x")
	assert.Equal(t, want, got)
	assert.Equal(t, SourceFallback, usage.Source)
	assert.Equal(t, FallbackModel, usage.Model)
}

func TestClient_CallFailureMatchesModelDimension(t *testing.T) {
	const dim = 768
	ctx := context.Background()
	p := &MockProvider{}
	p.On("Dimension").Return(dim)
	p.On("EmbedDocuments", mock.Anything, mock.Anything).Return(nil, errors.New("onnx exploded"))
	p.On("EmbedQuery", mock.Anything, mock.Anything).Return(nil, errors.New("onnx exploded"))
	c := NewClientWithProvider(p, "BAAI/bge-base-en-v1.5", nil)
	require.Equal(t, dim, c.Dimension())

	vec, usage, err := c.EmbedWithUsage(ctx, "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, dim)
	assert.Equal(t, SourceFallback, usage.Source)
	want, err := HashEmbeddingDim("hello world", dim)
	require.NoError(t, err)
	assert.Equal(t, want, vec)

	query, err := c.EmbedQuery(ctx, "hello world")
	require.NoError(t, err)
	assert.Len(t, query, dim)

	batch, err := c.EmbedMany(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	for _, v := range batch {
		assert.Len(t, v, dim)
	}
}

func TestClient_EmbedMany_Consistency(t *testing.T) {
	texts := []string{"first text", "second text", "third"}
	ctx := context.Background()

	t.Run("degraded", func(t *testing.T) {
		c := NewClientWithProvider(nil, "m", nil)
		batch, err := c.EmbedMany(ctx, texts)
		require.NoError(t, err)
		require.Len(t, batch, len(texts))
		for i, text := range texts {
			single, err := c.Embed(ctx, text)
			require.NoError(t, err)
			assert.Equal(t, single, batch[i])
		}
	})

	t.Run("trained", func(t *testing.T) {
		p := &MockProvider{}
		vecs := [][]float32{constVector(4, 1), constVector(4, 2), constVector(4, 3)}
		p.On("EmbedDocuments", mock.Anything, texts).Return(vecs, nil)
		for i, text := range texts {
			p.On("EmbedDocuments", mock.Anything, []string{text}).Return([][]float32{vecs[i]}, nil)
		}
		c, _ := newTrainedClient(t, p)

		batch, err := c.EmbedMany(ctx, texts)
		require.NoError(t, err)
		for i, text := range texts {
			single, err := c.Embed(ctx, text)
			require.NoError(t, err)
			assert.Equal(t, single, batch[i])
		}
	})
}

func TestClient_EmbedMany_FailureRecomputesWholeBatch(t *testing.T) {
	texts := []string{"a", "b", "c"}
	p := &MockProvider{}
	// Partial result: two vectors for three texts.
	p.On("EmbedDocuments", mock.Anything, texts).Return([][]float32{constVector(4, 9), constVector(4, 9)}, nil)
	c, logs := newTrainedClient(t, p)

	got, err := c.EmbedMany(context.Background(), texts)

	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, text := range texts {
		want, _ := HashEmbedding(text)
		assert.Equal(t, want, got[i])
	}
	assert.Equal(t, 1, logs.FilterMessage("embedding batch failed, using fallback").Len())
}

func TestClient_EmbedMany_Empty(t *testing.T) {
	c := NewClientWithProvider(nil, "m", nil)
	got, err := c.EmbedMany(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestClient_InvalidEncoding(t *testing.T) {
	invalid := string([]byte{0xc3, 0x28})
	p := &MockProvider{}
	c, _ := newTrainedClient(t, p)
	ctx := context.Background()

	_, err := c.Embed(ctx, invalid)
	assert.ErrorIs(t, err, ErrInvalidEncoding)

	_, err = c.EmbedMany(ctx, []string{"ok", invalid})
	assert.ErrorIs(t, err, ErrInvalidEncoding)

	_, _, err = c.EmbedWithUsage(ctx, invalid)
	assert.ErrorIs(t, err, ErrInvalidEncoding)

	p.AssertNotCalled(t, "EmbedDocuments", mock.Anything, mock.Anything)
}

func TestClient_EmbedWithUsage(t *testing.T) {
	ctx := context.Background()

	t.Run("model", func(t *testing.T) {
		p := &MockProvider{}
		p.On("EmbedDocuments", mock.Anything, mock.Anything).Return([][]float32{constVector(8, 1)}, nil)
		c, _ := newTrainedClient(t, p)

		_, usage, err := c.EmbedWithUsage(ctx, "Agno is a framework for building AI agents.")
		require.NoError(t, err)
		assert.Equal(t, Usage{Tokens: 8, Model: "test-model", Source: SourceModel}, usage)
	})

	t.Run("fallback", func(t *testing.T) {
		c := NewClientWithProvider(nil, "test-model", nil)
		vec, usage, err := c.EmbedWithUsage(ctx, "  spaced   out\ttext\n")
		require.NoError(t, err)
		assert.Len(t, vec, FallbackDimension)
		assert.Equal(t, Usage{Tokens: 3, Model: FallbackModel, Source: SourceFallback}, usage)
	})

	t.Run("empty", func(t *testing.T) {
		c := NewClientWithProvider(nil, "test-model", nil)
		_, usage, err := c.EmbedWithUsage(ctx, "")
		require.NoError(t, err)
		assert.Zero(t, usage.Tokens)
	})
}

func TestClient_EmbedQuery_UsesQueryPath(t *testing.T) {
	p := &MockProvider{}
	p.On("EmbedQuery", mock.Anything, "what is agno?").Return(constVector(4, 7), nil)
	c, _ := newTrainedClient(t, p)

	got, err := c.EmbedQuery(context.Background(), "what is agno?")
	require.NoError(t, err)
	assert.Equal(t, constVector(4, 7), got)
	p.AssertExpectations(t)
}

func TestClient_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClientWithProvider(nil, "m", nil)

	_, err := c.Embed(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = c.EmbedMany(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_CancelDuringCallIsNotAFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &MockProvider{}
	p.On("EmbedDocuments", mock.Anything, []string{"slow"}).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled)
	c, logs := newTrainedClient(t, p)

	_, err := c.Embed(ctx, "slow")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, logs.FilterMessageSnippet("using fallback").Len())
}

func TestClient_Close(t *testing.T) {
	p := &MockProvider{}
	p.On("Close").Return(nil)
	c, _ := newTrainedClient(t, p)

	require.NoError(t, c.Close())
	p.AssertCalled(t, "Close")
}

func TestClient_Concurrent(t *testing.T) {
	p := &MockProvider{}
	p.On("EmbedDocuments", mock.Anything, mock.Anything).Return(nil, errors.New("busy"))
	c, _ := newTrainedClient(t, p)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vec, err := c.Embed(context.Background(), "same")
			assert.NoError(t, err)
			assert.Len(t, vec, FallbackDimension)
		}()
	}
	wg.Wait()
	assert.False(t, c.Degraded())
}
