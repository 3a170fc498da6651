package embeddings

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	fallbackDegraded   = "degraded"
	fallbackCallFailed = "call_failed"
)

// Client embeds text with a trained model when one is loaded and with
// HashEmbedding otherwise.
//
// Whether the Client is degraded is decided once by the constructor and
// never changes. A Client is safe for concurrent use.
type Client struct {
	provider  Provider
	model     string
	degraded  bool
	dimension int
	logger    *zap.Logger
	metrics   *Metrics
}

// NewClient loads the configured trained model. It never fails: when the
// model cannot be loaded the returned Client is permanently degraded.
func NewClient(ctx context.Context, cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	provider, err := NewProvider(ctx, cfg, logger)
	if err != nil {
		logger.Warn("embedding model unavailable, using fallback",
			zap.String("model", cfg.Model),
			zap.String("provider", cfg.Provider),
			zap.Error(err),
		)
		provider = nil
	}
	return NewClientWithProvider(provider, cfg.Model, logger)
}

// NewClientWithProvider wraps an already constructed provider. A nil
// provider yields a degraded Client.
func NewClientWithProvider(provider Provider, model string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if model == "" {
		model = DefaultModel
	}

	c := &Client{
		provider:  provider,
		model:     model,
		degraded:  provider == nil,
		dimension: FallbackDimension,
		logger:    logger.Named("embeddings"),
		metrics:   NewMetrics(logger),
	}
	if !c.degraded {
		if dim := provider.Dimension(); dim > 0 {
			c.dimension = dim
		}
		c.logger.Info("loaded embedding model",
			zap.String("model", model),
			zap.Int("dimension", c.dimension),
		)
	}
	return c
}

// Degraded reports whether the Client runs without a trained model.
func (c *Client) Degraded() bool {
	return c.degraded
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Dimension returns the length of vectors produced by the trained model, or
// FallbackDimension when degraded. Calls that fall back on a trained Client
// return HashEmbeddingDim vectors of this length so they fit the same
// collection.
func (c *Client) Dimension() int {
	return c.dimension
}

// Close releases the trained model, if any.
func (c *Client) Close() error {
	if c.provider == nil {
		return nil
	}
	return c.provider.Close()
}

// Embed returns the vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, _, err := c.embed(ctx, text, false)
	return vec, err
}

// EmbedWithUsage is Embed plus a Usage record naming the path that
// produced the vector.
func (c *Client) EmbedWithUsage(ctx context.Context, text string) ([]float32, Usage, error) {
	vec, source, err := c.embed(ctx, text, false)
	if err != nil {
		return nil, Usage{}, err
	}
	return vec, newUsage(text, c.model, source), nil
}

// EmbedMany returns one vector per text, in order. When the trained model
// fails the whole batch is recomputed with the fallback.
func (c *Client) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, text := range texts {
		if err := validateText(text); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if c.degraded {
		c.metrics.RecordFallback(ctx, c.model, fallbackDegraded, len(texts))
		return hashEmbeddings(texts, c.dimension)
	}

	outcome := c.invoke(ctx, "embed_many", len(texts), func(ctx context.Context) ([][]float32, error) {
		return c.provider.EmbedDocuments(ctx, texts)
	})
	if outcome.OK() {
		return outcome.Vectors(), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.logger.Warn("embedding batch failed, using fallback",
		zap.String("model", c.model),
		zap.Int("texts", len(texts)),
		zap.Error(outcome.Reason()),
	)
	c.metrics.RecordFallback(ctx, c.model, fallbackCallFailed, len(texts))
	return hashEmbeddings(texts, c.dimension)
}

// EmbedDocuments implements vectorstore.Embedder.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return c.EmbedMany(ctx, texts)
}

// EmbedQuery implements vectorstore.Embedder. Models that distinguish
// queries from passages receive the text as a query.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, _, err := c.embed(ctx, text, true)
	return vec, err
}

func (c *Client) embed(ctx context.Context, text string, query bool) ([]float32, Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if err := validateText(text); err != nil {
		return nil, "", err
	}

	if c.degraded {
		c.metrics.RecordFallback(ctx, c.model, fallbackDegraded, 1)
		vec, err := HashEmbeddingDim(text, c.dimension)
		return vec, SourceFallback, err
	}

	outcome := c.invoke(ctx, "embed", 1, func(ctx context.Context) ([][]float32, error) {
		if query {
			vec, err := c.provider.EmbedQuery(ctx, text)
			if err != nil {
				return nil, err
			}
			return [][]float32{vec}, nil
		}
		return c.provider.EmbedDocuments(ctx, []string{text})
	})
	if outcome.OK() {
		return outcome.Vectors()[0], SourceModel, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	c.logger.Warn("embedding failed, using fallback",
		zap.String("model", c.model),
		zap.Error(outcome.Reason()),
	)
	c.metrics.RecordFallback(ctx, c.model, fallbackCallFailed, 1)
	vec, err := HashEmbeddingDim(text, c.dimension)
	return vec, SourceFallback, err
}

// invoke runs one trained model call and classifies its result. A result
// with the wrong number of vectors, or an empty vector, is a failure.
func (c *Client) invoke(ctx context.Context, op string, n int, call func(context.Context) ([][]float32, error)) Outcome {
	start := time.Now()
	vectors, err := call(ctx)
	if err == nil {
		err = checkVectors(vectors, n)
	}
	c.metrics.RecordGeneration(ctx, c.model, op, time.Since(start), n, err)

	if err != nil {
		return Failed(fmt.Errorf("%w: %w", ErrEmbeddingFailed, err))
	}
	return Succeeded(vectors)
}

func checkVectors(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("model returned %d vectors for %d texts", len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("model returned an empty vector at index %d", i)
		}
	}
	return nil
}
