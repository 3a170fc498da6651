package embeddings

import (
	"context"
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// RemoteConfig configures an OpenAI-compatible embedding endpoint such as
// Text Embeddings Inference or the OpenAI API.
type RemoteConfig struct {
	// BaseURL, e.g. http://localhost:8080/v1 for TEI.
	BaseURL string
	Model   string
	// APIKey is optional for TEI.
	APIKey string
}

// Validate validates the configuration.
func (c RemoteConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	return nil
}

// RemoteProvider embeds text through langchaingo's OpenAI client.
type RemoteProvider struct {
	embedder  lcembeddings.Embedder
	dimension int
}

// NewRemoteProvider builds the client and embeds a sample string so an
// unreachable endpoint fails here rather than on every call.
func NewRemoteProvider(ctx context.Context, cfg RemoteConfig) (*RemoteProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		// langchaingo requires a token; TEI ignores it.
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	sample, err := embedder.EmbedQuery(ctx, "dimension check")
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", cfg.BaseURL, err)
	}
	if len(sample) == 0 {
		return nil, fmt.Errorf("probing %s: empty embedding", cfg.BaseURL)
	}

	return &RemoteProvider{
		embedder:  embedder,
		dimension: len(sample),
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *RemoteProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *RemoteProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	return vec, nil
}

// Dimension returns the dimension observed when probing the endpoint.
func (p *RemoteProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op; the provider holds only an HTTP client.
func (p *RemoteProvider) Close() error {
	return nil
}
