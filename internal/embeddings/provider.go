package embeddings

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/agentkb/internal/config"
	"github.com/fyrsmithlabs/agentkb/internal/vectorstore"
	"go.uber.org/zap"
)

// DefaultModel is the sentence-embedding model loaded when none is configured.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// Provider is a trained embedding model.
type Provider interface {
	vectorstore.Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ClientConfig selects and configures the trained model behind a Client.
type ClientConfig struct {
	// Provider is "fastembed", "remote" or "fallback".
	Provider string
	// Model is the embedding model name.
	Model string
	// BaseURL is the OpenAI-compatible endpoint (remote only).
	BaseURL string
	// APIKey authenticates against BaseURL (remote only, optional for TEI).
	APIKey string
	// CacheDir is the model cache directory (fastembed only).
	CacheDir string
	// MaxLength is the maximum input sequence length (fastembed only).
	MaxLength int
}

// ClientConfigFrom maps the embeddings section of the application config.
func ClientConfigFrom(c config.EmbeddingsConfig) ClientConfig {
	return ClientConfig{
		Provider:  c.Provider,
		Model:     c.Model,
		BaseURL:   c.BaseURL,
		APIKey:    c.APIKey.Value(),
		CacheDir:  c.CacheDir,
		MaxLength: c.MaxLength,
	}
}

// NewProvider constructs the trained model named by cfg. Every failure is
// wrapped in ErrModelUnavailable.
func NewProvider(ctx context.Context, cfg ClientConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "fastembed", "":
		p, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:     cfg.Model,
			CacheDir:  cfg.CacheDir,
			MaxLength: cfg.MaxLength,
		}, logger)
	case "remote":
		p, err = NewRemoteProvider(ctx, RemoteConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
	case "fallback":
		err = fmt.Errorf("trained model disabled by configuration")
	default:
		err = fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelUnavailable, cfg.Model, err)
	}
	return p, nil
}

// knownModelDimensions lists the models FastEmbed can load.
var knownModelDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"fast-bge-small-en-v1.5":                 384,
	"fast-bge-small-en":                      384,
	"fast-bge-base-en-v1.5":                  768,
	"fast-bge-base-en":                       768,
	"fast-bge-small-zh-v1.5":                 512,
	"fast-all-MiniLM-L6-v2":                  384,
}
