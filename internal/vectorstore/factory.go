package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/agentkb/internal/config"
	"go.uber.org/zap"
)

// NewStore creates the Store selected by cfg.Provider:
//   - "chromem" (default): embedded ChromemStore, no external services
//   - "qdrant": QdrantStore against a running Qdrant server
//
// dimension is the embedder's vector length; Qdrant needs it to create the
// collection.
func NewStore(ctx context.Context, cfg config.VectorStoreConfig, embedder Embedder, dimension int, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "chromem", "":
		return NewChromemStore(ChromemConfig{
			Path:       cfg.Chromem.Path,
			Compress:   cfg.Chromem.Compress,
			Collection: cfg.Chromem.Collection,
		}, embedder, logger)

	case "qdrant":
		if dimension <= 0 {
			return nil, fmt.Errorf("%w: qdrant requires a positive vector dimension, got %d", ErrInvalidConfig, dimension)
		}
		return NewQdrantStore(ctx, QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
			APIKey:     cfg.Qdrant.APIKey.Value(),
			UseTLS:     cfg.Qdrant.UseTLS,
			VectorSize: uint64(dimension),
		}, embedder, logger)

	default:
		return nil, fmt.Errorf("unsupported vectorstore provider: %s (supported: chromem, qdrant)", cfg.Provider)
	}
}
