package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrInvalidQuery indicates an empty or oversized query, or k <= 0.
	ErrInvalidQuery = errors.New("invalid query")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns a slice of embeddings (one per input text) or an error.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is a vector collection.
type Store interface {
	// AddDocuments embeds and upserts documents, creating the collection
	// on first use. Documents with an existing ID replace the stored one.
	// Returns the stored IDs in input order.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// Search returns up to k documents ordered by similarity, highest
	// first. An empty or missing collection returns no results.
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)

	// SearchWithFilters is Search restricted to documents whose metadata
	// matches every filter exactly.
	SearchWithFilters(ctx context.Context, query string, k int, filters map[string]interface{}) ([]SearchResult, error)

	// DeleteCollection drops the collection and all its documents.
	// Deleting a missing collection is not an error.
	DeleteCollection(ctx context.Context) error

	// CollectionExists reports whether the collection has been created.
	CollectionExists(ctx context.Context) (bool, error)

	// Count returns the number of stored documents; 0 when the collection
	// does not exist.
	Count(ctx context.Context) (int, error)

	// Collection returns the collection name.
	Collection() string

	// Close releases resources held by the store.
	Close() error
}
