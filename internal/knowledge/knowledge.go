// Package knowledge loads documents from URLs into a vector store and
// searches them on behalf of the agent.
package knowledge

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/agentkb/internal/config"
	"github.com/fyrsmithlabs/agentkb/internal/vectorstore"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"
)

const (
	// DefaultNumDocuments is how many references Search returns by default.
	DefaultNumDocuments = 5

	// maxDocumentBytes bounds a single fetched document.
	maxDocumentBytes = 10 * 1024 * 1024

	// MetadataSource and MetadataChunk are the metadata keys set on every chunk.
	MetadataSource = "source"
	MetadataChunk  = "chunk"
)

var (
	// ErrNoURLs is returned by Load when no URLs are configured.
	ErrNoURLs = errors.New("no knowledge urls configured")

	// ErrFetchFailed wraps failures to download a URL.
	ErrFetchFailed = errors.New("fetching document failed")
)

// LoadStats summarizes a Load call.
type LoadStats struct {
	// Skipped is true when the collection already had documents and
	// recreate was false.
	Skipped   bool
	URLs      int
	Documents int
	Duration  time.Duration
}

// Config configures URLKnowledge.
type Config struct {
	URLs         []string
	ChunkSize    int
	ChunkOverlap int
	NumDocuments int

	// HTTPClient fetches URLs. Default: a client with a 30s timeout.
	HTTPClient *http.Client

	// Redactor, when set, rewrites each chunk before it is indexed.
	Redactor Redactor
}

// Redactor rewrites chunk text before indexing.
type Redactor interface {
	Redact(text string) string
}

// ConfigFrom converts the application's knowledge section.
func ConfigFrom(c config.KnowledgeConfig) Config {
	return Config{
		URLs:         c.URLs,
		ChunkSize:    c.ChunkSize,
		ChunkOverlap: c.ChunkOverlap,
		NumDocuments: c.NumDocuments,
	}
}

// URLKnowledge is a knowledge base built from documents served over HTTP.
type URLKnowledge struct {
	urls     []string
	store    vectorstore.Store
	splitter textsplitter.TextSplitter
	numDocs  int
	client   *http.Client
	redactor Redactor
	logger   *zap.Logger
}

// NewURLKnowledge returns a knowledge base backed by store.
func NewURLKnowledge(cfg Config, store vectorstore.Store, logger *zap.Logger) (*URLKnowledge, error) {
	if store == nil {
		return nil, errors.New("knowledge requires a vector store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.NumDocuments <= 0 {
		cfg.NumDocuments = DefaultNumDocuments
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &URLKnowledge{
		urls:  append([]string(nil), cfg.URLs...),
		store: store,
		splitter: textsplitter.NewMarkdownTextSplitter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		),
		numDocs:  cfg.NumDocuments,
		client:   cfg.HTTPClient,
		redactor: cfg.Redactor,
		logger:   logger.Named("knowledge"),
	}, nil
}

// URLs returns the configured source URLs.
func (k *URLKnowledge) URLs() []string {
	return append([]string(nil), k.urls...)
}

// NumDocuments returns how many references Search returns.
func (k *URLKnowledge) NumDocuments() int {
	return k.numDocs
}

// Load fetches every URL, splits it into chunks and stores them.
//
// With recreate the collection is dropped first. Without it, a collection
// that already holds documents is left alone.
func (k *URLKnowledge) Load(ctx context.Context, recreate bool) (LoadStats, error) {
	start := time.Now()
	stats := LoadStats{URLs: len(k.urls)}

	if len(k.urls) == 0 {
		return stats, ErrNoURLs
	}

	if recreate {
		k.logger.Info("dropping knowledge collection", zap.String("collection", k.store.Collection()))
		if err := k.store.DeleteCollection(ctx); err != nil {
			return stats, fmt.Errorf("recreating collection: %w", err)
		}
	} else {
		count, err := k.store.Count(ctx)
		if err != nil {
			return stats, fmt.Errorf("counting documents: %w", err)
		}
		if count > 0 {
			k.logger.Info("knowledge already loaded, skipping",
				zap.String("collection", k.store.Collection()),
				zap.Int("documents", count),
			)
			stats.Skipped = true
			stats.Documents = count
			stats.Duration = time.Since(start)
			return stats, nil
		}
	}

	for _, url := range k.urls {
		docs, err := k.documents(ctx, url)
		if err != nil {
			return stats, err
		}
		if len(docs) == 0 {
			k.logger.Warn("document produced no chunks", zap.String("url", url))
			continue
		}
		if _, err := k.store.AddDocuments(ctx, docs); err != nil {
			return stats, fmt.Errorf("storing %s: %w", url, err)
		}
		stats.Documents += len(docs)
		k.logger.Info("loaded knowledge document",
			zap.String("url", url),
			zap.Int("chunks", len(docs)),
		)
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

// Search returns the most similar chunks for query.
func (k *URLKnowledge) Search(ctx context.Context, query string) ([]vectorstore.SearchResult, error) {
	results, err := k.store.Search(ctx, query, k.numDocs)
	if err != nil {
		return nil, fmt.Errorf("searching knowledge: %w", err)
	}
	return results, nil
}

// documents fetches url and splits it into chunk documents.
func (k *URLKnowledge) documents(ctx context.Context, url string) ([]vectorstore.Document, error) {
	chunks, err := k.load(ctx, url)
	if err != nil {
		return nil, err
	}

	prefix := DocumentPrefix(url)
	docs := make([]vectorstore.Document, 0, len(chunks))
	for _, chunk := range chunks {
		content := chunk.PageContent
		if strings.TrimSpace(content) == "" {
			continue
		}
		if k.redactor != nil {
			content = k.redactor.Redact(content)
		}
		n := len(docs)
		docs = append(docs, vectorstore.Document{
			ID:      prefix + "_" + strconv.Itoa(n),
			Content: content,
			Metadata: map[string]interface{}{
				MetadataSource: url,
				MetadataChunk:  n,
			},
		})
	}
	return docs, nil
}

// load downloads url and splits the body with the markdown splitter.
func (k *URLKnowledge) load(ctx context.Context, url string) ([]schema.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, url, err)
	}
	req.Header.Set("Accept", "text/markdown, text/plain;q=0.9, */*;q=0.5")

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", ErrFetchFailed, url, resp.StatusCode)
	}

	loader := documentloaders.NewText(io.LimitReader(resp.Body, maxDocumentBytes))
	chunks, err := loader.LoadAndSplit(ctx, k.splitter)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, url, err)
	}
	return chunks, nil
}

// DocumentPrefix is the id prefix shared by all chunks of url.
func DocumentPrefix(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])[:12]
}
