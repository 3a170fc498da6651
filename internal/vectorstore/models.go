package vectorstore

import (
	"fmt"
	"regexp"
	"strconv"
)

// Document is a chunk of text to be stored.
type Document struct {
	// ID is the unique identifier for the document
	ID string

	// Content is the text that gets embedded
	Content string

	// Metadata contains additional key-value pairs for filtering,
	// e.g. source and chunk for knowledge documents
	Metadata map[string]interface{}
}

// SearchResult represents a search result from the vector store.
type SearchResult struct {
	ID      string
	Content string

	// Score is the cosine similarity (higher = more similar)
	Score float32

	Metadata map[string]interface{}
}

const (
	// maxQueryLength bounds query size in characters.
	maxQueryLength = 10000
	// maxK bounds the number of results a single search may request.
	maxK = 10000
)

// collectionNamePattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name.
// Rejects uppercase, special chars, path traversal and spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// validateSearch checks query and k and returns k capped at maxK.
func validateSearch(query string, k int) (int, error) {
	if k <= 0 {
		return 0, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidQuery, k)
	}
	if query == "" {
		return 0, fmt.Errorf("%w: query cannot be empty", ErrInvalidQuery)
	}
	if len(query) > maxQueryLength {
		return 0, fmt.Errorf("%w: query exceeds maximum length of %d characters", ErrInvalidQuery, maxQueryLength)
	}
	if k > maxK {
		k = maxK
	}
	return k, nil
}

// convertMetadataToString converts metadata values to the string map
// chromem stores.
func convertMetadataToString(metadata map[string]interface{}) map[string]string {
	if metadata == nil {
		return nil
	}

	result := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = strconv.Itoa(val)
		case int64:
			result[k] = strconv.FormatInt(val, 10)
		case float64:
			result[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			result[k] = strconv.FormatBool(val)
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

// convertMetadataFromString converts chromem metadata back to the generic
// form. Values stay strings.
func convertMetadataFromString(metadata map[string]string) map[string]interface{} {
	if metadata == nil {
		return nil
	}

	result := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}
