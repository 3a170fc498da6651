package embeddings

import (
	"crypto/md5"
	"fmt"
	"unicode/utf8"
)

const (
	// FallbackDimension is the length of vectors produced by HashEmbedding.
	// It matches all-MiniLM-L6-v2 so fallback vectors share a collection
	// with trained ones.
	FallbackDimension = 384

	// FallbackModel labels vectors produced without a trained model.
	FallbackModel = "fallback"
)

// HashEmbedding returns the deterministic fallback vector for text.
//
// Element i is byte i%16 of the MD5 digest of the UTF-8 bytes of text,
// divided by 255. The vector therefore repeats with period 16 and every
// element lies in [0, 1].
func HashEmbedding(text string) ([]float32, error) {
	return HashEmbeddingDim(text, FallbackDimension)
}

// HashEmbeddingDim is HashEmbedding with an explicit dimension.
func HashEmbeddingDim(text string, dim int) ([]float32, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dim)
	}
	if err := validateText(text); err != nil {
		return nil, err
	}

	digest := md5.Sum([]byte(text))
	out := make([]float32, dim)
	for i := range out {
		out[i] = float32(digest[i%md5.Size]) / 255
	}
	return out, nil
}

func validateText(text string) error {
	if !utf8.ValidString(text) {
		return ErrInvalidEncoding
	}
	return nil
}

func hashEmbeddings(texts []string, dim int) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := HashEmbeddingDim(text, dim)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}
