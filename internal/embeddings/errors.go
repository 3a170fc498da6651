package embeddings

import "errors"

var (
	// ErrModelUnavailable is returned by NewProvider when the trained model
	// cannot be constructed. NewClient absorbs it and runs degraded.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrEmbeddingFailed indicates a trained model call failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrInvalidEncoding indicates input text that is not valid UTF-8.
	ErrInvalidEncoding = errors.New("text is not valid UTF-8")

	// ErrDimensionMismatch indicates vectors of different or zero length.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrDegenerateVector indicates a zero-magnitude vector.
	ErrDegenerateVector = errors.New("zero-magnitude vector")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)
