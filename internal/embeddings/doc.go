// Package embeddings turns text into fixed-length float32 vectors.
//
// A Client prefers a trained sentence-embedding model (local FastEmbed/ONNX
// or a remote OpenAI-compatible endpoint) and falls back to a deterministic
// MD5-based vector when the model cannot be loaded or a call fails. A model
// that fails to load puts the Client in degraded mode for its whole
// lifetime; a failed call only affects that call.
//
// CosineSimilarity is a diagnostic helper for comparing two vectors.
package embeddings
