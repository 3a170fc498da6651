package embeddings

import "strings"

// Source identifies which path produced a vector.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Usage is informational metadata about a single Embed call.
type Usage struct {
	// Tokens is the number of whitespace separated words in the input.
	Tokens int    `json:"tokens"`
	// Model is the trained model id, or FallbackModel when the vector came
	// from HashEmbedding.
	Model  string `json:"model"`
	Source Source `json:"source"`
}

func newUsage(text, model string, source Source) Usage {
	if source == SourceFallback {
		model = FallbackModel
	}
	return Usage{
		Tokens: len(strings.Fields(text)),
		Model:  model,
		Source: source,
	}
}
