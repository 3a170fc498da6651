package http

import (
	"github.com/fyrsmithlabs/agentkb/internal/vectorstore"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// AskRequest is the request body for POST /api/v1/ask.
type AskRequest struct {
	SessionID  string `json:"session_id,omitempty"`
	Question   string `json:"question"`
	References bool   `json:"references,omitempty"`
}

// AskResponse is the response body for POST /api/v1/ask.
type AskResponse struct {
	SessionID  string      `json:"session_id"`
	RunID      string      `json:"run_id"`
	Answer     string      `json:"answer"`
	References []Reference `json:"references,omitempty"`
}

// SearchRequest is the request body for POST /api/v1/knowledge/search.
type SearchRequest struct {
	Query string `json:"query"`
}

// SearchResponse is the response body for POST /api/v1/knowledge/search.
type SearchResponse struct {
	Results []Reference `json:"results"`
}

// Reference is one knowledge chunk.
type Reference struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Score    float32                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SessionListResponse is the response body for GET /api/v1/sessions.
type SessionListResponse struct {
	Sessions []string `json:"sessions"`
	Count    int      `json:"count"`
}

func toReferences(results []vectorstore.SearchResult) []Reference {
	refs := make([]Reference, len(results))
	for i, r := range results {
		refs[i] = Reference{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Score,
			Metadata: r.Metadata,
		}
	}
	return refs
}
