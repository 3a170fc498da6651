package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkb/internal/logging"
	"github.com/fyrsmithlabs/agentkb/internal/storage"
	"github.com/fyrsmithlabs/agentkb/internal/vectorstore"
)

const defaultRunLimit = 10

type reference struct {
	ID       string                 `json:"id" jsonschema:"Document ID"`
	Content  string                 `json:"content" jsonschema:"Chunk text"`
	Score    float32                `json:"score" jsonschema:"Cosine similarity to the query"`
	Metadata map[string]interface{} `json:"metadata,omitempty" jsonschema:"Document metadata such as the source URL"`
}

type askInput struct {
	Question   string `json:"question" jsonschema:"required,Question for the agent"`
	SessionID  string `json:"session_id,omitempty" jsonschema:"Session to continue (a new session is started when empty)"`
	References bool   `json:"references,omitempty" jsonschema:"Include the knowledge references the answer was grounded on"`
}

type askOutput struct {
	SessionID  string      `json:"session_id" jsonschema:"Session the run was stored in"`
	RunID      string      `json:"run_id" jsonschema:"ID of the stored run"`
	Answer     string      `json:"answer" jsonschema:"Agent answer"`
	References []reference `json:"references,omitempty" jsonschema:"Knowledge references"`
}

type searchInput struct {
	Query string `json:"query" jsonschema:"required,Text to search the knowledge base for"`
}

type searchOutput struct {
	Query   string      `json:"query" jsonschema:"Search query used"`
	Results []reference `json:"results" jsonschema:"Matching chunks, most similar first"`
	Count   int         `json:"count" jsonschema:"Number of results"`
}

type listSessionsInput struct{}

type listSessionsOutput struct {
	Sessions []string `json:"sessions" jsonschema:"Stored session IDs"`
	Count    int      `json:"count" jsonschema:"Number of sessions"`
}

type getSessionInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session ID"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Most recent runs to return (default: 10)"`
}

type runOutput struct {
	ID       string `json:"id" jsonschema:"Run ID"`
	Question string `json:"question" jsonschema:"User input"`
	Answer   string `json:"answer" jsonschema:"Agent output"`
}

type getSessionOutput struct {
	SessionID string      `json:"session_id" jsonschema:"Session ID"`
	AgentName string      `json:"agent_name" jsonschema:"Agent that owns the session"`
	TotalRuns int         `json:"total_runs" jsonschema:"Number of runs in the session"`
	Runs      []runOutput `json:"runs" jsonschema:"Most recent runs, oldest first"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ask",
		Description: "Ask the knowledge agent a question. Answers are grounded on the loaded knowledge base and the session history.",
	}, s.handleAsk)

	if s.deps.Knowledge != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "search_knowledge",
			Description: "Search the knowledge base and return the most similar chunks without asking the model.",
		}, s.handleSearch)
	} else {
		s.logger.Info(context.Background(), "no knowledge configured, skipping search_knowledge tool")
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List stored agent session IDs.",
	}, s.handleListSessions)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_session",
		Description: "Show the most recent runs of a stored session.",
	}, s.handleGetSession)
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, args askInput) (*mcp.CallToolResult, askOutput, error) {
	ctx = logging.WithSessionID(ctx, args.SessionID)
	done := s.metrics.track(ctx, "ask")

	res, err := s.deps.Agent.Run(ctx, args.SessionID, args.Question, nil)
	done(err)
	if err != nil {
		s.logger.Warn(ctx, "ask failed", zap.Error(err))
		return nil, askOutput{}, fmt.Errorf("ask: %w", err)
	}
	ctx = logging.WithRunID(logging.WithSessionID(ctx, res.SessionID), res.RunID)
	s.logger.Info(ctx, "ask answered", zap.Int("references", len(res.References)))

	out := askOutput{
		SessionID: res.SessionID,
		RunID:     res.RunID,
		Answer:    res.Output,
	}
	if args.References {
		out.References = toReferences(res.References)
	}
	return textResult(res.Output), out, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, args searchInput) (*mcp.CallToolResult, searchOutput, error) {
	done := s.metrics.track(ctx, "search_knowledge")

	results, err := s.deps.Knowledge.Search(ctx, args.Query)
	done(err)
	if err != nil {
		return nil, searchOutput{}, fmt.Errorf("search: %w", err)
	}

	refs := toReferences(results)
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d results for %q", len(refs), args.Query)
	for i, r := range refs {
		fmt.Fprintf(&b, "\n%d. [%.3f] %s", i+1, r.Score, r.Content)
	}
	return textResult(b.String()), searchOutput{Query: args.Query, Results: refs, Count: len(refs)}, nil
}

func (s *Server) handleListSessions(ctx context.Context, _ *mcp.CallToolRequest, _ listSessionsInput) (*mcp.CallToolResult, listSessionsOutput, error) {
	done := s.metrics.track(ctx, "list_sessions")

	ids, err := s.deps.Sessions.List(ctx)
	done(err)
	if err != nil {
		return nil, listSessionsOutput{}, fmt.Errorf("list sessions: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return textResult(fmt.Sprintf("%d sessions", len(ids))), listSessionsOutput{Sessions: ids, Count: len(ids)}, nil
}

func (s *Server) handleGetSession(ctx context.Context, _ *mcp.CallToolRequest, args getSessionInput) (*mcp.CallToolResult, getSessionOutput, error) {
	ctx = logging.WithSessionID(ctx, args.SessionID)
	done := s.metrics.track(ctx, "get_session")

	session, err := s.deps.Sessions.Read(ctx, args.SessionID)
	done(err)
	if err != nil {
		return nil, getSessionOutput{}, fmt.Errorf("get session: %w", err)
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultRunLimit
	}
	runs := session.LastRuns(limit)
	out := getSessionOutput{
		SessionID: session.ID,
		AgentName: session.AgentName,
		TotalRuns: len(session.Runs),
		Runs:      make([]runOutput, 0, len(runs)),
	}
	for _, r := range runs {
		out.Runs = append(out.Runs, runOutput{ID: r.ID, Question: r.Input, Answer: r.Output})
	}
	return textResult(formatRuns(session, runs)), out, nil
}

func formatRuns(session *storage.Session, runs []storage.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s (%d runs)", session.ID, len(session.Runs))
	for _, r := range runs {
		fmt.Fprintf(&b, "\n\nQ: %s\nA: %s", r.Input, r.Output)
	}
	return b.String()
}

func toReferences(results []vectorstore.SearchResult) []reference {
	refs := make([]reference, len(results))
	for i, r := range results {
		refs[i] = reference{ID: r.ID, Content: r.Content, Score: r.Score, Metadata: r.Metadata}
	}
	return refs
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
