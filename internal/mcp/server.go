package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/agentkb/internal/agent"
	"github.com/fyrsmithlabs/agentkb/internal/logging"
	"github.com/fyrsmithlabs/agentkb/internal/model"
	"github.com/fyrsmithlabs/agentkb/internal/storage"
	"github.com/fyrsmithlabs/agentkb/internal/vectorstore"
)

// Runner answers questions within a session.
type Runner interface {
	Run(ctx context.Context, sessionID, input string, onChunk model.ChunkFunc) (*agent.Result, error)
}

// Searcher returns knowledge references for a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]vectorstore.SearchResult, error)
}

// Deps are the components exposed as tools. Knowledge may be nil, in which
// case search_knowledge is not registered.
type Deps struct {
	Agent     Runner
	Knowledge Searcher
	Sessions  storage.Store
}

// Server wraps an MCP server whose tools call the agent directly.
type Server struct {
	mcp     *mcp.Server
	deps    Deps
	metrics *Metrics
	logger  *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the implementation name reported to clients (default: "agentkb")
	Name string

	// Version is the implementation version (default: "0.1.0")
	Version string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "agentkb",
		Version: "0.1.0",
	}
}

// NewServer creates a new MCP server and registers its tools.
func NewServer(cfg *Config, deps Deps, logger *logging.Logger) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if deps.Agent == nil {
		return nil, fmt.Errorf("agent is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		deps:    deps,
		metrics: NewMetrics(logger.Underlying()),
		logger:  logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves the tools on the stdio transport until ctx is done or the
// client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
