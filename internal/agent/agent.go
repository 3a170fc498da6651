// Package agent composes the chat model, knowledge base and session
// storage into a conversational agent.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/agentkb/internal/config"
	"github.com/fyrsmithlabs/agentkb/internal/logging"
	"github.com/fyrsmithlabs/agentkb/internal/model"
	"github.com/fyrsmithlabs/agentkb/internal/storage"
	"github.com/fyrsmithlabs/agentkb/internal/vectorstore"
	"go.uber.org/zap"
)

// DefaultNumHistoryRuns is how many previous runs are replayed by default.
const DefaultNumHistoryRuns = 3

// ErrEmptyInput is returned by Run for blank input.
var ErrEmptyInput = errors.New("input is empty")

// Knowledge is searched for references before each run.
type Knowledge interface {
	Search(ctx context.Context, query string) ([]vectorstore.SearchResult, error)
}

// Options configures an Agent.
type Options struct {
	Name                      string
	Instructions              []string
	NumHistoryRuns            int
	AddHistoryToMessages      bool
	AddDatetimeToInstructions bool
	Markdown                  bool
}

// OptionsFrom converts the application's agent section.
func OptionsFrom(c config.AgentConfig) Options {
	return Options{
		Name:                      c.Name,
		Instructions:              c.Instructions,
		NumHistoryRuns:            c.NumHistoryRuns,
		AddHistoryToMessages:      c.AddHistoryToMessages,
		AddDatetimeToInstructions: c.AddDatetimeToInstructions,
		Markdown:                  c.Markdown,
	}
}

// Agent answers user input with a chat model, grounding answers in its
// knowledge and remembering previous runs of a session.
//
// Knowledge and Storage are optional.
type Agent struct {
	model     model.Chat
	knowledge Knowledge
	storage   storage.Store
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
	locks     sessionLocks
}

// New creates an Agent. knowledge and store may be nil.
func New(chat model.Chat, knowledge Knowledge, store storage.Store, opts Options, logger *zap.Logger) (*Agent, error) {
	if chat == nil {
		return nil, errors.New("agent requires a model")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.NumHistoryRuns < 0 {
		return nil, fmt.Errorf("num history runs cannot be negative, got %d", opts.NumHistoryRuns)
	}
	return &Agent{
		model:     chat,
		knowledge: knowledge,
		storage:   store,
		opts:      opts,
		logger:    logger.Named("agent"),
		now:       time.Now,
	}, nil
}

// Name returns the agent name.
func (a *Agent) Name() string {
	return a.opts.Name
}

// Result is the outcome of one Run.
type Result struct {
	SessionID  string
	RunID      string
	Output     string
	References []vectorstore.SearchResult
}

// Run answers input within sessionID, streaming the answer to onChunk when
// it is non-nil. An empty sessionID starts a new session; an unknown one is
// created.
func (a *Agent) Run(ctx context.Context, sessionID, input string, onChunk model.ChunkFunc) (*Result, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}

	// Runs of one session are serialized so each sees the previous run's
	// history and none is lost on upsert.
	if sessionID != "" {
		defer a.locks.lock(sessionID)()
	}

	session, err := a.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var refs []vectorstore.SearchResult
	if a.knowledge != nil {
		refs, err = a.knowledge.Search(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("searching knowledge: %w", err)
		}
	}

	messages := a.Messages(session, input, refs)

	start := a.now()
	output, err := a.model.Generate(ctx, messages, onChunk)
	if err != nil {
		return nil, fmt.Errorf("generating response: %w", err)
	}

	run := session.AddRun(input, output)
	if a.storage != nil {
		if err := a.storage.Upsert(ctx, session); err != nil {
			return nil, fmt.Errorf("saving session: %w", err)
		}
	}

	// Request and trace ids set by the HTTP or MCP layer ride along.
	logCtx := logging.WithRunID(logging.WithSessionID(ctx, session.ID), run.ID)
	a.logger.Info("agent run completed", append(logging.ContextFields(logCtx),
		zap.Int("references", len(refs)),
		zap.Int("messages", len(messages)),
		zap.Duration("duration", a.now().Sub(start)),
	)...)

	return &Result{
		SessionID:  session.ID,
		RunID:      run.ID,
		Output:     output,
		References: refs,
	}, nil
}

func (a *Agent) session(ctx context.Context, id string) (*storage.Session, error) {
	if id == "" {
		return storage.NewSession(a.opts.Name), nil
	}
	if err := storage.ValidateID(id); err != nil {
		return nil, err
	}
	if a.storage == nil {
		s := storage.NewSession(a.opts.Name)
		s.ID = id
		return s, nil
	}

	s, err := a.storage.Read(ctx, id)
	if errors.Is(err, storage.ErrSessionNotFound) {
		s = storage.NewSession(a.opts.Name)
		s.ID = id
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return s, nil
}

// Messages builds the transcript sent to the model: the system prompt,
// the last NumHistoryRuns runs of session and the user input with any
// knowledge references.
func (a *Agent) Messages(session *storage.Session, input string, refs []vectorstore.SearchResult) []model.Message {
	var messages []model.Message
	if system := a.SystemPrompt(); system != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: system})
	}

	if a.opts.AddHistoryToMessages && session != nil {
		for _, run := range session.LastRuns(a.opts.NumHistoryRuns) {
			messages = append(messages,
				model.Message{Role: model.RoleUser, Content: run.Input},
				model.Message{Role: model.RoleAssistant, Content: run.Output},
			)
		}
	}

	messages = append(messages, model.Message{Role: model.RoleUser, Content: userPrompt(input, refs)})
	return messages
}

// SystemPrompt renders instructions, the markdown hint and the current time.
func (a *Agent) SystemPrompt() string {
	var lines []string
	lines = append(lines, a.opts.Instructions...)
	if a.opts.Markdown {
		lines = append(lines, "Use markdown to format your answers.")
	}
	if a.opts.AddDatetimeToInstructions {
		lines = append(lines, "The current time is "+a.now().Format("2006-01-02 15:04:05 MST")+".")
	}
	if len(lines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("<instructions>\n")
	for _, line := range lines {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("</instructions>")
	return b.String()
}

type reference struct {
	Content string `json:"content"`
	Source  any    `json:"source,omitempty"`
	Chunk   any    `json:"chunk,omitempty"`
}

func userPrompt(input string, refs []vectorstore.SearchResult) string {
	if len(refs) == 0 {
		return input
	}

	docs := make([]reference, len(refs))
	for i, r := range refs {
		docs[i] = reference{
			Content: r.Content,
			Source:  r.Metadata["source"],
			Chunk:   r.Metadata["chunk"],
		}
	}
	encoded, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return input
	}

	var b strings.Builder
	b.WriteString(input)
	b.WriteString("\n\nUse the following references from the knowledge base if it helps:\n<references>\n")
	b.Write(encoded)
	b.WriteString("\n</references>")
	return b.String()
}

// sessionLocks hands out one mutex per session id. Entries are removed once
// no run holds or waits for them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (l *sessionLocks) lock(id string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sessionLock)
	}
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
