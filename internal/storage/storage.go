// Package storage persists agent sessions: the ordered list of runs the
// agent replays as chat history.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/fyrsmithlabs/agentkb/internal/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrSessionNotFound is returned by Read for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSessionID is returned for ids that are empty or unsafe as
	// file names and keys.
	ErrInvalidSessionID = errors.New("invalid session id")
)

// Run is one exchange between the user and the agent.
type Run struct {
	ID        string    `json:"id"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a conversation with an agent.
type Session struct {
	ID        string    `json:"id"`
	AgentName string    `json:"agent_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Runs      []Run     `json:"runs"`
}

// NewSession returns an empty session with a fresh id.
func NewSession(agentName string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		AgentName: agentName,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddRun appends a completed run and bumps UpdatedAt.
func (s *Session) AddRun(input, output string) Run {
	now := time.Now().UTC()
	run := Run{
		ID:        uuid.NewString(),
		Input:     input,
		Output:    output,
		CreatedAt: now,
	}
	s.Runs = append(s.Runs, run)
	s.UpdatedAt = now
	return run
}

// LastRuns returns up to n most recent runs, oldest first.
func (s *Session) LastRuns(n int) []Run {
	if n <= 0 || len(s.Runs) == 0 {
		return nil
	}
	if n > len(s.Runs) {
		n = len(s.Runs)
	}
	return s.Runs[len(s.Runs)-n:]
}

// Store persists sessions.
type Store interface {
	// Read returns the session or ErrSessionNotFound.
	Read(ctx context.Context, id string) (*Session, error)

	// Upsert creates or replaces the session.
	Upsert(ctx context.Context, s *Session) error

	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// List returns all session ids, sorted.
	List(ctx context.Context) ([]string, error)

	Close() error
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// ValidateID rejects ids that are empty, too long or contain characters
// outside [A-Za-z0-9_.-]. "." and ".." are rejected.
func ValidateID(id string) error {
	if id == "." || id == ".." || !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return nil
}

// New creates the Store selected by cfg.Provider.
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "file", "":
		return NewFileStore(cfg.Path, cfg.Table, logger)
	case "redis":
		return NewRedisStore(ctx, cfg.RedisURL.Value(), cfg.Table, logger)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s (supported: file, redis)", cfg.Provider)
	}
}
