// Package model talks to the chat model behind the agent.
package model

import (
	"context"
	"errors"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat transcript.
type Message struct {
	Role    Role
	Content string
}

// ChunkFunc receives streamed output. Returning an error aborts generation.
type ChunkFunc func(chunk string) error

// Chat generates an assistant reply for a transcript.
type Chat interface {
	// Generate returns the full reply. When onChunk is non-nil the reply is
	// streamed to it as it arrives.
	Generate(ctx context.Context, messages []Message, onChunk ChunkFunc) (string, error)

	// ID returns the model identifier.
	ID() string
}

var (
	// ErrMissingAPIKey is returned when neither the config nor the
	// environment supplies an API key.
	ErrMissingAPIKey = errors.New("model API key not set")

	// ErrEmptyResponse is returned when the model returns no choices.
	ErrEmptyResponse = errors.New("empty response from model")

	// ErrNoMessages is returned by Generate for an empty transcript.
	ErrNoMessages = errors.New("no messages to send")
)
