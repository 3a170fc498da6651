package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "agent_sessions", nil)
	require.NoError(t, err)
	testStoreContract(t, store)
}

func TestFileStore_Layout(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir, "agent_sessions", nil)
	require.NoError(t, err)

	s := NewSession("agent")
	require.NoError(t, store.Upsert(ctx, s))
	assert.FileExists(t, filepath.Join(dir, "agent_sessions", s.ID+".json"))

	// Stray files are not sessions.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent_sessions", "notes.txt"), []byte("x"), 0o600))
	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{s.ID}, ids)

	reopened, err := NewFileStore(dir, "agent_sessions", nil)
	require.NoError(t, err)
	got, err := reopened.Read(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
}

func TestFileStore_CorruptSession(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir, "agent_sessions", nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent_sessions", "bad.json"), []byte("{"), 0o600))
	_, err = store.Read(ctx, "bad")
	assert.ErrorContains(t, err, "decoding session")
}

func TestNewFileStore_Invalid(t *testing.T) {
	_, err := NewFileStore("", "t", nil)
	assert.Error(t, err)

	_, err = NewFileStore(t.TempDir(), "../up", nil)
	assert.ErrorIs(t, err, ErrInvalidSessionID)
}
