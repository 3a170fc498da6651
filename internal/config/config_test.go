package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "fastembed", cfg.Embeddings.Provider)
	assert.Equal(t, "sentence-transformers/all-MiniLM-L6-v2", cfg.Embeddings.Model)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, []string{"https://docs.agno.com/introduction.md"}, cfg.Knowledge.URLs)
	assert.Equal(t, "file", cfg.Storage.Provider)
	assert.Equal(t, "deepseek-chat", cfg.Model.ID)
	assert.Equal(t, "DEEPSEEK_API_KEY", cfg.Model.APIKeyEnv)
	assert.Equal(t, 60*time.Second, cfg.Model.Timeout)
	assert.Equal(t, 3, cfg.Agent.NumHistoryRuns)
	assert.True(t, cfg.Agent.AddHistoryToMessages)
	assert.True(t, cfg.Agent.Markdown)
	assert.True(t, cfg.Secrets.Enabled)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:   "fallback embeddings provider",
			mutate: func(c *Config) { c.Embeddings.Provider = "fallback" },
		},
		{
			name:    "unknown logging format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging format",
		},
		{
			name:    "unknown embeddings provider",
			mutate:  func(c *Config) { c.Embeddings.Provider = "sentence-transformers" },
			wantErr: "invalid embeddings provider",
		},
		{
			name: "remote embeddings without base url",
			mutate: func(c *Config) {
				c.Embeddings.Provider = "remote"
				c.Embeddings.BaseURL = ""
			},
			wantErr: "base_url is required",
		},
		{
			name:    "unknown vectorstore",
			mutate:  func(c *Config) { c.VectorStore.Provider = "lancedb" },
			wantErr: "invalid vectorstore provider",
		},
		{
			name: "qdrant with bad port",
			mutate: func(c *Config) {
				c.VectorStore.Provider = "qdrant"
				c.VectorStore.Qdrant.Port = 70000
			},
			wantErr: "invalid qdrant port",
		},
		{
			name:    "overlap larger than chunk",
			mutate:  func(c *Config) { c.Knowledge.ChunkOverlap = c.Knowledge.ChunkSize },
			wantErr: "chunk_overlap",
		},
		{
			name:    "zero chunk size",
			mutate:  func(c *Config) { c.Knowledge.ChunkSize = 0 },
			wantErr: "chunk_size",
		},
		{
			name:    "redis without url",
			mutate:  func(c *Config) { c.Storage.Provider = "redis" },
			wantErr: "redis_url is required",
		},
		{
			name: "redis with url",
			mutate: func(c *Config) {
				c.Storage.Provider = "redis"
				c.Storage.RedisURL = "redis://localhost:6379/0"
			},
		},
		{
			name:    "empty table",
			mutate:  func(c *Config) { c.Storage.Table = "" },
			wantErr: "storage table",
		},
		{
			name:    "missing model id",
			mutate:  func(c *Config) { c.Model.ID = "" },
			wantErr: "model id",
		},
		{
			name:    "server port out of range",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "negative history runs",
			mutate:  func(c *Config) { c.Agent.NumHistoryRuns = -1 },
			wantErr: "num_history_runs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "Secret([REDACTED])", s.GoString())
	assert.Equal(t, "sk-live-123", s.Value())
	assert.True(t, s.IsSet())

	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(b))

	var empty Secret
	assert.Equal(t, "", empty.String())
	assert.False(t, empty.IsSet())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1500ms")))
	assert.Equal(t, 1500*time.Millisecond, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
