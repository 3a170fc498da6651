package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyrsmithlabs/agentkb/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// fakeChatServer answers /chat/completions with reply, streaming it word
// by word when asked to. The first failures requests return failStatus.
func fakeChatServer(t *testing.T, reply string, failures int32, failStatus int) (*httptest.Server, *atomic.Int32, *chatRequest) {
	t.Helper()
	var calls atomic.Int32
	last := &chatRequest{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		*last = req

		if n <= failures {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(failStatus)
			_, _ = w.Write([]byte(`{"error":{"message":"try again"}}`))
			return
		}

		if !req.Stream {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 1,
				"model":   req.Model,
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": reply},
					"finish_reason": "stop",
				}},
			})
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for i, word := range strings.SplitAfter(reply, " ") {
			chunk, _ := json.Marshal(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion.chunk",
				"created": 1,
				"model":   req.Model,
				"choices": []map[string]any{{
					"index": 0,
					"delta": map[string]any{"role": "assistant", "content": word},
				}},
			})
			_, _ = fmt.Fprintf(w, "data: %s\n\n", chunk)
			if i == 0 {
				w.(http.Flusher).Flush()
			}
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, last
}

func newTestModel(t *testing.T, baseURL string) *OpenAICompatible {
	t.Helper()
	m, err := NewOpenAICompatible(Config{
		ID:          "deepseek-chat",
		BaseURL:     baseURL,
		APIKey:      "test-key",
		BaseBackoff: time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return m
}

func TestConfig_ResolveAPIKey(t *testing.T) {
	t.Run("explicit key wins", func(t *testing.T) {
		t.Setenv("DEEPSEEK_API_KEY", "from-env")
		key, err := Config{APIKey: "explicit"}.ResolveAPIKey()
		require.NoError(t, err)
		assert.Equal(t, "explicit", key)
	})

	t.Run("default env var", func(t *testing.T) {
		t.Setenv("DEEPSEEK_API_KEY", "from-env")
		key, err := Config{}.ResolveAPIKey()
		require.NoError(t, err)
		assert.Equal(t, "from-env", key)
	})

	t.Run("custom env var", func(t *testing.T) {
		t.Setenv("MY_KEY", "custom")
		key, err := Config{APIKeyEnv: "MY_KEY"}.ResolveAPIKey()
		require.NoError(t, err)
		assert.Equal(t, "custom", key)
	})

	t.Run("missing", func(t *testing.T) {
		t.Setenv("EMPTY_KEY", "")
		_, err := Config{APIKeyEnv: "EMPTY_KEY"}.ResolveAPIKey()
		assert.ErrorIs(t, err, ErrMissingAPIKey)
		assert.ErrorContains(t, err, "EMPTY_KEY")
	})
}

func TestNewOpenAICompatible_MissingKey(t *testing.T) {
	t.Setenv("NO_SUCH_KEY", "")
	_, err := NewOpenAICompatible(Config{APIKeyEnv: "NO_SUCH_KEY"}, nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.Default().Model)
	assert.Equal(t, DefaultModelID, cfg.ID)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultAPIKeyEnv, cfg.APIKeyEnv)
}

func TestGenerate(t *testing.T) {
	srv, calls, last := fakeChatServer(t, "Agno is a framework.", 0, 0)
	m := newTestModel(t, srv.URL)

	out, err := m.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "Be brief."},
		{Role: RoleUser, Content: "What is Agno?"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Agno is a framework.", out)
	assert.Equal(t, int32(1), calls.Load())

	assert.Equal(t, "deepseek-chat", last.Model)
	require.Len(t, last.Messages, 2)
	assert.Equal(t, "system", last.Messages[0].Role)
	assert.Equal(t, "user", last.Messages[1].Role)
	assert.Equal(t, "deepseek-chat", m.ID())
}

func TestGenerate_Streaming(t *testing.T) {
	srv, _, last := fakeChatServer(t, "Agno is a framework.", 0, 0)
	m := newTestModel(t, srv.URL)

	var chunks []string
	out, err := m.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, last.Stream)
	assert.Equal(t, "Agno is a framework.", out)
	assert.Equal(t, out, strings.Join(chunks, ""))
	assert.Greater(t, len(chunks), 1)
}

func TestGenerate_StreamAbort(t *testing.T) {
	srv, calls, _ := fakeChatServer(t, "one two three", 0, 0)
	m := newTestModel(t, srv.URL)

	stop := errors.New("stop")
	_, err := m.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, func(string) error {
		return stop
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "aborted streams are not retried")
}

func TestGenerate_Retries(t *testing.T) {
	t.Run("server errors are retried", func(t *testing.T) {
		srv, calls, _ := fakeChatServer(t, "ok", 2, http.StatusServiceUnavailable)
		m := newTestModel(t, srv.URL)

		out, err := m.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		srv, calls, _ := fakeChatServer(t, "ok", 10, http.StatusTooManyRequests)
		m := newTestModel(t, srv.URL)

		_, err := m.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
		assert.ErrorContains(t, err, "max retries exceeded")
		assert.Equal(t, int32(defaultMaxRetries+1), calls.Load())
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		srv, calls, _ := fakeChatServer(t, "ok", 1, http.StatusUnauthorized)
		m := newTestModel(t, srv.URL)

		_, err := m.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
		assert.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestGenerate_NoMessages(t *testing.T) {
	m := newTestModel(t, "http://127.0.0.1:1")
	_, err := m.Generate(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoMessages)
}

func TestGenerate_Canceled(t *testing.T) {
	srv, _, _ := fakeChatServer(t, "ok", 0, 0)
	m := newTestModel(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Generate(ctx, []Message{{Role: RoleUser, Content: "hi"}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("API returned unexpected status code: 429: slow down"), true},
		{errors.New("API returned unexpected status code: 503"), true},
		{errors.New("API returned unexpected status code: 401: bad key"), false},
		{errors.New("connection refused"), false},
		{context.Canceled, false},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
