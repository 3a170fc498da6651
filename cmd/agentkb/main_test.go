package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentkb/internal/agent"
	"github.com/fyrsmithlabs/agentkb/internal/config"
	"github.com/fyrsmithlabs/agentkb/internal/embeddings"
	"github.com/fyrsmithlabs/agentkb/internal/model"
)

// isolate runs the command in a fresh home and working directory with the
// fallback embedder and no chat model key.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	t.Setenv("AGENTKB_EMBEDDINGS_PROVIDER", "fallback")
	t.Setenv("AGENTKB_LOGGING_LEVEL", "error")
	t.Setenv("DEEPSEEK_API_KEY", "")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(append(args, "--env-file", ""))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEmbedDemo(t *testing.T) {
	isolate(t)

	out, err := execute(t, "embed", "demo")
	require.NoError(t, err)

	assert.Contains(t, out, "fallback")
	assert.Contains(t, out, fmt.Sprintf("%d", embeddings.FallbackDimension))
	assert.Contains(t, out, "Similar concepts")
	assert.Contains(t, out, "Different concepts")
	assert.Contains(t, out, "8 tokens via fallback")
}

func TestSelfcheck(t *testing.T) {
	tests := []struct {
		name     string
		apiKey   string
		wantExit bool
		want     []string
	}{
		{
			name:     "missing model key",
			wantExit: true,
			want:     []string{"FAIL", "model", "SKIP", "agent", "embedder", "storage"},
		},
		{
			name:   "all components",
			apiKey: "test-key",
			want:   []string{"agent", "Level 2 Agent with Embeddings", "telemetry", "disabled"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv("DEEPSEEK_API_KEY", tt.apiKey)

			out, err := execute(t, "selfcheck")
			if tt.wantExit {
				var exit exitError
				require.True(t, errors.As(err, &exit), "got %v", err)
				assert.Equal(t, 1, exit.code)
			} else {
				require.NoError(t, err)
				assert.NotContains(t, out, "FAIL")
			}
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestKnowledgeLoadAndSearch(t *testing.T) {
	isolate(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "# Agno\n\nAgno is a framework for building AI agents.\n\n## Knowledge\n\nAgents search their knowledge before answering.\n")
	}))
	defer srv.Close()
	t.Setenv("AGENTKB_KNOWLEDGE_URLS", srv.URL)

	out, err := execute(t, "knowledge", "load")
	require.NoError(t, err)
	assert.Contains(t, out, "loaded")

	out, err = execute(t, "knowledge", "load")
	require.NoError(t, err)
	assert.Contains(t, out, "skipped")

	out, err = execute(t, "knowledge", "load", "--recreate")
	require.NoError(t, err)
	assert.Contains(t, out, "loaded")

	out, err = execute(t, "knowledge", "search", "building", "agents")
	require.NoError(t, err)
	assert.Contains(t, out, "#1")
}

func TestLoadConfig_LogLevelOverride(t *testing.T) {
	isolate(t)

	opts := &globalOptions{logLevel: "debug"}
	cfg, err := opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "fallback", cfg.Embeddings.Provider)
}

func TestBuildThrough(t *testing.T) {
	isolate(t)

	cfg := config.Default()
	cfg.Embeddings.Provider = "fallback"
	a, err := newApp(context.Background(), cfg, io.Discard)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.buildThrough(context.Background(), stepEmbedder))
	assert.Equal(t, 1, a.built)
	assert.True(t, a.embedder.Degraded())
	assert.Nil(t, a.store)

	require.NoError(t, a.buildThrough(context.Background(), stepEmbedder))
	assert.Equal(t, 1, a.built)

	require.NoError(t, a.buildThrough(context.Background(), stepStorage))
	assert.Equal(t, 4, a.built)
	assert.NotNil(t, a.store)
	assert.NotNil(t, a.knowledge)
	assert.NotNil(t, a.sessions)

	err = a.buildThrough(context.Background(), "nope")
	assert.ErrorContains(t, err, "unknown component")
}

type scriptedRunner struct {
	inputs []string
	fail   map[string]error
}

func (r *scriptedRunner) Run(_ context.Context, sessionID, input string, onChunk model.ChunkFunc) (*agent.Result, error) {
	r.inputs = append(r.inputs, input)
	if err := r.fail[input]; err != nil {
		return nil, err
	}
	if sessionID == "" {
		sessionID = "s-1"
	}
	answer := "echo: " + input
	if onChunk != nil {
		if err := onChunk(answer); err != nil {
			return nil, err
		}
	}
	return &agent.Result{SessionID: sessionID, Output: answer}, nil
}

func TestPlainChat(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		session     string
		wantInputs  []string
		wantSession string
		wantOut     []string
	}{
		{
			name:        "answers until eof",
			in:          "hello\n\nwhat is agno\n",
			wantInputs:  []string{"hello", "what is agno"},
			wantSession: "s-1",
			wantOut:     []string{"echo: hello", "echo: what is agno"},
		},
		{
			name:        "stops at exit word",
			in:          "first\nquit\nnever\n",
			session:     "resume",
			wantInputs:  []string{"first"},
			wantSession: "resume",
			wantOut:     []string{"echo: first"},
		},
		{
			name:        "reports errors and continues",
			in:          "boom\nafter\n",
			wantInputs:  []string{"boom", "after"},
			wantSession: "s-1",
			wantOut:     []string{"error: model down", "echo: after"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &scriptedRunner{fail: map[string]error{"boom": errors.New("model down")}}
			var out bytes.Buffer

			session, err := plainChat(context.Background(), runner, tt.session, strings.NewReader(tt.in), &out)
			require.NoError(t, err)
			assert.Equal(t, tt.wantInputs, runner.inputs)
			assert.Equal(t, tt.wantSession, session)
			for _, w := range tt.wantOut {
				assert.Contains(t, out.String(), w)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview("a\n  b\tc", 10))
	assert.Equal(t, "abc...", preview("abcdef", 3))
}

func TestServeHTTP(t *testing.T) {
	isolate(t)
	t.Setenv("DEEPSEEK_API_KEY", "test-key")

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	cfg, err := (&globalOptions{}).loadConfig()
	require.NoError(t, err)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = port

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, io.Discard)
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.buildThrough(ctx, stepAgent))

	done := make(chan error, 1)
	go func() { done <- serveHTTP(ctx, a, cfg.Server) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"chat", "ask", "knowledge", "embed", "selfcheck", "serve", "mcp"} {
		assert.Contains(t, names, want)
	}
}
