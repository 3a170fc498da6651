package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/agentkb/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Defaults for the DeepSeek chat endpoint.
const (
	DefaultModelID   = "deepseek-chat"
	DefaultBaseURL   = "https://api.deepseek.com/v1"
	DefaultAPIKeyEnv = "DEEPSEEK_API_KEY"

	defaultTimeout     = 60 * time.Second
	defaultMaxRetries  = 2
	defaultBaseBackoff = time.Second
	defaultBurst       = 1
)

// Config configures an OpenAI-compatible chat model.
type Config struct {
	ID      string
	BaseURL string
	APIKey  string `json:"-"`

	// APIKeyEnv names the environment variable read when APIKey is empty.
	APIKeyEnv string

	Temperature float64

	// RateLimit is requests per second; 0 disables limiting.
	RateLimit float64

	Timeout     time.Duration
	MaxRetries  int
	BaseBackoff time.Duration
	HTTPClient  *http.Client
}

// ConfigFrom converts the application's model section.
func ConfigFrom(c config.ModelConfig) Config {
	return Config{
		ID:          c.ID,
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey.Value(),
		APIKeyEnv:   c.APIKeyEnv,
		Temperature: c.Temperature,
		RateLimit:   c.RateLimit,
		Timeout:     c.Timeout,
	}
}

// ResolveAPIKey returns APIKey, or the value of APIKeyEnv.
func (c Config) ResolveAPIKey() (string, error) {
	if c.APIKey != "" {
		return c.APIKey, nil
	}
	env := c.APIKeyEnv
	if env == "" {
		env = DefaultAPIKeyEnv
	}
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: set model.api_key or %s", ErrMissingAPIKey, env)
}

// OpenAICompatible is a Chat backed by any OpenAI-compatible endpoint
// (DeepSeek by default).
type OpenAICompatible struct {
	llm         llms.Model
	id          string
	temperature float64
	limiter     *rate.Limiter
	maxRetries  int
	backoff     time.Duration
	logger      *zap.Logger
}

// NewOpenAICompatible creates the chat model. It fails when no API key
// can be found.
func NewOpenAICompatible(cfg Config, logger *zap.Logger) (*OpenAICompatible, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ID == "" {
		cfg.ID = DefaultModelID
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	apiKey, err := cfg.ResolveAPIKey()
	if err != nil {
		return nil, err
	}

	llm, err := openai.New(
		openai.WithModel(cfg.ID),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(apiKey),
		openai.WithHTTPClient(cfg.HTTPClient),
	)
	if err != nil {
		return nil, fmt.Errorf("creating chat client: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, defaultBurst)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), defaultBurst)
	}

	return &OpenAICompatible{
		llm:         llm,
		id:          cfg.ID,
		temperature: cfg.Temperature,
		limiter:     limiter,
		maxRetries:  cfg.MaxRetries,
		backoff:     cfg.BaseBackoff,
		logger:      logger.Named("model"),
	}, nil
}

// ID implements Chat.
func (m *OpenAICompatible) ID() string {
	return m.id
}

// Generate implements Chat. A failed attempt is retried only when it was
// retryable and nothing has been streamed yet.
func (m *OpenAICompatible) Generate(ctx context.Context, messages []Message, onChunk ChunkFunc) (string, error) {
	if len(messages) == 0 {
		return "", ErrNoMessages
	}

	content := toMessageContent(messages)
	streamed := false

	opts := []llms.CallOption{llms.WithTemperature(m.temperature)}
	if onChunk != nil {
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			streamed = true
			return onChunk(string(chunk))
		}))
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := m.backoff * time.Duration(1<<(attempt-1))
			m.logger.Warn("retrying chat completion",
				zap.String("model", m.id),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		if err := m.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter error: %w", err)
		}

		start := time.Now()
		resp, err := m.llm.GenerateContent(ctx, content, opts...)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", ErrEmptyResponse
			}
			m.logger.Debug("chat completion",
				zap.String("model", m.id),
				zap.Int("messages", len(messages)),
				zap.Duration("duration", time.Since(start)),
			)
			return resp.Choices[0].Content, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if streamed || !IsRetryable(err) {
			return "", fmt.Errorf("chat completion: %w", err)
		}
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

var statusCodePattern = regexp.MustCompile(`status code: (\d{3})`)

// IsRetryable reports whether err is a rate limit or server error from
// the model endpoint.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	match := statusCodePattern.FindStringSubmatch(err.Error())
	if match == nil {
		return false
	}
	code, _ := strconv.Atoi(match[1])
	return code == http.StatusTooManyRequests || code >= 500
}

func toMessageContent(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		var role llms.ChatMessageType
		switch msg.Role {
		case RoleSystem:
			role = llms.ChatMessageTypeSystem
		case RoleAssistant:
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeHuman
		}
		out = append(out, llms.MessageContent{
			Role:  role,
			Parts: []llms.ContentPart{llms.TextContent{Text: msg.Content}},
		})
	}
	return out
}

var _ Chat = (*OpenAICompatible)(nil)
